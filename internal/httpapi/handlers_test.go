package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickbite/internal/domain"
	"quickbite/internal/logger"
	"quickbite/internal/metrics"
	"quickbite/internal/order"
)

type memStore struct {
	orders map[uuid.UUID]domain.Order
	events map[uuid.UUID][]domain.StatusTransitionEvent
}

func (s *memStore) CreateOrder(_ context.Context, o *domain.Order) error {
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = *o
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id uuid.UUID) (domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (s *memStore) ListActive(_ context.Context, restaurantID uuid.UUID) ([]domain.Order, error) {
	out := []domain.Order{}
	for _, o := range s.orders {
		if o.RestaurantID == restaurantID && !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) ListEvents(_ context.Context, orderID uuid.UUID) ([]domain.StatusTransitionEvent, error) {
	return s.events[orderID], nil
}

type memCatalog struct {
	restaurant domain.Restaurant
	table      domain.Table
}

func (c *memCatalog) FindTable(_ context.Context, restaurantID uuid.UUID, code string) (domain.Table, error) {
	if restaurantID != c.table.RestaurantID || code != c.table.Code {
		return domain.Table{}, fmt.Errorf("table %q: %w", code, domain.ErrNotFound)
	}
	return c.table, nil
}

func (c *memCatalog) GetRestaurant(_ context.Context, id uuid.UUID) (domain.Restaurant, error) {
	if id != c.restaurant.ID {
		return domain.Restaurant{}, fmt.Errorf("restaurant %s: %w", id, domain.ErrNotFound)
	}
	return c.restaurant, nil
}

type memPublisher struct{ tasks []domain.Task }

func (p *memPublisher) PublishTask(_ context.Context, task domain.Task) error {
	p.tasks = append(p.tasks, task)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore, *memCatalog, *memPublisher) {
	t.Helper()
	restID := uuid.New()
	catalog := &memCatalog{
		restaurant: domain.Restaurant{ID: restID, Name: "Testaurant", LocaleDefault: "en", TaxRateBps: 1000},
		table:      domain.Table{ID: uuid.New(), RestaurantID: restID, Code: "T1"},
	}
	store := &memStore{
		orders: map[uuid.UUID]domain.Order{},
		events: map[uuid.UUID][]domain.StatusTransitionEvent{},
	}
	pub := &memPublisher{}
	lg := logger.NewWriter("test", io.Discard)
	svc := order.NewService(store, catalog, pub, lg, metrics.New(prometheus.NewRegistry()))
	srv := httptest.NewServer(Router(NewHandler(svc, lg)))
	t.Cleanup(srv.Close)
	return srv, store, catalog, pub
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func createBody(restaurantID uuid.UUID, tableCode string) string {
	return fmt.Sprintf(`{
		"restaurant_id": %q,
		"table_code": %q,
		"lines": [
			{"name": "Margherita", "quantity": 1, "base_price": 900},
			{"name": "Green Tea", "quantity": 1, "base_price": 300}
		]
	}`, restaurantID, tableCode)
}

func TestCreateOrderEndpoint(t *testing.T) {
	srv, store, catalog, pub := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/orders", createBody(catalog.restaurant.ID, "T1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)

	id, err := uuid.Parse(body["order_id"].(string))
	require.NoError(t, err)
	o := store.orders[id]
	assert.Equal(t, int64(1320), o.Total)
	require.Len(t, pub.tasks, 1)
	assert.Equal(t, domain.TaskOrderPlaced, pub.tasks[0].Type)
}

func TestCreateOrderRejectsInvalidTable(t *testing.T) {
	srv, store, catalog, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/orders", createBody(catalog.restaurant.ID, "T42"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "invalid_table", body["type"])
	assert.Empty(t, store.orders)
}

func TestCreateOrderRejectsEmptyAndMalformed(t *testing.T) {
	srv, _, catalog, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/orders",
		fmt.Sprintf(`{"restaurant_id": %q, "table_code": "T1", "lines": []}`, catalog.restaurant.ID))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "empty_order", decode(t, resp)["type"])

	resp = postJSON(t, srv.URL+"/api/orders", `{{`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_json", decode(t, resp)["type"])

	resp = postJSON(t, srv.URL+"/api/orders", `{"restaurant_id": "nope", "table_code": "T1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetOrderEndpoint(t *testing.T) {
	srv, _, catalog, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/orders", createBody(catalog.restaurant.ID, "T1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode(t, resp)["order_id"].(string)

	resp, err := http.Get(srv.URL + "/api/orders/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "placed", body["status"])
	assert.Equal(t, float64(1320), body["total"])

	resp, err = http.Get(srv.URL + "/api/orders/" + uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/orders/not-a-uuid")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestRequestStatusEndpoint(t *testing.T) {
	srv, _, catalog, pub := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/orders", createBody(catalog.restaurant.ID, "T1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode(t, resp)["order_id"].(string)
	pub.tasks = nil

	resp = postJSON(t, srv.URL+"/api/orders/"+id+"/status", `{"status": "acknowledged", "actor_role": "staff"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()
	require.Len(t, pub.tasks, 1)
	assert.Equal(t, domain.StatusAcknowledged, pub.tasks[0].TargetStatus)

	resp = postJSON(t, srv.URL+"/api/orders/"+id+"/status", `{"status": "cooking"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/orders/"+uuid.NewString()+"/status", `{"status": "ready"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListActiveEndpoint(t *testing.T) {
	srv, store, catalog, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/orders", createBody(catalog.restaurant.ID, "T1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// A served order drops out of the active list.
	served := domain.Order{ID: uuid.New(), RestaurantID: catalog.restaurant.ID, Status: domain.StatusServed}
	store.orders[served.ID] = served

	resp, err := http.Get(srv.URL + "/api/restaurants/" + catalog.restaurant.ID.String() + "/orders/active")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Len(t, body["orders"], 1)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode(t, resp)["status"])
}
