package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quickbite/internal/domain"
	"quickbite/internal/logger"
	"quickbite/internal/money"
	"quickbite/internal/order"
)

type Handler struct {
	svc *order.Service
	lg  *logger.Logger
}

func NewHandler(svc *order.Service, lg *logger.Logger) *Handler {
	return &Handler{svc: svc, lg: lg}
}

func Router(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{order_id}", h.GetOrder)
	mux.HandleFunc("GET /api/orders/{order_id}/events", h.GetOrderEvents)
	mux.HandleFunc("POST /api/orders/{order_id}/status", h.RequestStatus)
	mux.HandleFunc("GET /api/restaurants/{restaurant_id}/orders/active", h.ListActive)
	mux.HandleFunc("GET /health", h.Health)
	return mux
}

type lineOptionRequest struct {
	Name       string `json:"name"`
	PriceDelta int64  `json:"price_delta"`
}

type createLineRequest struct {
	ItemID    *string             `json:"item_id,omitempty"`
	Name      string              `json:"name"`
	Quantity  int                 `json:"quantity"`
	BasePrice int64               `json:"base_price"`
	Options   []lineOptionRequest `json:"options,omitempty"`
}

type createOrderRequest struct {
	RestaurantID   string              `json:"restaurant_id"`
	TableCode      string              `json:"table_code"`
	Locale         string              `json:"locale"`
	Notes          string              `json:"notes,omitempty"`
	TaxRatePercent *string             `json:"tax_rate_percent,omitempty"`
	Lines          []createLineRequest `json:"lines"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_json", "request body is not valid JSON")
		return
	}
	restaurantID, err := uuid.Parse(req.RestaurantID)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "restaurant_id must be a UUID")
		return
	}

	in := order.CreateOrderInput{
		RestaurantID: restaurantID,
		TableCode:    req.TableCode,
		Locale:       req.Locale,
		Notes:        req.Notes,
	}
	if req.TaxRatePercent != nil {
		bps, err := money.ParseRateBps(*req.TaxRatePercent)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "bad_request", "tax_rate_percent is not a valid rate")
			return
		}
		in.TaxRateBps = &bps
	}
	for _, li := range req.Lines {
		line := order.CreateLineInput{
			Name:      li.Name,
			Quantity:  li.Quantity,
			BasePrice: li.BasePrice,
		}
		if li.ItemID != nil {
			id, err := uuid.Parse(*li.ItemID)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, "bad_request", "line item_id must be a UUID")
				return
			}
			line.ItemID = &id
		}
		for _, opt := range li.Options {
			line.Options = append(line.Options, domain.LineOption{Name: opt.Name, PriceDelta: opt.PriceDelta})
		}
		in.Lines = append(in.Lines, line)
	}

	id, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order_id": id.String()})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "order_id")
	if !ok {
		return
	}
	o, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) GetOrderEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "order_id")
	if !ok {
		return
	}
	events, err := h.svc.Timeline(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		e := map[string]any{
			"to_status":  string(ev.ToStatus),
			"actor_role": ev.ActorRole,
			"created_at": ev.CreatedAt.Format(time.RFC3339),
		}
		if ev.FromStatus != nil {
			e["from_status"] = string(*ev.FromStatus)
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id.String(), "events": out})
}

type statusRequest struct {
	Status    string  `json:"status"`
	ActorRole string  `json:"actor_role"`
	ActorID   *string `json:"actor_id,omitempty"`
}

// RequestStatus enqueues an asynchronous status change. The transition is
// validated and applied by the processor, so this returns 202.
func (h *Handler) RequestStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "order_id")
	if !ok {
		return
	}
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_json", "request body is not valid JSON")
		return
	}
	target, err := domain.ParseStatus(req.Status)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", "unknown status "+req.Status)
		return
	}
	actor := domain.Actor{Role: req.ActorRole}
	if actor.Role == "" {
		actor.Role = domain.RoleStaff
	}
	if req.ActorID != nil {
		aid, err := uuid.Parse(*req.ActorID)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "bad_request", "actor_id must be a UUID")
			return
		}
		actor.ID = &aid
	}
	if err := h.svc.RequestTransition(r.Context(), id, target, actor); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"order_id": id.String(), "requested_status": string(target)})
}

func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	rid, ok := pathUUID(w, r, "restaurant_id")
	if !ok {
		return
	}
	orders, err := h.svc.ListActive(r.Context(), rid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func orderResponse(o domain.Order) map[string]any {
	lines := make([]map[string]any, 0, len(o.Lines))
	for _, ln := range o.Lines {
		lines = append(lines, map[string]any{
			"name": ln.Name, "quantity": ln.Quantity,
			"base_price": ln.BasePrice, "line_total": ln.LineTotal,
		})
	}
	return map[string]any{
		"order_id":       o.ID.String(),
		"restaurant_id":  o.RestaurantID.String(),
		"table_code":     o.TableCode,
		"locale":         o.Locale,
		"status":         string(o.Status),
		"subtotal":       o.Subtotal,
		"tax":            o.Tax,
		"service_charge": o.ServiceCharge,
		"total":          o.Total,
		"lines":          lines,
		"created_at":     o.CreatedAt.Format(time.RFC3339),
		"updated_at":     o.UpdatedAt.Format(time.RFC3339),
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Anything outside the
// taxonomy is transient: the client should retry.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyOrder):
		writeProblem(w, http.StatusBadRequest, "empty_order", "order must contain at least one line")
	case errors.Is(err, domain.ErrInvalidTable):
		writeProblem(w, http.StatusBadRequest, "invalid_table", "table code does not belong to this restaurant")
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, http.StatusConflict, "invalid_transition", err.Error())
	default:
		h.lg.Error("internal_error", err, nil)
		writeProblem(w, http.StatusServiceUnavailable, "transient", "temporary failure, try again")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem keeps a single machine-readable error shape across endpoints.
func writeProblem(w http.ResponseWriter, code int, typ, detail string) {
	writeJSON(w, code, map[string]any{
		"type":   typ,
		"title":  http.StatusText(code),
		"status": code,
		"detail": detail,
	})
}

func pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(key))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "bad_request", key+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
