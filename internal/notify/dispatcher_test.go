package notify

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quickbite/internal/domain"
	"quickbite/internal/logger"
	"quickbite/internal/metrics"
)

type fakeSender struct {
	sent []string // recipients, in order
	fail error
}

func (s *fakeSender) Send(_ context.Context, _ domain.ChannelKind, recipient string, _ []byte) error {
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, recipient)
	return nil
}

type memSendLog struct {
	marks map[string]bool
}

func newMemSendLog() *memSendLog { return &memSendLog{marks: map[string]bool{}} }

func (l *memSendLog) key(orderID uuid.UUID, eventKey string, ch domain.ChannelKind) string {
	return orderID.String() + "|" + eventKey + "|" + string(ch)
}

func (l *memSendLog) WasSent(_ context.Context, orderID uuid.UUID, eventKey string, ch domain.ChannelKind) (bool, error) {
	return l.marks[l.key(orderID, eventKey, ch)], nil
}

func (l *memSendLog) MarkSent(_ context.Context, orderID uuid.UUID, eventKey string, ch domain.ChannelKind) error {
	l.marks[l.key(orderID, eventKey, ch)] = true
	return nil
}

func testEvent(t domain.NotificationEventType) domain.NotificationEvent {
	return domain.NotificationEvent{
		Type:         t,
		OrderID:      uuid.New(),
		RestaurantID: uuid.New(),
		TableCode:    "T1",
		Status:       domain.StatusPlaced,
		Total:        1320,
		Locale:       "en",
	}
}

func newTestDispatcher(t *testing.T, senders map[domain.ChannelKind]Sender, log SendLog) *Dispatcher {
	t.Helper()
	lg := logger.NewWriter("test", io.Discard)
	return NewDispatcher(senders, log, lg, metrics.New(prometheus.NewRegistry()))
}

func TestDispatchStatusChangeFansOut(t *testing.T) {
	customer := &fakeSender{}
	staff := &fakeSender{}
	d := newTestDispatcher(t, map[domain.ChannelKind]Sender{
		domain.ChannelCustomerPush: customer,
		domain.ChannelStaffPush:    staff,
	}, newMemSendLog())

	ev := testEvent(domain.EventOrderStatusChanged)
	ev.Status = domain.StatusReady
	outcomes, err := d.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, []string{"orders:" + ev.OrderID.String()}, customer.sent)
	assert.Equal(t, []string{"staff:" + ev.RestaurantID.String()}, staff.sent)
}

func TestDispatchOneFailureDoesNotBlockOthers(t *testing.T) {
	customer := &fakeSender{}
	staff := &fakeSender{fail: fmt.Errorf("staff push down")}
	log := newMemSendLog()
	d := newTestDispatcher(t, map[domain.ChannelKind]Sender{
		domain.ChannelCustomerPush: customer,
		domain.ChannelStaffPush:    staff,
	}, log)

	ev := testEvent(domain.EventOrderStatusChanged)
	outcomes, err := d.Dispatch(context.Background(), ev)
	require.Error(t, err, "partial failure must be reported so the message is retried")
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Sent)
	assert.Error(t, outcomes[1].Err)
	assert.Len(t, customer.sent, 1, "working channel still delivered")

	// Redelivery after the staff transport recovers: only the failed channel
	// is retried, the customer already has a marker.
	staff.fail = nil
	outcomes, err = d.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, outcomes[0].Skipped)
	assert.True(t, outcomes[1].Sent)
	assert.Len(t, customer.sent, 1, "no duplicate to the customer")
	assert.Len(t, staff.sent, 1)
}

func TestDispatchSkipsDuplicateEvent(t *testing.T) {
	customer := &fakeSender{}
	kitchen := &fakeSender{}
	d := newTestDispatcher(t, map[domain.ChannelKind]Sender{
		domain.ChannelCustomerPush: customer,
		domain.ChannelKitchenPush:  kitchen,
	}, newMemSendLog())
	ctx := context.Background()

	ev := testEvent(domain.EventKitchenAlert)
	_, err := d.Dispatch(ctx, ev)
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, ev)
	require.NoError(t, err)
	assert.Len(t, kitchen.sent, 1)
}

func TestDispatchDistinctStatusesNotifySeparately(t *testing.T) {
	customer := &fakeSender{}
	staff := &fakeSender{}
	d := newTestDispatcher(t, map[domain.ChannelKind]Sender{
		domain.ChannelCustomerPush: customer,
		domain.ChannelStaffPush:    staff,
	}, newMemSendLog())
	ctx := context.Background()

	ev := testEvent(domain.EventOrderStatusChanged)
	ev.Status = domain.StatusAcknowledged
	_, err := d.Dispatch(ctx, ev)
	require.NoError(t, err)

	ev.Status = domain.StatusInKitchen
	_, err = d.Dispatch(ctx, ev)
	require.NoError(t, err)

	assert.Len(t, customer.sent, 2, "each transition notifies independently")
}

func TestDispatchEmailOnlyWithAddress(t *testing.T) {
	push := &fakeSender{}
	email := &fakeSender{}
	d := newTestDispatcher(t, map[domain.ChannelKind]Sender{
		domain.ChannelCustomerPush:  push,
		domain.ChannelCustomerEmail: email,
	}, newMemSendLog())
	ctx := context.Background()

	ev := testEvent(domain.EventOrderConfirmed)
	_, err := d.Dispatch(ctx, ev)
	require.NoError(t, err)
	assert.Empty(t, email.sent)

	ev.OrderID = uuid.New()
	ev.CustomerEmail = "guest@example.com"
	_, err = d.Dispatch(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, []string{"guest@example.com"}, email.sent)
}

func TestDispatchMissingSenderFails(t *testing.T) {
	d := newTestDispatcher(t, map[domain.ChannelKind]Sender{}, newMemSendLog())

	_, err := d.Dispatch(context.Background(), testEvent(domain.EventKitchenAlert))
	assert.Error(t, err)
}
