package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"quickbite/internal/domain"
	"quickbite/internal/logger"
	"quickbite/internal/metrics"
)

// Sender is the uniform send capability of one notification transport. The
// dispatcher knows nothing about what sits behind it.
type Sender interface {
	Send(ctx context.Context, channel domain.ChannelKind, recipient string, payload []byte) error
}

// SendLog persists per-channel completion markers so a redelivered event does
// not resend channels that already went out.
type SendLog interface {
	WasSent(ctx context.Context, orderID uuid.UUID, eventKey string, channel domain.ChannelKind) (bool, error)
	MarkSent(ctx context.Context, orderID uuid.UUID, eventKey string, channel domain.ChannelKind) error
}

// Outcome is the per-channel result of one dispatch.
type Outcome struct {
	Channel   domain.ChannelKind
	Recipient string
	Sent      bool
	Skipped   bool
	Err       error
}

type Dispatcher struct {
	senders map[domain.ChannelKind]Sender
	log     SendLog
	lg      *logger.Logger
	met     *metrics.Metrics
}

func NewDispatcher(senders map[domain.ChannelKind]Sender, log SendLog, lg *logger.Logger, met *metrics.Metrics) *Dispatcher {
	return &Dispatcher{senders: senders, log: log, lg: lg, met: met}
}

type target struct {
	channel   domain.ChannelKind
	recipient string
}

// channelsFor maps an event type to its applicable channels. The email
// channel only applies when the event carries a recipient address.
func channelsFor(ev domain.NotificationEvent) []target {
	switch ev.Type {
	case domain.EventOrderConfirmed:
		ts := []target{{domain.ChannelCustomerPush, "orders:" + ev.OrderID.String()}}
		if ev.CustomerEmail != "" {
			ts = append(ts, target{domain.ChannelCustomerEmail, ev.CustomerEmail})
		}
		return ts
	case domain.EventOrderStatusChanged:
		return []target{
			{domain.ChannelCustomerPush, "orders:" + ev.OrderID.String()},
			{domain.ChannelStaffPush, "staff:" + ev.RestaurantID.String()},
		}
	case domain.EventKitchenAlert:
		return []target{{domain.ChannelKitchenPush, "kitchen:" + ev.RestaurantID.String()}}
	default:
		return nil
	}
}

// Dispatch fans ev out to every applicable channel. A failure on one channel
// never blocks the others; every channel is attempted before returning. The
// returned error is non-nil when at least one channel failed, so the caller
// can leave the queue message unacknowledged and retry only what is missing.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.NotificationEvent) ([]Outcome, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}

	targets := channelsFor(ev)
	outcomes := make([]Outcome, 0, len(targets))
	failed := 0

	for _, t := range targets {
		out := Outcome{Channel: t.channel, Recipient: t.recipient}

		done, err := d.log.WasSent(ctx, ev.OrderID, ev.DedupKey(), t.channel)
		switch {
		case err != nil:
			out.Err = err
		case done:
			out.Skipped = true
		default:
			out.Err = d.send(ctx, ev, t, payload)
			out.Sent = out.Err == nil
		}

		if out.Err != nil {
			failed++
			d.met.Notifications.WithLabelValues(string(t.channel), "failed").Inc()
			d.lg.Error("notification_failed", out.Err, map[string]any{
				"order_id": ev.OrderID.String(), "event": string(ev.Type), "channel": string(t.channel),
			})
		} else if out.Skipped {
			d.met.Notifications.WithLabelValues(string(t.channel), "skipped").Inc()
		} else {
			d.met.Notifications.WithLabelValues(string(t.channel), "sent").Inc()
		}
		outcomes = append(outcomes, out)
	}

	if failed > 0 {
		return outcomes, fmt.Errorf("notification dispatch: %d of %d channels failed", failed, len(targets))
	}
	return outcomes, nil
}

func (d *Dispatcher) send(ctx context.Context, ev domain.NotificationEvent, t target, payload []byte) error {
	s, ok := d.senders[t.channel]
	if !ok {
		return fmt.Errorf("no sender bound for channel %s", t.channel)
	}
	if err := s.Send(ctx, t.channel, t.recipient, payload); err != nil {
		return err
	}
	// Marker write after a successful send: if it fails the worst case is one
	// duplicate notification on retry, which at-least-once already allows.
	return d.log.MarkSent(ctx, ev.OrderID, ev.DedupKey(), t.channel)
}
