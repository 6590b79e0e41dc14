// Package consumer drains the order task queue and drives the transition
// engine and notification dispatcher. Delivery is at least once, so every
// side effect routes through a dedup check before it is repeated.
package consumer

import (
	"context"
	"errors"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"quickbite/internal/domain"
	"quickbite/internal/logger"
	"quickbite/internal/metrics"
	"quickbite/internal/notify"
	"quickbite/internal/queue"
)

type Engine interface {
	Transition(ctx context.Context, orderID uuid.UUID, target domain.Status, actor domain.Actor) (domain.Order, bool, error)
	AlreadyApplied(ctx context.Context, orderID uuid.UUID, target domain.Status) (bool, error)
}

type Orders interface {
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.NotificationEvent) ([]notify.Outcome, error)
}

// Republisher requeues a payload with a bumped attempt counter, for the
// bounded retry of messages that fail validation.
type Republisher interface {
	Republish(ctx context.Context, body []byte, attempts int) error
}

// disposition is what happens to the delivery after processing.
type disposition int

const (
	ackDone disposition = iota // work durably complete (or intentionally dropped)
	requeue                    // transient failure, leave for redelivery
	dead                       // unprocessable, dead-letter for inspection
)

type Config struct {
	Name        string
	Workers     int
	Prefetch    int
	MaxAttempts int
}

type Consumer struct {
	client     *queue.Client
	engine     Engine
	orders     Orders
	dispatcher Dispatcher
	repub      Republisher
	lg         *logger.Logger
	met        *metrics.Metrics
	cfg        Config
}

func New(client *queue.Client, engine Engine, orders Orders, dispatcher Dispatcher, repub Republisher, lg *logger.Logger, met *metrics.Metrics, cfg Config) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Name == "" {
		cfg.Name = "order-processor"
	}
	return &Consumer{
		client: client, engine: engine, orders: orders, dispatcher: dispatcher,
		repub: repub, lg: lg, met: met, cfg: cfg,
	}
}

// Run consumes until ctx is canceled, then stops deliveries and drains the
// in-flight ones. Each message is independent: one failing delivery never
// blocks acknowledgment of its siblings.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.client.Consume(c.cfg.Name, c.cfg.Prefetch)
	if err != nil {
		return err
	}
	c.lg.Info("consumer_started", map[string]any{
		"workers": c.cfg.Workers, "prefetch": c.cfg.Prefetch,
	})

	go func() {
		<-ctx.Done()
		_ = c.client.CancelConsumer(c.cfg.Name)
	}()

	var g errgroup.Group
	for i := 0; i < c.cfg.Workers; i++ {
		g.Go(func() error {
			for d := range msgs {
				c.settle(d, c.process(ctx, d.Body, queue.Attempts(d)))
			}
			return nil
		})
	}
	err = g.Wait()
	c.lg.Info("consumer_stopped", nil)
	return err
}

func (c *Consumer) settle(d amqp.Delivery, disp disposition) {
	switch disp {
	case ackDone:
		_ = d.Ack(false)
	case requeue:
		_ = d.Nack(false, true)
	case dead:
		_ = d.Nack(false, false)
	}
}

func (c *Consumer) process(ctx context.Context, body []byte, attempts int) disposition {
	task, err := domain.ParseTask(body)
	if err != nil {
		return c.handlePoison(ctx, body, attempts, err)
	}

	switch task.Type {
	case domain.TaskOrderPlaced:
		return c.processPlaced(ctx, task)
	default:
		return c.processStatusChange(ctx, task)
	}
}

// handlePoison retries a malformed payload a bounded number of times, then
// logs it, counts it and drops it so it cannot block the queue. The drop is a
// policy choice and is always observable via the poison counter.
func (c *Consumer) handlePoison(ctx context.Context, body []byte, attempts int, cause error) disposition {
	if attempts >= c.cfg.MaxAttempts {
		c.met.PoisonMessages.Inc()
		c.met.TasksProcessed.WithLabelValues("unknown", "poison_dropped").Inc()
		c.lg.Error("poison_message_dropped", cause, map[string]any{
			"attempts": attempts, "payload": string(body),
		})
		return ackDone
	}
	if err := c.repub.Republish(ctx, body, attempts+1); err != nil {
		return requeue
	}
	c.lg.Warn("malformed_message_requeued", map[string]any{"attempts": attempts})
	return ackDone
}

// processPlaced handles the just-placed task: the placed transition was
// already recorded at creation, so the remaining work is the confirmation
// fan-out (customer + kitchen). The dispatcher's send log makes this
// idempotent under redelivery.
func (c *Consumer) processPlaced(ctx context.Context, task domain.Task) disposition {
	o, err := c.orders.GetOrder(ctx, task.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.met.TasksProcessed.WithLabelValues(task.Type, "order_missing").Inc()
			c.lg.Error("task_order_missing", err, map[string]any{"order_id": task.OrderID.String()})
			return dead
		}
		return requeue
	}

	confirmed := notificationEvent(domain.EventOrderConfirmed, o)
	if _, err := c.dispatcher.Dispatch(ctx, confirmed); err != nil {
		return requeue
	}
	alert := notificationEvent(domain.EventKitchenAlert, o)
	if _, err := c.dispatcher.Dispatch(ctx, alert); err != nil {
		return requeue
	}

	c.met.TasksProcessed.WithLabelValues(task.Type, "done").Inc()
	c.lg.Debug("order_placed_processed", map[string]any{"order_id": o.ID.String()})
	return ackDone
}

func (c *Consumer) processStatusChange(ctx context.Context, task domain.Task) disposition {
	actor := domain.Actor{Role: task.ActorRole}
	if task.ActorID != nil {
		if id, err := uuid.Parse(*task.ActorID); err == nil {
			actor.ID = &id
		}
	}

	// Dedup against the event log: a redelivered message whose transition is
	// already recorded must not drive the engine again. Only the notification
	// step, which dedups per channel, runs after this point.
	done, err := c.engine.AlreadyApplied(ctx, task.OrderID, task.TargetStatus)
	if err != nil {
		return requeue
	}

	var o domain.Order
	if done {
		if o, err = c.orders.GetOrder(ctx, task.OrderID); err != nil {
			return requeue
		}
	} else {
		o, _, err = c.engine.Transition(ctx, task.OrderID, task.TargetStatus, actor)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInvalidTransition):
			// Out-of-order or illegal edge; state is untouched. Dead-letter
			// so the rejection stays inspectable.
			c.met.TasksProcessed.WithLabelValues(task.Type, "invalid_transition").Inc()
			c.lg.Error("transition_rejected", err, map[string]any{
				"order_id": task.OrderID.String(), "target_status": string(task.TargetStatus),
			})
			return dead
		case errors.Is(err, domain.ErrNotFound):
			c.met.TasksProcessed.WithLabelValues(task.Type, "order_missing").Inc()
			c.lg.Error("task_order_missing", err, map[string]any{"order_id": task.OrderID.String()})
			return dead
		default:
			return requeue
		}
	}

	ev := notificationEvent(domain.EventOrderStatusChanged, o)
	ev.Status = task.TargetStatus
	if _, err := c.dispatcher.Dispatch(ctx, ev); err != nil {
		// Transition is durable; leaving the message unacknowledged retries
		// only the channels the dispatcher has not recorded as sent.
		return requeue
	}

	c.met.TasksProcessed.WithLabelValues(task.Type, "done").Inc()
	return ackDone
}

func notificationEvent(t domain.NotificationEventType, o domain.Order) domain.NotificationEvent {
	return domain.NotificationEvent{
		Type:         t,
		OrderID:      o.ID,
		RestaurantID: o.RestaurantID,
		TableCode:    o.TableCode,
		Status:       o.Status,
		Total:        o.Total,
		Locale:       o.Locale,
	}
}
