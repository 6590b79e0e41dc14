package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"quickbite/internal/config"
	"quickbite/internal/domain"
)

const (
	TasksExchange = "orders_topic"
	TasksQueue    = "order_tasks.q"
	DeadExchange  = "dlx"
	DeadQueue     = "dlq"

	routingPlaced = "order.task.placed"
	routingStatus = "order.task.status"

	// AttemptsHeader counts validation attempts across redeliveries; the
	// consumer drops the message once the bound is reached.
	AttemptsHeader = "x-attempts"
)

// Client wraps one AMQP connection with separate publish and consume
// channels. Publishes use publisher confirms and are serialized.
type Client struct {
	conn  *amqp.Connection
	pubCh *amqp.Channel
	conCh *amqp.Channel

	acks <-chan amqp.Confirmation
	mu   sync.Mutex
}

// Dial connects with a short retry loop (broker may start after us) and
// declares the task topology.
func Dial(cfg config.RabbitMQConfig) (*Client, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, vhostPath(cfg.VHost))

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := pubCh.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	acks := pubCh.NotifyPublish(make(chan amqp.Confirmation, 1))

	conCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{conn: conn, pubCh: pubCh, conCh: conCh, acks: acks}
	if err := c.declareTopology(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func vhostPath(v string) string {
	if v == "" || v == "/" {
		return "/"
	}
	return "/" + v
}

func (c *Client) declareTopology() error {
	if err := c.pubCh.ExchangeDeclare(TasksExchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := c.pubCh.ExchangeDeclare(DeadExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := c.pubCh.QueueDeclare(TasksQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    DeadExchange,
		"x-dead-letter-routing-key": DeadQueue,
	}); err != nil {
		return err
	}
	if _, err := c.pubCh.QueueDeclare(DeadQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := c.pubCh.QueueBind(TasksQueue, "order.task.*", TasksExchange, false, nil); err != nil {
		return err
	}
	return c.pubCh.QueueBind(DeadQueue, DeadQueue, DeadExchange, false, nil)
}

func (c *Client) Close() {
	if c.pubCh != nil {
		_ = c.pubCh.Close()
	}
	if c.conCh != nil {
		_ = c.conCh.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *Client) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// PublishTask enqueues one order-processing task and waits for the broker
// confirm, so a returned nil means the task is durably accepted.
func (c *Client) PublishTask(ctx context.Context, task domain.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	key := routingStatus
	if task.Type == domain.TaskOrderPlaced {
		key = routingPlaced
	}
	return c.publish(ctx, key, body, amqp.Table{AttemptsHeader: int32(1)})
}

// Republish requeues a raw payload with an incremented attempt count. Used by
// the consumer's bounded retry of messages that fail validation.
func (c *Client) Republish(ctx context.Context, body []byte, attempts int) error {
	return c.publish(ctx, routingStatus, body, amqp.Table{AttemptsHeader: int32(attempts)})
}

func (c *Client) publish(ctx context.Context, key string, body []byte, headers amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.pubCh.PublishWithContext(ctx, TasksExchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish task: %w", err)
	}

	select {
	case conf := <-c.acks:
		if !conf.Ack {
			return errors.New("publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume subscribes to the task queue with manual acks.
func (c *Client) Consume(consumer string, prefetch int) (<-chan amqp.Delivery, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.conCh.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}
	return c.conCh.Consume(TasksQueue, consumer, false, false, false, false, nil)
}

// CancelConsumer stops new deliveries; in-flight ones drain normally.
func (c *Client) CancelConsumer(consumer string) error {
	return c.conCh.Cancel(consumer, false)
}

// Attempts reads the attempt counter from a delivery, defaulting to 1.
func Attempts(d amqp.Delivery) int {
	if d.Headers == nil {
		return 1
	}
	switch v := d.Headers[AttemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}
