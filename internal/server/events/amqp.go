package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmitrijs2005/greenmission/internal/logging"
)

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dial opens a connection and a channel. The returned func closes both.
var dial = func(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// AMQPPublisher connects per publish. Profile events are rare, and a
// fresh connection survives broker restarts without a reconnect loop.
type AMQPPublisher struct {
	url string
	log logging.Logger
}

func NewAMQPPublisher(url string, log logging.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: log.With("module", "events")}
}

func (p *AMQPPublisher) PublishWalletChanged(ctx context.Context, ev WalletChanged) error {
	return p.publish(ctx, WalletChangedQueue, ev)
}

func (p *AMQPPublisher) publish(ctx context.Context, queue string, ev any) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, closeConn, err := dial(p.url)
	if err != nil {
		p.log.Warn(ctx, "rabbitmq dial failed", "error", err)
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() {
		_ = ch.Close()
		_ = closeConn()
	}()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		p.log.Warn(ctx, "rabbitmq queue declare failed", "queue", queue, "error", err)
		return fmt.Errorf("queue declare %s: %w", queue, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.log.Warn(ctx, "rabbitmq publish failed", "queue", queue, "error", err)
		return fmt.Errorf("publish %s: %w", queue, err)
	}

	p.log.Debug(ctx, "event published", "queue", queue)
	return nil
}
