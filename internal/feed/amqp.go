package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPFeed consumes message-insert events from a topic exchange through an
// exclusive, auto-deleted queue. One instance serves the whole process; the
// session manager fans events out to per-user sessions.
type AMQPFeed struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	exchange string
	logger   *slog.Logger
}

// NewAMQPFeed dials the broker and binds an ephemeral queue to the
// message-insert routing key.
func NewAMQPFeed(amqpURL, exchange string, logger *slog.Logger) (*AMQPFeed, error) {
	if amqpURL == "" {
		return nil, fmt.Errorf("amqp url is empty")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	queue := "market_chat.feed." + uuid.NewString()
	if _, err := ch.QueueDeclare(queue, false, true, true, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if err := ch.QueueBind(queue, RoutingKeyMessageInsert, exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPFeed{conn: conn, ch: ch, queue: queue, exchange: exchange, logger: logger}, nil
}

// Subscribe starts delivering decoded events to handler until the context is
// cancelled or the channel closes. There is no reconnect loop: after a drop
// the thread list heals on the next aggregation pass.
func (f *AMQPFeed) Subscribe(ctx context.Context, handler func(MessageEvent)) error {
	deliveries, err := f.ch.Consume(f.queue, "", true, true, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					f.logger.Warn("realtime feed channel closed")
					return
				}
				var ev MessageEvent
				if err := json.Unmarshal(delivery.Body, &ev); err != nil {
					f.logger.Warn("realtime feed: undecodable event", "err", err)
					continue
				}
				handler(ev)
			}
		}
	}()
	return nil
}

// Close tears the subscription down.
func (f *AMQPFeed) Close() error {
	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
