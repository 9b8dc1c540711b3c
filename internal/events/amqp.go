package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

// AMQPPublisher publishes persistent JSON messages to a durable direct
// exchange, reconnecting once when the connection has dropped.
type AMQPPublisher struct {
	mu       sync.Mutex
	amqpURL  string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
}

var _ Publisher = (*AMQPPublisher)(nil)

// NewAMQPPublisher connects and declares the exchange.
func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{amqpURL: amqpURL, exchange: exchange}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// Publish routes event by its name.
func (p *AMQPPublisher) Publish(ctx context.Context, event IssueEvent) error {
	publishing, err := buildPublishing(event)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		p.closeLocked()
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	err = p.channel.Publish(p.exchange, event.Event, false, false, publishing)
	if err != nil && isConnClosedErr(err) {
		p.closeLocked()
		if connErr := p.connectLocked(); connErr != nil {
			return fmt.Errorf("publish %s: %w (reconnect failed: %v)", event.Event, err, connErr)
		}
		err = p.channel.Publish(p.exchange, event.Event, false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Event, err)
	}
	return nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.channel != nil {
		if chErr := p.channel.Close(); chErr != nil {
			log.WithError(chErr).Warn("close amqp channel")
			err = chErr
		}
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil {
			log.WithError(connErr).Warn("close amqp connection")
			if err == nil {
				err = connErr
			}
		}
		p.conn = nil
	}
	return err
}

func (p *AMQPPublisher) connectLocked() error {
	conn, err := amqp.Dial(p.amqpURL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func buildPublishing(event IssueEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         event.Event,
	}, nil
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}
