package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"
)

const (
	heartbeat   = 10 * time.Second
	dialTimeout = 30 * time.Second
)

// AMQPPublisher publishes events to a durable direct exchange, reconnecting on demand.
// Every blocking step, including waiting for another publisher, gives up when ctx does.
type AMQPPublisher struct {
	sem      chan struct{}
	amqpURL  string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	now      func() time.Time
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(ctx context.Context, amqpURL, exchange string) (*AMQPPublisher, error) {
	p := newAMQPPublisher(amqpURL, exchange)

	if err := p.lock(ctx); err != nil {
		return nil, err
	}
	defer p.unlock()
	if err := p.connectLocked(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(amqpURL, exchange string) *AMQPPublisher {
	return &AMQPPublisher{sem: make(chan struct{}, 1), amqpURL: amqpURL, exchange: exchange, now: time.Now}
}

func (p *AMQPPublisher) lock(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	}
}

func (p *AMQPPublisher) unlock() { <-p.sem }

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(NewEvent(routingKey, payload, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now(),
	}

	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish cancelled: %w", err)
	}

	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		p.closeLocked()
		if err := p.connectLocked(ctx); err != nil {
			return err
		}
	}

	err = p.channel.Publish(p.exchange, routingKey, false, false, publishing)
	if err != nil && isConnClosedErr(err) {
		p.closeLocked()
		if connErr := p.connectLocked(ctx); connErr != nil {
			return fmt.Errorf("failed to publish event: %w (reconnect failed: %v)", err, connErr)
		}
		err = p.channel.Publish(p.exchange, routingKey, false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.sem <- struct{}{}
	defer p.unlock()

	var err error
	if p.channel != nil {
		if chErr := p.channel.Close(); chErr != nil {
			log.WithError(chErr).Warn("events.amqp.close_channel_failed")
			err = chErr
		}
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil {
			log.WithError(connErr).Warn("events.amqp.close_connection_failed")
			if err == nil {
				err = connErr
			}
		}
		p.conn = nil
	}
	return err
}

// connectLocked dials with ctx's deadline applied to the socket, so a broker that
// accepts TCP but never answers the handshake cannot stall the caller past it.
func (p *AMQPPublisher) connectLocked(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(dialTimeout)
	}

	var raw net.Conn
	conn, err := amqp.DialConfig(p.amqpURL, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := c.SetDeadline(deadline); err != nil {
				c.Close()
				return nil, err
			}
			raw = c
			return c, nil
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	// The handshake clears the socket deadline; keep it until the exchange is declared.
	_ = raw.SetDeadline(deadline)
	defer func() { _ = raw.SetDeadline(time.Time{}) }()

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %q: %w", p.exchange, err)
	}

	p.conn = conn
	p.channel = ch
	log.WithField("exchange", p.exchange).Info("events.amqp.connected")
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

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}
