// Package bm carries replicated mutations over a RabbitMQ fanout exchange as
// an alternative to direct peer pushes.
package bm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ride-share/internal/config"
	"ride-share/internal/database-service/core/ports/driven"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	syncExchange   = "db_sync" // fanout
	originHeader   = "origin"
	reconnInterval = 5 * time.Second
	publishTimeout = 3 * time.Second
)

var errClosed = errors.New("amqp closed")

type RabbitMQ struct {
	ctx    context.Context
	cfg    config.RabbitMqconfig
	nodeID string
	log    mylogger.Logger

	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting bool
	closed       bool

	// subscribe opens a fresh delivery stream on the current channel.
	subscribe func() (<-chan amqp.Delivery, error)
	apply     func(ctx context.Context, m protocol.Message)
	retry     time.Duration
}

var _ driven.IPublisher = (*RabbitMQ)(nil)

func New(ctx context.Context, cfg config.RabbitMqconfig, nodeID string, log mylogger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		ctx:    ctx,
		cfg:    cfg,
		nodeID: nodeID,
		log:    log,
		retry:  reconnInterval,
	}
	r.subscribe = r.declareAndConsume
	if err := r.connect(); err != nil {
		return nil, fmt.Errorf("rabbit connect: %w", err)
	}
	return r, nil
}

// Publish never blocks on a dead broker; the mutation is dropped and a
// reconnect is scheduled.
func (r *RabbitMQ) Publish(ctx context.Context, mutation protocol.Message) {
	log := r.log.Action("amqp_publish")

	pub, err := toPublishing(mutation, r.nodeID)
	if err != nil {
		log.Error("encode mutation", err)
		return
	}

	ch := r.channel()
	if ch == nil {
		log.Error("amqp not alive", errClosed)
		go r.reconnect(r.ctx)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := ch.PublishWithContext(pubCtx, syncExchange, "", false, false, pub); err != nil {
		log.Error("publish mutation", err, "type", mutation.Type)
	}
}

// Consume applies every mutation published by other nodes until ctx is done.
// When the broker drops the stream, the queue is declared and bound again
// once the connection is back.
func (r *RabbitMQ) Consume(ctx context.Context, apply func(ctx context.Context, m protocol.Message)) error {
	deliveries, err := r.subscribe()
	if err != nil {
		return err
	}
	r.apply = apply
	go r.consume(ctx, deliveries)
	return nil
}

func (r *RabbitMQ) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	log := r.log.Action("amqp_consume")
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn("delivery channel closed, resubscribing")
				if deliveries = r.resubscribe(ctx); deliveries == nil {
					return
				}
				log.Info("consuming again")
				continue
			}
			m, foreign, err := fromDelivery(d, r.nodeID)
			if err != nil {
				log.Warn("dropping undecodable mutation", "reason", err.Error())
				continue
			}
			if !foreign {
				continue
			}
			r.apply(ctx, m)
		}
	}
}

// resubscribe retries until a new stream is open. It returns nil once ctx
// is done.
func (r *RabbitMQ) resubscribe(ctx context.Context) <-chan amqp.Delivery {
	t := time.NewTicker(r.retry)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			deliveries, err := r.subscribe()
			if err == nil {
				return deliveries
			}
			r.log.Action("amqp_consume").Debug("resubscribe failed", "reason", err.Error())
		}
	}
}

// declareAndConsume binds a queue exclusive to this node. It disappears with
// the connection, so every reconnect needs a new one.
func (r *RabbitMQ) declareAndConsume() (<-chan amqp.Delivery, error) {
	ch := r.channel()
	if ch == nil {
		go r.reconnect(r.ctx)
		return nil, errClosed
	}

	q, err := ch.QueueDeclare(
		"",
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", syncExchange, false, nil); err != nil {
		return nil, fmt.Errorf("queue bind: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (r *RabbitMQ) IsAlive() bool {
	return r.channel() != nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.ch != nil && !r.ch.IsClosed() {
		if err := r.ch.Close(); err != nil {
			return fmt.Errorf("close channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

func (r *RabbitMQ) channel() *amqp.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() || r.ch == nil || r.ch.IsClosed() {
		return nil
	}
	return r.ch
}

func (r *RabbitMQ) connect() error {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		r.cfg.User, r.cfg.Password, r.cfg.Host, r.cfg.Port, r.cfg.VHost,
	)
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(syncExchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	old := r.conn
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()
	if old != nil && !old.IsClosed() {
		_ = old.Close()
	}

	go r.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return nil
}

// watch reconnects after the broker drops the connection. A Close from this
// side closes the channel without an error and ends the watch.
func (r *RabbitMQ) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed
	if !ok {
		return
	}
	r.log.Action("amqp_connection_lost").Warn("broker closed the connection", "reason", amqpErr.Error())
	r.reconnect(r.ctx)
}

func (r *RabbitMQ) reconnect(ctx context.Context) {
	r.mu.Lock()
	if r.reconnecting || r.closed {
		r.mu.Unlock()
		return
	}
	r.reconnecting = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.reconnecting = false
		r.mu.Unlock()
	}()

	t := time.NewTicker(reconnInterval)
	defer t.Stop()
	l := r.log.Action("mb_reconnecting")

	for {
		select {
		case <-t.C:
			if r.IsAlive() {
				return
			}
			if err := r.connect(); err == nil {
				l.Action("mb_reconnection_completed").Info("reconnected")
				return
			}
			l.Info("reconnect failed")
		case <-ctx.Done():
			return
		}
	}
}

func toPublishing(m protocol.Message, nodeID string) (amqp.Publishing, error) {
	body, err := protocol.Encode(m)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/x-ndjson",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.RequestID,
		Headers:      amqp.Table{originHeader: nodeID},
		Body:         body,
	}, nil
}

// fromDelivery reports foreign=false for messages this node published itself.
func fromDelivery(d amqp.Delivery, nodeID string) (protocol.Message, bool, error) {
	origin, _ := d.Headers[originHeader].(string)
	m, err := protocol.Decode(d.Body)
	if err != nil {
		return protocol.Message{}, false, err
	}
	return m, origin != nodeID, nil
}
