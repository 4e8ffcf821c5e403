package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/dailycrew/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrClosed 发布者已关闭
var ErrClosed = errors.New("broker publisher closed")

// Publisher 向 topic 交换机发布信封。连接断开后在下一次发布时重连。
type Publisher struct {
	opts     ConnectionOptions
	exchange string
	logger   *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
}

// NewPublisher 连接并声明交换机
func NewPublisher(ctx context.Context, opts ConnectionOptions, exchange string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		opts:     opts,
		exchange: exchange,
		logger:   logger.With(zap.String("component", "broker_publisher")),
	}
	if _, err := p.connection(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connection(ctx context.Context) (*amqp.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}

	conn, err := DialWithRetry(ctx, p.opts, p.logger)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.conn = conn
	return conn, nil
}

// Publish 发布信封
func (p *Publisher) Publish(ctx context.Context, key string, env Envelope) error {
	conn, err := p.connection(ctx)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	cid := ""
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: cid,
		Type:          env.Meta.Type,
		AppId:         Producer,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	p.logger.Debug("published", zap.String("key", key), zap.String("type", env.Meta.Type))
	return nil
}

// PublishReply 以 reply.<kind> 发布回复，correlation_id 为事件 ID
func (p *Publisher) PublishReply(ctx context.Context, ev types.Event, reply *types.Reply) error {
	msg := ReplyMessage{EventID: ev.ID, UserID: ev.UserID, Kind: ev.Kind, Reply: reply}
	return p.Publish(ctx, ReplyRoutingKey(ev.Kind), NewEnvelope(TypeReply, msg, ev.ID))
}

// Close 关闭连接
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}
