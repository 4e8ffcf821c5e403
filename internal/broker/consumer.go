package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/dailycrew/internal/pool"
	"github.com/BaSui01/dailycrew/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Delivery outcomes reported to the metrics hook.
const (
	OutcomeAck     = "ack"
	OutcomePoison  = "poison"
	OutcomeRequeue = "requeue"
	OutcomeDropped = "dropped"
)

// Handler 处理一个入站事件
type Handler interface {
	Handle(ctx context.Context, ev types.Event) (*types.Reply, error)
}

// ReplyPublisher 发布处理结果
type ReplyPublisher interface {
	PublishReply(ctx context.Context, ev types.Event, reply *types.Reply) error
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Exchange       string
	Queue          string
	BindingKey     string
	Prefetch       int
	HandlerTimeout time.Duration
}

// Consumer 从队列消费事件并交给 Handler
type Consumer struct {
	opts    ConnectionOptions
	cfg     ConsumerConfig
	handler Handler
	replies ReplyPublisher
	pool    *pool.GoroutinePool
	logger  *zap.Logger

	// OnOutcome 每条投递处理完毕后回调，可为空
	OnOutcome func(outcome string)
}

// NewConsumer 创建消费者
func NewConsumer(opts ConnectionOptions, cfg ConsumerConfig, handler Handler, replies ReplyPublisher, workers *pool.GoroutinePool, logger *zap.Logger) *Consumer {
	if cfg.BindingKey == "" {
		cfg.BindingKey = "event.#"
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		opts:    opts,
		cfg:     cfg,
		handler: handler,
		replies: replies,
		pool:    workers,
		logger:  logger.With(zap.String("component", "broker_consumer"), zap.String("queue", cfg.Queue)),
	}
}

// Run 消费直到 ctx 取消；连接断开时重连
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("consumer stopped, reconnecting", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.Delay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := DialWithRetry(ctx, c.opts, c.logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := c.declare(ch); err != nil {
		return err
	}
	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	closeCh := ch.NotifyClose(make(chan *amqp.Error, 1))
	c.logger.Info("consumer started", zap.Int("prefetch", c.cfg.Prefetch))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closeCh:
			if amqpErr == nil {
				return errors.New("channel closed")
			}
			return amqpErr
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) declare(ch *amqp.Channel) error {
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(c.cfg.Queue, c.cfg.BindingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// dispatch hands a delivery to the pool; with no pool it is processed inline.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	if c.pool == nil {
		c.Process(ctx, d)
		return
	}
	err := c.pool.Submit(ctx, func(ctx context.Context) error {
		c.Process(ctx, d)
		return nil
	})
	if err != nil {
		c.logger.Warn("worker pool rejected delivery", zap.Error(err))
		_ = d.Nack(false, true)
		c.report(OutcomeRequeue)
	}
}

// Process 处理单条投递并负责 ack/nack
func (c *Consumer) Process(ctx context.Context, d amqp.Delivery) string {
	ev, err := DecodeEvent(d.Body)
	if err != nil {
		c.logger.Warn("undecodable delivery", zap.String("message_id", d.MessageId), zap.Error(err))
		_ = d.Nack(false, false)
		return c.report(OutcomePoison)
	}

	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandlerTimeout)
	defer cancel()

	reply, err := c.handler.Handle(hctx, ev)
	if err != nil {
		if types.IsRetryable(err) {
			c.logger.Warn("handler failed, requeueing", zap.String("event_id", ev.ID), zap.Error(err))
			_ = d.Nack(false, true)
			return c.report(OutcomeRequeue)
		}
		c.logger.Error("handler failed, dropping", zap.String("event_id", ev.ID), zap.Error(err))
		_ = d.Nack(false, false)
		return c.report(OutcomeDropped)
	}

	if reply != nil && !reply.Silent && c.replies != nil {
		if err := c.replies.PublishReply(hctx, ev, reply); err != nil {
			c.logger.Error("failed to publish reply", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
	_ = d.Ack(false)
	return c.report(OutcomeAck)
}

func (c *Consumer) report(outcome string) string {
	if c.OnOutcome != nil {
		c.OnOutcome(outcome)
	}
	return outcome
}
