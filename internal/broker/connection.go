package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/dailycrew/internal/retry"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DialFunc 建立 AMQP 连接，测试中可替换
type DialFunc func(url string) (*amqp.Connection, error)

// ConnectionOptions 连接参数
type ConnectionOptions struct {
	URL           string
	RetryAttempts int
	Delay         time.Duration
	Dial          DialFunc
}

// DialWithRetry 以指数退避连接 RabbitMQ，尊重 ctx 取消
func DialWithRetry(ctx context.Context, opts ConnectionOptions, logger *zap.Logger) (*amqp.Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dial := opts.Dial
	if dial == nil {
		dial = amqp.Dial
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	policy := retry.Policy{
		MaxRetries:   attempts - 1,
		InitialDelay: opts.Delay,
		MaxDelay:     60 * time.Second,
		Multiplier:   2,
		RetryIf:      func(error) bool { return true },
	}
	r := retry.NewBackoff(&policy, logger.With(zap.String("component", "broker")))

	conn, err := retry.DoValue(ctx, r, func(ctx context.Context) (*amqp.Connection, error) {
		return dial(opts.URL)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}
