package interaction

import (
	"context"
	"fmt"

	"github.com/BaSui01/dailycrew/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Backends 构建 sink 所需的共享连接
type Backends struct {
	DB        *gorm.DB
	Publisher EnvelopePublisher
}

// NewFromConfig 按配置构建扇出 sink，返回的 closer 负责释放 sink 自己打开的连接
func NewFromConfig(ctx context.Context, cfg config.InteractionConfig, b Backends, logger *zap.Logger) (*Fanout, func(context.Context) error, error) {
	var (
		sinks   []Sink
		closers []func(context.Context) error
	)
	closeAll := func(ctx context.Context) error {
		var first error
		for _, c := range closers {
			if err := c(ctx); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	for _, name := range cfg.Sinks {
		switch name {
		case "database":
			if b.DB == nil {
				return nil, nil, fmt.Errorf("interaction sink %q requires a database", name)
			}
			sinks = append(sinks, NewGormSink(b.DB))
		case "mongo":
			s, closer, err := ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
			if err != nil {
				_ = closeAll(ctx)
				return nil, nil, err
			}
			sinks = append(sinks, s)
			closers = append(closers, closer)
		case "broker":
			if b.Publisher == nil {
				_ = closeAll(ctx)
				return nil, nil, fmt.Errorf("interaction sink %q requires the broker", name)
			}
			sinks = append(sinks, NewPublisherSink(b.Publisher))
		case "memory":
			sinks = append(sinks, NewMemorySink())
		default:
			_ = closeAll(ctx)
			return nil, nil, fmt.Errorf("unknown interaction sink %q", name)
		}
	}
	return NewFanout(logger, sinks...), closeAll, nil
}
