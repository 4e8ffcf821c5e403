package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Group 一起启动、一起关闭的一组服务器
type Group struct {
	managers []*Manager
	logger   *zap.Logger
}

// NewGroup 创建服务器组
func NewGroup(logger *zap.Logger, managers ...*Manager) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{managers: managers, logger: logger.With(zap.String("component", "server_group"))}
}

// Start 依次启动，任一失败时关闭已启动的服务器
func (g *Group) Start(ctx context.Context) error {
	for i, m := range g.managers {
		if err := m.Start(); err != nil {
			for _, started := range g.managers[:i] {
				_ = started.Shutdown(ctx)
			}
			return err
		}
	}
	return nil
}

// Wait 阻塞直到 ctx 结束或任一服务器异步失败。ctx 结束时返回 nil。
func (g *Group) Wait(ctx context.Context) error {
	failed := make(chan error, len(g.managers))
	stop := make(chan struct{})
	defer close(stop)

	for _, m := range g.managers {
		go func() {
			select {
			case err := <-m.Errors():
				failed <- fmt.Errorf("%s server: %w", m.Name(), err)
			case <-stop:
			}
		}()
	}

	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested")
		return nil
	case err := <-failed:
		g.logger.Error("server exited unexpectedly", zap.Error(err))
		return err
	}
}

// Shutdown 关闭全部服务器
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for _, m := range g.managers {
		if err := m.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Addr 返回指定名称服务器的监听地址，未找到时为空
func (g *Group) Addr(name string) string {
	for _, m := range g.managers {
		if m.Name() == name {
			return m.Addr()
		}
	}
	return ""
}
