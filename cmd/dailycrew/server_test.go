package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func localURL(t *testing.T, addr, path string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	return "http://127.0.0.1:" + port + path
}

// 每个测试二进制只能创建一次 Server：Prometheus 指标注册在默认 registry 上
func TestServer_Lifecycle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Database.Driver = "sqlite"
	cfg.Database.Name = filepath.Join(t.TempDir(), "dailycrew.db")
	cfg.Database.AutoMigrate = true
	cfg.Scheduler.Tick = time.Hour
	cfg.Interaction.Sinks = []string{"database", "memory"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := NewServer(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	defer srv.Shutdown(context.Background())

	apiAddr := srv.servers.Addr("api")
	require.NotEmpty(t, apiAddr)
	assert.Empty(t, srv.servers.Addr("metrics"), "metrics server disabled with port 0")

	resp, err := http.Get(localURL(t, apiAddr, "/ready"))
	require.NoError(t, err)
	var health struct {
		Status string                     `json:"status"`
		Checks map[string]json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health.Status)
	assert.Contains(t, health.Checks, "database")
	assert.Contains(t, health.Checks, "session_store")

	// 新用户的第一条消息进入引导流程
	resp, err = http.Post(localURL(t, apiAddr, "/api/v1/events"), "application/json",
		strings.NewReader(`{"user_id":"U1","text":"hello"}`))
	require.NoError(t, err)
	var reply struct {
		Success bool `json:"success"`
		Data    struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, reply.Success)
	assert.NotEmpty(t, reply.Data.Text)

	resp, err = http.Get(localURL(t, apiAddr, "/api/v1/users/U1"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 上下文到期属于正常关闭
	waitCtx, waitCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer waitCancel()
	assert.NoError(t, srv.Wait(waitCtx))

	srv.Shutdown(context.Background())
	srv.Shutdown(context.Background())
}
