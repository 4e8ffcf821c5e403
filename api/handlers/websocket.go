package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/dailycrew/api"
	"github.com/BaSui01/dailycrew/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 64 << 10
)

// ConnGauge 连接数指标，*metrics.Collector 实现了它
type ConnGauge interface {
	WebsocketOpened()
	WebsocketClosed()
}

// =============================================================================
// 📡 Hub：按用户索引的实时连接
// =============================================================================

type wsClient struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *wsClient) write(ctx context.Context, f api.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, data)
}

// Hub 维护每个用户的 websocket 连接，并把定时回复推送给在线用户
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]struct{}
	logger  *zap.Logger
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]map[*wsClient]struct{}),
		logger:  logger.With(zap.String("component", "ws_hub")),
	}
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// Connected 用户当前连接数
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Deliver 把回复推送到用户的全部连接。用户不在线时不是错误，回复已记录在会话中。
func (h *Hub) Deliver(ctx context.Context, ev types.Event, reply *types.Reply) error {
	if reply == nil || reply.Silent {
		return nil
	}
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[ev.UserID]))
	for c := range h.clients[ev.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.logger.Debug("no live connection for reply", zap.String("user_id", ev.UserID), zap.String("event_id", ev.ID))
		return nil
	}

	frame := replyFrame(ev, reply)
	var errs []error
	for _, c := range targets {
		if err := c.write(ctx, frame); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func replyFrame(ev types.Event, reply *types.Reply) api.Frame {
	return api.Frame{
		Type:    api.FrameReply,
		EventID: ev.ID,
		Kind:    ev.Kind,
		Text:    reply.Text,
		Blocks:  reply.Blocks,
		Time:    time.Now().UTC(),
	}
}

// =============================================================================
// 🔌 WebSocketHandler
// =============================================================================

// WebSocketHandler GET /api/v1/ws：入站文本帧转为 message 事件，回复写回同一连接
type WebSocketHandler struct {
	hub            *Hub
	dispatcher     Dispatcher
	gauge          ConnGauge
	originPatterns []string
	logger         *zap.Logger
}

// NewWebSocketHandler 创建 websocket 处理器。originPatterns 为空时只允许同源。
func NewWebSocketHandler(hub *Hub, dispatcher Dispatcher, gauge ConnGauge, originPatterns []string, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		hub:            hub,
		dispatcher:     dispatcher,
		gauge:          gauge,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("component", "ws")),
	}
}

// ServeHTTP 升级连接并运行读循环直到客户端断开
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "user_id query parameter is required", h.logger)
		return
	}
	if !authorizedFor(r, userID) {
		WriteErrorMessage(w, r, http.StatusForbidden, types.ErrForbidden, "token subject does not match user_id", h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	conn.SetReadLimit(wsReadLimit)

	client := &wsClient{userID: userID, conn: conn}
	h.hub.register(client)
	if h.gauge != nil {
		h.gauge.WebsocketOpened()
	}
	defer func() {
		h.hub.unregister(client)
		if h.gauge != nil {
			h.gauge.WebsocketClosed()
		}
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	h.logger.Info("websocket connected", zap.String("user_id", userID))
	ctx := r.Context()
	if err := client.write(ctx, api.Frame{Type: api.FrameReady, Time: time.Now().UTC()}); err != nil {
		return
	}
	h.readLoop(ctx, client)
	h.logger.Info("websocket disconnected", zap.String("user_id", userID))
}

func (h *WebSocketHandler) readLoop(ctx context.Context, c *wsClient) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		ev, ok := inboundEvent(c.userID, data)
		if !ok {
			continue
		}

		reply, err := h.dispatcher.Handle(ctx, ev)
		if err != nil {
			apiErr := AsAPIError(err)
			_ = c.write(ctx, api.Frame{
				Type:    api.FrameError,
				EventID: ev.ID,
				Code:    string(apiErr.Code),
				Text:    apiErr.Message,
				Time:    time.Now().UTC(),
			})
			continue
		}
		if reply == nil || reply.Silent {
			continue
		}
		if err := c.write(ctx, replyFrame(ev, reply)); err != nil {
			return
		}
	}
}

// inboundEvent JSON 帧取 text/payload/id，其他文本整体作为消息
func inboundEvent(userID string, data []byte) (types.Event, bool) {
	ev := types.Event{UserID: userID, Kind: types.EventKindMessage}
	var in api.InboundFrame
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "{") && json.Unmarshal(data, &in) == nil {
		ev.ID = in.ID
		ev.Text = in.Text
		ev.Payload = in.Payload
	} else {
		ev.Text = string(data)
	}
	if strings.TrimSpace(ev.Text) == "" {
		return ev, false
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return ev, true
}
