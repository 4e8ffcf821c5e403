package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/dailycrew/api"
	"github.com/BaSui01/dailycrew/internal/ctxkeys"
	"github.com/BaSui01/dailycrew/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher 处理一个事件并返回回复，*coordinator.Coordinator 实现了它
type Dispatcher interface {
	Handle(ctx context.Context, ev types.Event) (*types.Reply, error)
}

// =============================================================================
// 📨 事件入口
// =============================================================================

// EventHandler POST /api/v1/events
type EventHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewEventHandler 创建事件处理器
func NewEventHandler(dispatcher Dispatcher, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{dispatcher: dispatcher, logger: logger.With(zap.String("component", "events_api"))}
}

// HandleEvent 同步处理一个事件。webhook 与定时事件同样走这里，便于外部系统触发。
func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var req api.EventRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	ev := req.ToEvent()
	if ev.UserID == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "user_id is required", h.logger)
		return
	}
	if !ev.Kind.Valid() {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "unknown event kind: "+string(ev.Kind), h.logger)
		return
	}
	if !authorizedFor(r, ev.UserID) {
		WriteErrorMessage(w, r, http.StatusForbidden, types.ErrForbidden, "token subject does not match user_id", h.logger)
		return
	}

	// 客户端可用返回的 event_id 重放
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	reply, err := h.dispatcher.Handle(r.Context(), ev)
	if err != nil {
		WriteError(w, r, AsAPIError(err), h.logger)
		return
	}
	WriteSuccess(w, r, api.NewReplyResponse(ev, reply))
}

// authorizedFor JWT 认证时 subject 必须等于目标用户；API Key 认证不限制用户
func authorizedFor(r *http.Request, userID string) bool {
	subject, ok := ctxkeys.UserID(r.Context())
	return !ok || subject == userID
}
