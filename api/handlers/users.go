package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BaSui01/dailycrew/agent/users"
	"github.com/BaSui01/dailycrew/api"
	"github.com/BaSui01/dailycrew/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// 👤 用户资料、偏好与集成
// =============================================================================

// UserHandler /api/v1/users/{id}...
type UserHandler struct {
	users      users.Repository
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewUserHandler 创建用户处理器。集成更新经由 dispatcher 走协调器，
// 与聊天里的 `update <kind> <credentials>` 共用同一条路径。
func NewUserHandler(repo users.Repository, dispatcher Dispatcher, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{users: repo, dispatcher: dispatcher, logger: logger.With(zap.String("component", "users_api"))}
}

// HandleGet GET /api/v1/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, r, err)
		return
	}
	WriteSuccess(w, r, toUserResponse(u))
}

// HandlePreferences PATCH /api/v1/users/{id}/preferences
func (h *UserHandler) HandlePreferences(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req api.PreferencesRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	if len(req.Preferences) == 0 {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "preferences must not be empty", h.logger)
		return
	}
	u, err := h.users.MergePreferences(r.Context(), id, req.Preferences)
	if err != nil {
		h.writeRepoError(w, r, err)
		return
	}
	WriteSuccess(w, r, toUserResponse(u))
}

// HandleIntegration PUT /api/v1/users/{id}/integrations/{kind}
func (h *UserHandler) HandleIntegration(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	kind, known := types.ParseIntegrationKind(chi.URLParam(r, "kind"))
	if !known {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "unknown integration", h.logger)
		return
	}
	var req api.IntegrationUpdateRequest
	if !DecodeJSONBody(w, r, &req, h.logger) {
		return
	}
	creds := strings.TrimSpace(req.Credentials)
	if creds == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "credentials are required", h.logger)
		return
	}

	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.writeRepoError(w, r, err)
		return
	}
	if !u.OnboardingComplete() {
		WriteErrorMessage(w, r, http.StatusConflict, types.ErrInvalidRequest,
			"finish onboarding in the chat before updating integrations", h.logger)
		return
	}

	ev := types.Event{
		ID:      uuid.NewString(),
		UserID:  id,
		Kind:    types.EventKindMessage,
		Text:    "update " + string(kind) + " " + creds,
		Payload: map[string]any{"source": "api"},
	}
	reply, err := h.dispatcher.Handle(r.Context(), ev)
	if err != nil {
		WriteError(w, r, AsAPIError(err), h.logger)
		return
	}
	WriteSuccess(w, r, api.NewReplyResponse(ev, reply))
}

func (h *UserHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "user id is required", h.logger)
		return "", false
	}
	if !authorizedFor(r, id) {
		WriteErrorMessage(w, r, http.StatusForbidden, types.ErrForbidden, "token subject does not match user", h.logger)
		return "", false
	}
	return id, true
}

func (h *UserHandler) writeRepoError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, users.ErrNotFound) {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "user not found", h.logger)
		return
	}
	WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "user store unavailable").
		WithCause(err).
		WithRetryable(true), h.logger)
}

func toUserResponse(u *users.User) api.UserResponse {
	integrations := make(map[types.IntegrationKind]types.IntegrationStatus, len(types.AllIntegrations()))
	for _, kind := range types.AllIntegrations() {
		integrations[kind] = u.IntegrationStatus(kind)
	}
	return api.UserResponse{
		ID:               u.ID,
		DisplayName:      u.DisplayName,
		Email:            u.Email,
		Timezone:         u.Timezone,
		Preferences:      u.Preferences,
		OnboardingStatus: u.OnboardingStatus,
		OnboardingStep:   u.OnboardingStep,
		Integrations:     integrations,
		LastActiveAt:     u.LastActiveAt,
		CreatedAt:        u.CreatedAt,
	}
}
