package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/assistant"
	"github.com/scrypster/bizdna/internal/llm"
	"github.com/scrypster/bizdna/internal/metrics"
	"github.com/scrypster/bizdna/internal/profile"
	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// Assistant runs conversation turns.
type Assistant interface {
	Send(ctx context.Context, req assistant.SendRequest) (*assistant.SendResult, error)
	SendWithFallback(ctx context.Context, req assistant.SendRequest, configs ...types.ProviderConfig) (*assistant.SendResult, error)
	ForceRefreshProfile(ctx context.Context, operatorID, scope string) (*types.BehavioralProfile, error)
	History(ctx context.Context, operatorID, conversationID string, limit int) ([]*types.Message, error)
}

// Profiles reads cached profiles.
type Profiles interface {
	GetOrBuild(ctx context.Context, operatorID, scope string, forceRefresh bool) (*types.BehavioralProfile, error)
}

// Memories reads and writes operator memories.
type Memories interface {
	Append(ctx context.Context, operatorID string, kind types.MemoryKind, content string, importance int, memCtx string) (*types.MemoryRecord, error)
	TopK(ctx context.Context, operatorID string, k int) ([]*types.MemoryRecord, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	assistant Assistant
	profiles  Profiles
	memories  Memories
	health    Pinger
	// fallback is the provider chain used when a request names no provider.
	fallback []types.ProviderConfig
	logger   *zap.Logger
}

// NewAPIHandlers creates a new APIHandlers instance. fallback may be empty,
// in which case requests without a provider use the assistant's default.
func NewAPIHandlers(a Assistant, p Profiles, m Memories, health Pinger, fallback []types.ProviderConfig, logger *zap.Logger) *APIHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandlers{
		assistant: a,
		profiles:  p,
		memories:  m,
		health:    health,
		fallback:  fallback,
		logger:    logger,
	}
}

// Register mounts every API route on mux, each wrapped with request metrics.
func (h *APIHandlers) Register(mux *http.ServeMux, m *metrics.Metrics) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, Instrument(pattern, fn, m, h.logger))
	}
	route("POST /api/conversations/send", h.SendMessage)
	route("GET /api/conversations/{id}/messages", h.ListMessages)
	route("GET /api/profiles", h.GetProfile)
	route("POST /api/profiles/refresh", h.RefreshProfile)
	route("GET /api/memories", h.ListMemories)
	route("POST /api/memories", h.CreateMemory)
	route("GET /healthz", h.Healthz)
}

// SendMessage handles POST /api/conversations/send - run one conversation turn.
func (h *APIHandlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req assistant.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.OperatorID == "" {
		req.OperatorID = r.Header.Get("X-Operator-ID")
	}

	var (
		res *assistant.SendResult
		err error
	)
	if req.Provider == nil && len(h.fallback) > 0 {
		res, err = h.assistant.SendWithFallback(r.Context(), req, h.fallback...)
	} else {
		res, err = h.assistant.Send(r.Context(), req)
	}
	if err != nil {
		h.respondTurnError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *APIHandlers) respondTurnError(w http.ResponseWriter, err error) {
	var te *assistant.TurnError
	switch {
	case errors.As(err, &te):
		status := http.StatusBadGateway
		if llm.IsConfigurationError(err) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Warn("turn failed",
			zap.String("conversation", te.ConversationID),
			zap.String("state", string(te.State)),
			zap.Error(err))
		respondJSON(w, status, TurnFailureResponse{
			Error:          err.Error(),
			Code:           http.StatusText(status),
			Label:          te.FailureLabel(),
			ConversationID: te.ConversationID,
			State:          string(te.State),
			Retryable:      te.Retryable(),
		})
	case errors.Is(err, assistant.ErrConversationNotFound):
		respondError(w, http.StatusNotFound, "conversation not found", nil)
	case errors.Is(err, assistant.ErrEmptyMessage), errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusRequestTimeout, "request cancelled", nil)
	default:
		respondError(w, http.StatusInternalServerError, "failed to send message", err)
	}
}

// ListMessages handles GET /api/conversations/{id}/messages.
func (h *APIHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	operatorID := operatorFrom(r)
	if id == "" || operatorID == "" {
		respondError(w, http.StatusBadRequest, "conversation ID and operator_id are required", nil)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), storage.DefaultHistoryLimit)

	msgs, err := h.assistant.History(r.Context(), operatorID, id, limit)
	if err != nil {
		if errors.Is(err, assistant.ErrConversationNotFound) {
			respondError(w, http.StatusNotFound, "conversation not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to list messages", err)
		return
	}
	respondJSON(w, http.StatusOK, MessagesResponse{ConversationID: id, Messages: msgs})
}

// GetProfile handles GET /api/profiles?operator_id=&scope= - return the
// cached profile, building it when missing or stale.
func (h *APIHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	operatorID := operatorFrom(r)
	if operatorID == "" {
		respondError(w, http.StatusBadRequest, "operator_id is required", nil)
		return
	}
	p, err := h.profiles.GetOrBuild(r.Context(), operatorID, r.URL.Query().Get("scope"), false)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// RefreshProfile handles POST /api/profiles/refresh - rebuild regardless of age.
func (h *APIHandlers) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	var req RefreshProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.OperatorID == "" {
		req.OperatorID = r.Header.Get("X-Operator-ID")
	}
	if req.OperatorID == "" {
		respondError(w, http.StatusBadRequest, "operator_id is required", nil)
		return
	}
	p, err := h.assistant.ForceRefreshProfile(r.Context(), req.OperatorID, req.Scope)
	if err != nil {
		respondProfileError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func respondProfileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, profile.ErrIdentityMissing):
		respondError(w, http.StatusNotFound, "operator not found", err)
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid request", err)
	default:
		respondError(w, http.StatusInternalServerError, "failed to build profile", err)
	}
}

// ListMemories handles GET /api/memories?operator_id=&k= - top memories by
// importance, then recency.
func (h *APIHandlers) ListMemories(w http.ResponseWriter, r *http.Request) {
	operatorID := operatorFrom(r)
	if operatorID == "" {
		respondError(w, http.StatusBadRequest, "operator_id is required", nil)
		return
	}
	k := parseInt(r.URL.Query().Get("k"), 0)
	mems, err := h.memories.TopK(r.Context(), operatorID, k)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list memories", err)
		return
	}
	if mems == nil {
		mems = []*types.MemoryRecord{}
	}
	respondJSON(w, http.StatusOK, MemoriesResponse{OperatorID: operatorID, Memories: mems})
}

// CreateMemory handles POST /api/memories.
func (h *APIHandlers) CreateMemory(w http.ResponseWriter, r *http.Request) {
	var req CreateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.OperatorID == "" {
		req.OperatorID = r.Header.Get("X-Operator-ID")
	}
	m, err := h.memories.Append(r.Context(), req.OperatorID, req.Kind, req.Content, req.Importance, req.Context)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "operator_id and content are required", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to store memory", err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// Healthz handles GET /healthz.
func (h *APIHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "storage unavailable", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// operatorFrom reads the operator from the query string or X-Operator-ID.
func operatorFrom(r *http.Request) string {
	if op := r.URL.Query().Get("operator_id"); op != "" {
		return op
	}
	return r.Header.Get("X-Operator-ID")
}

func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; nothing useful can be done on failure.
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
