// Package assistant runs conversation turns: it assembles context from the
// operator's profile, memories and history, calls a completion provider and
// appends the outcome to the conversation log.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/bizdna/internal/actions"
	"github.com/scrypster/bizdna/internal/llm"
	"github.com/scrypster/bizdna/internal/metrics"
	"github.com/scrypster/bizdna/internal/storage"
	"github.com/scrypster/bizdna/pkg/types"
)

// Completer is the provider gateway.
type Completer interface {
	Complete(ctx context.Context, cfg types.ProviderConfig, systemPrompt string, msgs []types.Message) (*llm.Completion, error)
}

// ProfileSource returns the operator profile, building it when needed.
type ProfileSource interface {
	GetOrBuild(ctx context.Context, operatorID, scope string, forceRefresh bool) (*types.BehavioralProfile, error)
}

// MemorySource returns the highest ranked memories for an operator.
type MemorySource interface {
	TopK(ctx context.Context, operatorID string, k int) ([]*types.MemoryRecord, error)
}

// Config holds orchestrator tunables.
type Config struct {
	HistoryLimit    int
	MemoryK         int
	ProviderTimeout time.Duration
	// DefaultProvider is used when a request carries no provider.
	DefaultProvider types.ProviderConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:    storage.DefaultHistoryLimit,
		MemoryK:         10,
		ProviderTimeout: 30 * time.Second,
	}
}

// SendRequest is one user message.
type SendRequest struct {
	OperatorID string `json:"operator_id"`
	// ConversationID is empty to start a new conversation.
	ConversationID string                `json:"conversation_id,omitempty"`
	Message        string                `json:"message"`
	Scope          string                `json:"scope,omitempty"`
	Provider       *types.ProviderConfig `json:"provider,omitempty"`
}

// SendResult is the outcome of a completed turn.
type SendResult struct {
	ConversationID   string                  `json:"conversation_id"`
	MessageID        string                  `json:"message_id"`
	Content          string                  `json:"content"`
	SuggestedActions []types.SuggestedAction `json:"suggested_actions"`
	ModelUsed        string                  `json:"model_used"`
	Provider         string                  `json:"provider"`
	TokensUsed       int                     `json:"tokens_used"`
	Confidence       int                     `json:"confidence"`
}

// Orchestrator runs conversation turns. Turns in the same conversation are
// serialised; turns in different conversations run concurrently.
type Orchestrator struct {
	completer     Completer
	profiles      ProfileSource
	memories      MemorySource
	conversations storage.ConversationRepository
	cfg           Config
	logger        *zap.Logger
	metrics       *metrics.Metrics
	observer      TurnObserver
	locks         *keyedMutex
	now           func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithObserver sets the turn observer.
func WithObserver(obs TurnObserver) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. Zero-valued Config fields take their defaults.
func New(completer Completer, profiles ProfileSource, memories MemorySource, conversations storage.ConversationRepository, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.MemoryK <= 0 {
		cfg.MemoryK = def.MemoryK
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = def.ProviderTimeout
	}
	o := &Orchestrator{
		completer:     completer,
		profiles:      profiles,
		memories:      memories,
		conversations: conversations,
		cfg:           cfg,
		logger:        zap.NewNop(),
		locks:         newKeyedMutex(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Send runs one turn with the request's provider, or the default provider
// when none is given.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	cfg := o.cfg.DefaultProvider
	if req.Provider != nil {
		cfg = *req.Provider
	}
	return o.run(ctx, req, []types.ProviderConfig{cfg})
}

// SendWithFallback runs one turn, trying configs in order. It moves to the
// next config only on a ProviderError; a ConfigurationError ends the turn.
func (o *Orchestrator) SendWithFallback(ctx context.Context, req SendRequest, configs ...types.ProviderConfig) (*SendResult, error) {
	if len(configs) == 0 {
		return nil, ErrNoProvider
	}
	return o.run(ctx, req, configs)
}

// ForceRefreshProfile rebuilds the operator profile regardless of age.
func (o *Orchestrator) ForceRefreshProfile(ctx context.Context, operatorID, scope string) (*types.BehavioralProfile, error) {
	if operatorID == "" {
		return nil, fmt.Errorf("%w: operator ID is required", storage.ErrInvalidInput)
	}
	return o.profiles.GetOrBuild(ctx, operatorID, scope, true)
}

// History returns up to limit recent messages of a conversation owned by
// operatorID, oldest first. Failed messages are included.
func (o *Orchestrator) History(ctx context.Context, operatorID, conversationID string, limit int) ([]*types.Message, error) {
	if _, err := o.ownedConversation(ctx, operatorID, conversationID); err != nil {
		return nil, err
	}
	return o.conversations.ListMessages(ctx, conversationID, limit)
}

func (o *Orchestrator) ownedConversation(ctx context.Context, operatorID, conversationID string) (*types.Conversation, error) {
	conv, err := o.conversations.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.OperatorID != operatorID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (o *Orchestrator) run(ctx context.Context, req SendRequest, configs []types.ProviderConfig) (*SendResult, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if req.OperatorID == "" {
		return nil, fmt.Errorf("%w: operator ID is required", storage.ErrInvalidInput)
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}
	unlock, err := o.locks.Lock(ctx, convID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t := &turn{o: o, conversationID: convID, state: StateIdle}
	log := o.logger.With(zap.String("operator", req.OperatorID), zap.String("conversation", convID))

	conv, err := o.resolveConversation(ctx, req, convID, text)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, err
		}
		t.to(StateFailed)
		return nil, &TurnError{State: StateIdle, ConversationID: convID, Cause: err}
	}

	prompt, history, confidence, err := o.assemble(ctx, conv, log)
	if err != nil {
		t.to(StateFailed)
		return nil, &TurnError{State: StateIdle, ConversationID: convID, Cause: err}
	}
	t.to(StateContextAssembled)

	userMsg := &types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleUser,
		Content:   text,
		CreatedAt: o.now().UTC(),
		Status:    types.MessageOK,
	}
	history = append(history, *userMsg)

	t.to(StateAwaitingProvider)
	completion, used, err := o.complete(ctx, configs, prompt, history, log)
	if err != nil {
		userMsg.Status = types.MessageFailed
		userMsg.Retryable = true
		userMsg.Error = err.Error()
		// The user message is kept even when the caller has gone away.
		if perr := o.conversations.AppendMessages(context.WithoutCancel(ctx), convID, userMsg); perr != nil {
			log.Error("failed to record failed turn", zap.Error(perr))
		}
		t.to(StateFailed)
		return nil, &TurnError{State: StateAwaitingProvider, ConversationID: convID, Provider: used.Provider, Cause: err}
	}

	suggested := actions.Extract(completion.Content)
	reply := &types.Message{
		ID:               uuid.NewString(),
		Role:             types.RoleAssistant,
		Content:          completion.Content,
		CreatedAt:        o.now().UTC(),
		ModelUsed:        completion.Model,
		TokensUsed:       completion.TokensUsed,
		Confidence:       confidence,
		SuggestedActions: suggested,
		Status:           types.MessageOK,
	}
	if err := o.conversations.AppendMessages(context.WithoutCancel(ctx), convID, userMsg, reply); err != nil {
		t.to(StateFailed)
		return nil, &TurnError{State: StateAwaitingProvider, ConversationID: convID, Provider: used.Provider, Cause: fmt.Errorf("persist turn: %w", err)}
	}
	t.to(StateCompleted)

	log.Debug("turn completed",
		zap.String("provider", completion.Provider),
		zap.String("model", completion.Model),
		zap.Int("tokens", completion.TokensUsed),
		zap.Int("actions", len(suggested)))

	return &SendResult{
		ConversationID:   convID,
		MessageID:        reply.ID,
		Content:          reply.Content,
		SuggestedActions: suggested,
		ModelUsed:        completion.Model,
		Provider:         completion.Provider,
		TokensUsed:       completion.TokensUsed,
		Confidence:       confidence,
	}, nil
}

// resolveConversation loads an existing conversation owned by the operator
// or creates a new one titled after the first message.
func (o *Orchestrator) resolveConversation(ctx context.Context, req SendRequest, convID, text string) (*types.Conversation, error) {
	if req.ConversationID != "" {
		return o.ownedConversation(ctx, req.OperatorID, req.ConversationID)
	}
	now := o.now().UTC()
	conv := &types.Conversation{
		ID:         convID,
		OperatorID: req.OperatorID,
		Scope:      req.Scope,
		Title:      title(text),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// assemble loads history, profile and memories and renders the system
// prompt. Only a history failure is fatal.
func (o *Orchestrator) assemble(ctx context.Context, conv *types.Conversation, log *zap.Logger) (string, []types.Message, int, error) {
	msgs, err := o.conversations.ListMessages(ctx, conv.ID, o.cfg.HistoryLimit)
	if err != nil {
		return "", nil, 0, fmt.Errorf("load history: %w", err)
	}
	history := make([]types.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		if m.Status == types.MessageFailed {
			continue
		}
		history = append(history, *m)
	}

	p, err := o.profiles.GetOrBuild(ctx, conv.OperatorID, conv.Scope, false)
	if err != nil {
		log.Warn("profile unavailable, continuing with empty profile", zap.String("scope", conv.Scope), zap.Error(err))
		p = types.EmptyProfile(conv.OperatorID, conv.Scope)
	}

	mems, err := o.memories.TopK(ctx, conv.OperatorID, o.cfg.MemoryK)
	if err != nil {
		log.Warn("memories unavailable", zap.Error(err))
		mems = nil
	}

	return SystemPrompt(p, mems), history, p.ConfidenceScore, nil
}

// complete calls each config in turn under its own timeout. It stops at the
// first success, the first ConfigurationError, or when ctx is done.
func (o *Orchestrator) complete(ctx context.Context, configs []types.ProviderConfig, prompt string, history []types.Message, log *zap.Logger) (*llm.Completion, types.ProviderConfig, error) {
	var lastErr error
	var used types.ProviderConfig
	for i, cfg := range configs {
		used = cfg
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		completion, err := o.completer.Complete(callCtx, cfg, prompt, history)
		cancel()
		if err == nil {
			return completion, cfg, nil
		}
		lastErr = err
		if llm.IsConfigurationError(err) || ctx.Err() != nil {
			break
		}
		if i < len(configs)-1 {
			log.Warn("provider failed, falling back",
				zap.String("provider", cfg.Provider),
				zap.String("next", configs[i+1].Provider),
				zap.Error(err))
		}
	}
	return nil, used, lastErr
}

const maxTitleRunes = 60

func title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= maxTitleRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
}
