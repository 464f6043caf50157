package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ellahq/ella/internal/history"
	"github.com/ellahq/ella/internal/observability"
	"github.com/ellahq/ella/internal/policy"
	"github.com/ellahq/ella/internal/prompt"
	"github.com/ellahq/ella/internal/provider"
)

const commitTimeout = 5 * time.Second

// ExchangeRequest is one inbound user message.
type ExchangeRequest struct {
	OwnerID string
	Message string
	// ClientTimestamp is advisory only (RFC 3339); insertion order stays
	// authoritative. Unparseable values are ignored.
	ClientTimestamp string
}

// ExchangeResult carries the provider reply after it has been committed.
type ExchangeResult struct {
	Reply string
}

// Engine coordinates one exchange: validate, commit the user turn, assemble
// the bounded context, call the provider, commit the assistant turn.
type Engine struct {
	store   history.Store
	client  provider.Client
	persona string
	window  int
	metrics *observability.Metrics
	log     zerolog.Logger

	gateMu sync.Mutex
	gates  map[string]chan struct{}
}

func NewEngine(store history.Store, client provider.Client, persona string, window int, metrics *observability.Metrics, log zerolog.Logger) *Engine {
	if window < 0 {
		window = 0
	}
	return &Engine{
		store:   store,
		client:  client,
		persona: persona,
		window:  window,
		metrics: metrics,
		log:     log,
		gates:   make(map[string]chan struct{}),
	}
}

// Exchange runs the request state machine. On provider failure the user's
// turn stays in history and no assistant turn is added; validation failures
// mutate nothing.
func (e *Engine) Exchange(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	message := strings.TrimSpace(req.Message)
	if ownerID == "" {
		return ExchangeResult{}, newError(CodeInvalidRequest, "missing_owner_id", nil)
	}
	if message == "" {
		return ExchangeResult{}, newError(CodeInvalidRequest, "empty_message", nil)
	}

	// Serialize the whole exchange per owner so two concurrent requests for
	// the same owner never assemble overlapping contexts. Cross-owner
	// requests proceed concurrently; the gate is not a store lock and is
	// never held by the store itself.
	release, err := e.acquireOwner(ctx, ownerID)
	if err != nil {
		return ExchangeResult{}, newError(CodeInternal, "canceled_waiting_for_owner", err)
	}
	defer release()

	e.metrics.ActiveExchanges.Inc()
	defer e.metrics.ActiveExchanges.Dec()

	redacted, changed := policy.RedactPII(message)
	userTurn := history.Turn{
		Speaker:   history.SpeakerUser,
		Text:      redacted,
		Redacted:  changed,
		CreatedAt: parseClientTimestamp(req.ClientTimestamp),
	}
	if err := e.store.Append(ctx, ownerID, userTurn); err != nil {
		e.metrics.Exchanges.WithLabelValues(string(CodeInternal)).Inc()
		return ExchangeResult{}, newError(CodeInternal, "history_append_failed", err)
	}
	e.metrics.HistoryAppends.WithLabelValues(string(history.SpeakerUser)).Inc()

	// Last K prior turns: fetch K+1 and drop the message we just appended so
	// it is not double-counted against the trailing entry.
	recent, err := e.store.LastK(ctx, ownerID, e.window+1)
	if err != nil {
		e.metrics.Exchanges.WithLabelValues(string(CodeInternal)).Inc()
		return ExchangeResult{}, newError(CodeInternal, "history_read_failed", err)
	}
	if len(recent) > 0 {
		recent = recent[:len(recent)-1]
	}

	messages, err := prompt.Assemble(e.persona, recent, redacted)
	if err != nil {
		return ExchangeResult{}, newError(CodeInvalidRequest, "assemble_failed", err)
	}

	start := time.Now()
	reply, err := e.client.Complete(ctx, messages)
	e.metrics.ObserveUpstreamLatency(time.Since(start))
	if err != nil {
		classified := e.classifyProviderError(err)
		e.metrics.Exchanges.WithLabelValues(string(CodeOf(classified))).Inc()
		e.metrics.ProviderErrors.WithLabelValues(string(CodeOf(classified))).Inc()
		e.log.Warn().Str("owner", ownerID).Err(err).Msg("provider call failed; user turn retained")
		return ExchangeResult{}, classified
	}

	// A completed provider call is committed even if the originating caller
	// has gone away; the commit context is detached so the result is stored
	// whole or not at all.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	assistantTurn := history.Turn{Speaker: history.SpeakerAssistant, Text: reply}
	if err := e.store.Append(commitCtx, ownerID, assistantTurn); err != nil {
		e.metrics.Exchanges.WithLabelValues(string(CodeInternal)).Inc()
		return ExchangeResult{}, newError(CodeInternal, "assistant_commit_failed", err)
	}
	e.metrics.HistoryAppends.WithLabelValues(string(history.SpeakerAssistant)).Inc()
	e.metrics.Exchanges.WithLabelValues("success").Inc()

	return ExchangeResult{Reply: reply}, nil
}

// Clear removes the owner's entire history. Unknown owners are a no-op.
func (e *Engine) Clear(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return newError(CodeInvalidRequest, "missing_owner_id", nil)
	}
	if err := e.store.Clear(ctx, ownerID); err != nil {
		return newError(CodeInternal, "history_clear_failed", err)
	}
	return nil
}

// History returns the owner's turns filtered by an optional case-insensitive
// substring. Diagnostic surface, not part of the exchange hot path.
func (e *Engine) History(ctx context.Context, ownerID, substring string) ([]history.Turn, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, newError(CodeInvalidRequest, "missing_owner_id", nil)
	}
	turns, err := e.store.QueryBySubstring(ctx, ownerID, substring)
	if err != nil {
		return nil, newError(CodeInternal, "history_query_failed", err)
	}
	return turns, nil
}

func (e *Engine) acquireOwner(ctx context.Context, ownerID string) (func(), error) {
	e.gateMu.Lock()
	gate, ok := e.gates[ownerID]
	if !ok {
		gate = make(chan struct{}, 1)
		e.gates[ownerID] = gate
	}
	e.gateMu.Unlock()

	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) classifyProviderError(err error) error {
	var statusErr *provider.StatusError
	switch {
	case errors.Is(err, provider.ErrTimeout):
		return newError(CodeUpstreamTimeout, "provider_deadline", err)
	case errors.As(err, &statusErr):
		return newError(CodeUpstreamRejected, "provider_status", err)
	case errors.Is(err, provider.ErrMalformed):
		return newError(CodeUpstreamMalformed, "provider_body", err)
	case errors.Is(err, context.Canceled):
		return newError(CodeInternal, "caller_canceled", err)
	default:
		return newError(CodeInternal, "provider_failed", err)
	}
}

// UpstreamStatus reports the provider HTTP status behind an upstream_rejected
// error, when one exists.
func UpstreamStatus(err error) (int, bool) {
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}

func parseClientTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
