package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ellahq/ella/internal/prompt"
)

// Client sends an assembled message list to the completion provider and
// returns the top-ranked reply text. Implementations hold no per-call state
// and never retry; retry policy belongs to the caller.
type Client interface {
	Complete(ctx context.Context, messages []prompt.Message) (string, error)
}

var (
	// ErrTimeout reports that the hard per-call deadline elapsed before the
	// provider answered.
	ErrTimeout = errors.New("provider: request timed out")
	// ErrMalformed reports a 2xx response without an extractable reply.
	ErrMalformed = errors.New("provider: malformed response")
)

// StatusError captures a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider: upstream status %d: %s", e.StatusCode, e.Body)
}

// Config controls client construction.
type Config struct {
	Mode    string
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient builds a provider client for the configured mode.
func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		// With an upstream configured, keep a local mock behind it so the
		// service still answers when the provider is down. Timeouts and
		// cancellations are never masked by the fallback.
		if strings.TrimSpace(cfg.URL) != "" {
			return NewFallbackClient(
				NewHTTPClient(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout),
				NewMockClient(),
			), nil
		}
		return NewMockClient(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("provider URL is required for http mode")
		}
		return NewHTTPClient(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported provider mode %q", cfg.Mode)
	}
}
