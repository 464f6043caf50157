package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ellahq/ella/internal/prompt"
)

// FallbackClient attempts a primary client first and falls back on error.
// Cancellation and deadline errors are never masked by the fallback.
type FallbackClient struct {
	primary  Client
	fallback Client
}

func NewFallbackClient(primary, fallback Client) *FallbackClient {
	return &FallbackClient{primary: primary, fallback: fallback}
}

func (c *FallbackClient) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	if c == nil || c.primary == nil {
		if c != nil && c.fallback != nil {
			return c.fallback.Complete(ctx, messages)
		}
		return "", errors.New("fallback client misconfigured")
	}

	reply, err := c.primary.Complete(ctx, messages)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return "", err
	}
	if c.fallback == nil {
		return "", err
	}

	fallbackReply, fallbackErr := c.fallback.Complete(ctx, messages)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary provider error: %w; fallback provider error: %v", err, fallbackErr)
	}
	return fallbackReply, nil
}
