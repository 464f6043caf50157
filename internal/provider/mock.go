package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/ellahq/ella/internal/prompt"
)

// MockClient provides deterministic local replies when no upstream provider
// is configured, and scriptable outcomes for tests.
type MockClient struct {
	Reply string
	Err   error
}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(ctx context.Context, messages []prompt.Message) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if c.Err != nil {
		return "", c.Err
	}
	if c.Reply != "" {
		return c.Reply, nil
	}
	return buildMockReply(messages), nil
}

func buildMockReply(messages []prompt.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != prompt.RoleUser {
			continue
		}
		text := strings.TrimSpace(messages[i].Content)
		if text == "" {
			break
		}
		return fmt.Sprintf("I heard you: %s", text)
	}
	return "I am listening."
}
