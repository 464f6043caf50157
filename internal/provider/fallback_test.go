package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFallbackClientUsesPrimary(t *testing.T) {
	c := NewFallbackClient(&MockClient{Reply: "primary"}, &MockClient{Reply: "secondary"})
	reply, err := c.Complete(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "primary" {
		t.Fatalf("reply = %q, want %q", reply, "primary")
	}
}

func TestFallbackClientFallsBackOnError(t *testing.T) {
	c := NewFallbackClient(&MockClient{Err: errors.New("boom")}, &MockClient{Reply: "secondary"})
	reply, err := c.Complete(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "secondary" {
		t.Fatalf("reply = %q, want %q", reply, "secondary")
	}
}

func TestFallbackClientDoesNotMaskTimeout(t *testing.T) {
	c := NewFallbackClient(&MockClient{Err: ErrTimeout}, &MockClient{Reply: "secondary"})
	_, err := c.Complete(context.Background(), testMessages())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Complete() error = %v, want ErrTimeout", err)
	}
}

func TestAutoModeFallsBackWhenUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(Config{Mode: "auto", URL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	reply, err := c.Complete(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "I heard you: hi" {
		t.Fatalf("reply = %q, want the local fallback echo", reply)
	}
}

func TestFallbackClientBothFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	c := NewFallbackClient(&MockClient{Err: primaryErr}, &MockClient{Err: errors.New("secondary down")})
	_, err := c.Complete(context.Background(), testMessages())
	if !errors.Is(err, primaryErr) {
		t.Fatalf("Complete() error = %v, want wrapped primary error", err)
	}
}
