package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ellahq/ella/internal/chat"
	"github.com/ellahq/ella/internal/config"
	"github.com/ellahq/ella/internal/history"
	"github.com/ellahq/ella/internal/observability"
	"github.com/ellahq/ella/internal/protocol"
	"github.com/ellahq/ella/internal/provider"
)

func newTestServer(t *testing.T, client provider.Client) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		MetricsNamespace:   "test",
		PersonaInstruction: config.DefaultPersona,
		ContextWindow:      4,
		AllowAnyOrigin:     true,
	}
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), cfg.MetricsNamespace)
	engine := chat.NewEngine(history.NewMemoryStore(), client, cfg.PersonaInstruction, cfg.ContextWindow, metrics, zerolog.Nop())
	srv := httptest.NewServer(New(cfg, engine, metrics, zerolog.Nop()).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res, out
}

func TestChatEndpoint(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{Reply: "hello"})

	res, out := postJSON(t, srv.URL+"/v1/chat", `{"owner_id":"u1","message":"hi"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if out["reply"] != "hello" {
		t.Fatalf("reply = %v, want hello", out["reply"])
	}

	histRes, err := http.Get(srv.URL + "/v1/chat/history?owner_id=u1")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	defer histRes.Body.Close()
	var hist struct {
		Turns []struct {
			Speaker string `json:"speaker"`
			Text    string `json:"text"`
		} `json:"turns"`
	}
	if err := json.NewDecoder(histRes.Body).Decode(&hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(hist.Turns))
	}
	if hist.Turns[0].Speaker != "user" || hist.Turns[0].Text != "hi" {
		t.Fatalf("turn[0] = %+v, want (user, hi)", hist.Turns[0])
	}
	if hist.Turns[1].Speaker != "assistant" || hist.Turns[1].Text != "hello" {
		t.Fatalf("turn[1] = %+v, want (assistant, hello)", hist.Turns[1])
	}
}

func TestChatEndpointValidation(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{})

	res, out := postJSON(t, srv.URL+"/v1/chat", `{"owner_id":"u1","message":""}`)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	if out["code"] != "invalid_request" {
		t.Fatalf("code = %v, want invalid_request", out["code"])
	}
}

func TestChatEndpointRateLimited(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{Err: &provider.StatusError{StatusCode: 429, Body: "slow down"}})

	res, out := postJSON(t, srv.URL+"/v1/chat", `{"owner_id":"u1","message":"hi"}`)
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", res.StatusCode)
	}
	if out["code"] != "upstream_rejected" {
		t.Fatalf("code = %v, want upstream_rejected", out["code"])
	}
}

func TestChatEndpointTimeout(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{Err: provider.ErrTimeout})

	res, out := postJSON(t, srv.URL+"/v1/chat", `{"owner_id":"u1","message":"hi"}`)
	if res.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", res.StatusCode)
	}
	if out["code"] != "upstream_timeout" {
		t.Fatalf("code = %v, want upstream_timeout", out["code"])
	}
}

func TestLegacyChatEndpoint(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{Reply: "welcome back"})

	res, out := postJSON(t, srv.URL+"/api/chat", `{"message":"hi"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if out["response"] != "welcome back" {
		t.Fatalf("response = %v, want welcome back", out["response"])
	}
}

func TestLegacyChatEndpointFailureShape(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{Err: &provider.StatusError{StatusCode: 500, Body: "boom"}})

	res, out := postJSON(t, srv.URL+"/api/chat", `{"message":"hi"}`)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", res.StatusCode)
	}
	if out["response"] != "Sorry, something went wrong." {
		t.Fatalf("response = %v, want apology", out["response"])
	}
}

func TestLegacyChatEndpointEmptyBody(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{Reply: "r"})

	// An empty body decodes to io.EOF, which is treated as an absent payload
	// and rejected by validation, not surfaced as a decode failure.
	res, out := postJSON(t, srv.URL+"/api/chat", "")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
	if out["response"] != "Sorry, something went wrong." {
		t.Fatalf("response = %v, want apology", out["response"])
	}
}

func TestClearEndpoint(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{Reply: "r"})

	seed, err := http.Post(srv.URL+"/v1/chat", "application/json", strings.NewReader(`{"owner_id":"u1","message":"hi"}`))
	if err != nil {
		t.Fatalf("seed exchange error = %v", err)
	}
	seed.Body.Close()

	res, out := postJSON(t, srv.URL+"/v1/chat/clear", `{"owner_id":"u1"}`)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if out["status"] != "cleared" {
		t.Fatalf("status field = %v, want cleared", out["status"])
	}

	// Clearing an owner with no history is still a success no-op.
	res, out = postJSON(t, srv.URL+"/v1/chat/clear", `{"owner_id":"never-seen"}`)
	if res.StatusCode != http.StatusOK || out["status"] != "cleared" {
		t.Fatalf("clear unknown owner = (%d, %v), want (200, cleared)", res.StatusCode, out["status"])
	}
}

func TestChatWebSocket(t *testing.T) {
	srv := newTestServer(t, &provider.MockClient{Reply: "pong"})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws?owner_id=u1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.ClientMessage{Type: protocol.TypeClientMessage, Message: "ping"}); err != nil {
		t.Fatalf("ws write error = %v", err)
	}

	var reply protocol.AssistantReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ws read error = %v", err)
	}
	if reply.Type != protocol.TypeAssistantReply || reply.Reply != "pong" || reply.OwnerID != "u1" {
		t.Fatalf("reply = %+v, want assistant_reply pong for u1", reply)
	}

	// Unknown frame types surface an error event, not a dropped connection.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`)); err != nil {
		t.Fatalf("ws write error = %v", err)
	}
	var errEvent protocol.ErrorEvent
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("ws read error = %v", err)
	}
	if errEvent.Type != protocol.TypeErrorEvent || errEvent.Code != "invalid_client_message" {
		t.Fatalf("error event = %+v", errEvent)
	}
}
