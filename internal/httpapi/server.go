package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ellahq/ella/internal/chat"
	"github.com/ellahq/ella/internal/config"
	"github.com/ellahq/ella/internal/history"
	"github.com/ellahq/ella/internal/observability"
	"github.com/ellahq/ella/internal/reliability"
)

// DefaultOwnerID is used when the external auth collaborator supplies no
// resolved owner (e.g. the legacy endpoint).
const DefaultOwnerID = "anonymous"

// Engine is the session coordinator surface the API exposes.
type Engine interface {
	Exchange(ctx context.Context, req chat.ExchangeRequest) (chat.ExchangeResult, error)
	Clear(ctx context.Context, ownerID string) error
	History(ctx context.Context, ownerID, substring string) ([]history.Turn, error)
}

type Server struct {
	cfg      config.Config
	engine   Engine
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, engine Engine, metrics *observability.Metrics, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		engine:  engine,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// often omit Origin; allow them.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	// Legacy endpoint; keeps the original client wire shape.
	r.Post("/api/chat", s.handleLegacyChat)

	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/chat/clear", s.handleClear)
	r.Get("/v1/chat/history", s.handleHistory)
	r.Get("/v1/chat/ws", s.handleChatWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type chatRequest struct {
	OwnerID         string `json:"owner_id"`
	Message         string `json:"message"`
	ClientTimestamp string `json:"client_timestamp,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, string(chat.CodeInvalidRequest), err.Error())
		return
	}

	res, err := s.engine.Exchange(r.Context(), chat.ExchangeRequest{
		OwnerID:         req.OwnerID,
		Message:         req.Message,
		ClientTimestamp: req.ClientTimestamp,
	})
	if err != nil {
		status, code := statusForError(err)
		respondError(w, status, string(code), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Reply: res.Reply})
}

type legacyChatRequest struct {
	OwnerID string `json:"owner_id"`
	Message string `json:"message"`
}

type legacyChatResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleLegacyChat(w http.ResponseWriter, r *http.Request) {
	var req legacyChatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondJSON(w, http.StatusBadRequest, legacyChatResponse{Response: "Sorry, something went wrong."})
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		req.OwnerID = DefaultOwnerID
	}

	res, err := s.engine.Exchange(r.Context(), chat.ExchangeRequest{
		OwnerID: req.OwnerID,
		Message: req.Message,
	})
	if err != nil {
		status, _ := statusForError(err)
		respondJSON(w, status, legacyChatResponse{Response: "Sorry, something went wrong."})
		return
	}
	respondJSON(w, http.StatusOK, legacyChatResponse{Response: res.Reply})
}

type clearRequest struct {
	OwnerID string `json:"owner_id"`
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, string(chat.CodeInvalidRequest), err.Error())
		return
	}
	if err := s.engine.Clear(r.Context(), req.OwnerID); err != nil {
		status, code := statusForError(err)
		respondError(w, status, string(code), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type historyTurn struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	substring := r.URL.Query().Get("substring")

	turns, err := s.engine.History(r.Context(), ownerID, substring)
	if err != nil {
		status, code := statusForError(err)
		respondError(w, status, string(code), err.Error())
		return
	}

	out := make([]historyTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, historyTurn{
			Speaker:   string(t.Speaker),
			Text:      t.Text,
			Timestamp: t.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": out})
}

func statusForError(err error) (int, chat.ErrorCode) {
	code := chat.CodeOf(err)
	switch code {
	case chat.CodeInvalidRequest:
		return http.StatusBadRequest, code
	case chat.CodeUpstreamTimeout:
		return http.StatusGatewayTimeout, code
	case chat.CodeUpstreamRejected:
		if status, ok := chat.UpstreamStatus(err); ok && reliability.IsRateLimitHTTPStatus(status) {
			return http.StatusTooManyRequests, code
		}
		return http.StatusBadGateway, code
	case chat.CodeUpstreamMalformed:
		return http.StatusBadGateway, code
	default:
		return http.StatusInternalServerError, code
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
