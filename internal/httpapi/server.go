package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ahmedesmail07/ai-agent-platform/internal/apperr"
	"github.com/ahmedesmail07/ai-agent-platform/internal/chat"
	"github.com/ahmedesmail07/ai-agent-platform/internal/config"
	"github.com/ahmedesmail07/ai-agent-platform/internal/observability"
	"github.com/ahmedesmail07/ai-agent-platform/internal/store"
	"github.com/ahmedesmail07/ai-agent-platform/internal/voicechat"
)

// Server wires the HTTP and websocket surface to the services.
type Server struct {
	cfg      config.Config
	store    *store.Store
	chat     *chat.Service
	voice    *voicechat.Service
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, st *store.Store, chatSvc *chat.Service, voiceSvc *voicechat.Service, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		chat:    chatSvc,
		voice:   voiceSvc,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. Non-browser clients
				// omit Origin and are allowed.
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
	r.Use(s.countRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/audio/{filename}", s.handleGetAudio)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", s.handleCreateAgent)
			r.Get("/", s.handleListAgents)
			r.Get("/active", s.handleListActiveAgents)
			r.Get("/{agentID}", s.handleGetAgent)
			r.Put("/{agentID}", s.handleUpdateAgent)
			r.Delete("/{agentID}", s.handleDeleteAgent)
			r.Post("/{agentID}/sessions", s.handleCreateSession)
			r.Get("/{agentID}/sessions", s.handleListSessions)
		})
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Post("/messages", s.handleSendMessage)
			r.Get("/messages", s.handleListMessages)
			r.Post("/summarize", s.handleSummarize)
			r.Post("/voice", s.handleVoiceUpload)
		})
		r.Get("/ws/sessions/{sessionID}", s.handleChatWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	path := s.voice.AudioFilePath(filename)
	if path == "" {
		s.respondAppError(w, r, apperr.New(apperr.KindNotFound, "AUDIO_NOT_FOUND", "audio file not found"))
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

// countRequests records every finished request by route pattern and status.
// Hijacked connections (websocket upgrades) report no status and are skipped.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() == 0 {
			return
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}

// uintParam parses a numeric URL parameter.
func uintParam(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.KindValidation, "VALIDATION_ERROR",
			"invalid "+name).With(name, raw)
	}
	return uint(id), nil
}

// pagination reads skip/limit query parameters with the store defaults.
func pagination(r *http.Request) (skip, limit int) {
	skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return skip, limit
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the structured failure response: machine-readable code,
// human message, status and a detail bag.
type errorBody struct {
	Error      string         `json:"error"`
	Message    string         `json:"message"`
	StatusCode int            `json:"status_code"`
	Details    map[string]any `json:"details,omitempty"`
}

// respondAppError is the error boundary: domain errors keep their kind and
// details; anything unrecognized becomes a generic internal failure so no
// internals leak.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := apperr.As(err); ok {
		s.respondJSON(w, e.Status(), errorBody{
			Error:      e.Code,
			Message:    e.Message,
			StatusCode: e.Status(),
			Details:    e.Details,
		})
		return
	}
	log.Printf("unhandled error on %s %s: %v", r.Method, r.URL.Path, err)
	s.respondJSON(w, http.StatusInternalServerError, errorBody{
		Error:      "INTERNAL_ERROR",
		Message:    "internal server error",
		StatusCode: http.StatusInternalServerError,
	})
}

func (s *Server) respondValidation(w http.ResponseWriter, r *http.Request, message string) {
	s.respondAppError(w, r, apperr.New(apperr.KindValidation, "VALIDATION_ERROR", message))
}
