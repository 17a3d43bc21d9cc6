// Package http serves MCP over plain HTTP.
//
// Each POST /mcp carries one JSON-RPC message and gets its response in the
// body. This is not the MCP Streamable HTTP transport: there are no sessions,
// no Mcp-Session-Id header and no server-sent event stream.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/aretw0/fastly-mcp/internal/logging"
)

// MaxBodyBytes caps a single JSON-RPC request body.
const MaxBodyBytes = 10 << 20

// MessageHandler answers one JSON-RPC message; nil means no response (notification).
type MessageHandler interface {
	HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage
}

// Server carries the HTTP routes for the MCP endpoint.
type Server struct {
	Messages MessageHandler
	Gatherer prometheus.Gatherer
	Version  string
	Logger   *slog.Logger

	// AllowedOrigins lists the browser origins accepted; "*" accepts any.
	AllowedOrigins []string
	// Token, when set, must be presented as a bearer token on /mcp.
	Token string
}

// Option configures the handler.
type Option func(*Server)

// WithVersion sets the version reported on /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithAllowedOrigins sets the browser origins the handler accepts.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.AllowedOrigins = origins
	}
}

// WithToken requires a bearer token on /mcp.
func WithToken(token string) Option {
	return func(s *Server) {
		s.Token = token
	}
}

// NewHandler creates the HTTP handler: POST /mcp, GET /metrics, GET /healthz, GET /info.
// A nil gatherer serves the default Prometheus registry.
//
// A request carrying an Origin header outside the allowlist gets 403 on every
// route, preflight included.
func NewHandler(messages MessageHandler, gatherer prometheus.Gatherer, opts ...Option) http.Handler {
	server := &Server{
		Messages: messages,
		Gatherer: gatherer,
		Version:  "dev",
	}
	for _, opt := range opts {
		opt(server)
	}
	server.Logger = logging.OrNop(server.Logger)
	if server.Gatherer == nil {
		server.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(server.checkOrigin)
	r.Use(cors.New(cors.Options{
		AllowOriginFunc: server.originAllowed,
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:  []string{"Content-Type", "Authorization"},
	}).Handler)

	r.With(server.requireToken).Post("/mcp", server.PostMessage)
	r.Get("/healthz", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(server.Gatherer, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range s.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// checkOrigin rejects browser requests from origins outside the allowlist.
// CORS headers alone do not stop a simple POST from reaching the handler.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); !s.originAllowed(origin) {
			s.Logger.Warn("Rejected request from disallowed origin", "origin", origin, "path", r.URL.Path)
			http.Error(w, "Origin not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.Token)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PostMessage handles the POST /mcp request: one JSON-RPC message per body.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.Logger.Warn("PostMessage: Invalid request body", "error", err)
		return
	}

	resp := s.Messages.HandleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Logger.Error("PostMessage response encode failed", "error", err)
	}
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"app":     "fastly-mcp",
		"version": s.Version,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
