// Package api exposes walletd over HTTP: registry lookups, health, metrics
// and the WebSocket endpoint a browser wallet connects to.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/matrixise/walletd/internal/bridge"
	"github.com/matrixise/walletd/internal/metrics"
	"github.com/matrixise/walletd/internal/registry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrShuttingDown is returned for session upgrades after Close.
var ErrShuttingDown = errors.New("server shutting down")

// Options configures the router.
type Options struct {
	Registry *registry.Registry
	Health   http.HandlerFunc
	Metrics  *metrics.Metrics
	Bridge   bridge.Deps
	// AllowedOrigins lists the browser origins allowed to open a session.
	// Empty means same host only.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server owns the router and every live wallet session.
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if opts.Health != nil {
		r.Get("/health", opts.Health)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/chains", s.listChains)
		r.Route("/chains/{chainID}", func(r chi.Router) {
			r.Use(s.chainCtx)
			r.Get("/", s.getChain)
			r.Get("/tokens", s.listTokens)
			r.Get("/spenders", s.listSpenders)
			r.Get("/explorer/{kind}/{ref}", s.explorerLink)
		})
		r.Get("/session", s.openSession)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close ends every live session and waits for them to tear down.
// Hijacked WebSocket connections are not covered by http.Server.Shutdown.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type chainKey struct{}

func (s *Server) chainCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "chainID"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid chain id")
			return
		}
		d, err := s.opts.Registry.Describe(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), chainKey{}, d)))
	})
}

func chainFrom(r *http.Request) registry.ChainDescriptor {
	return r.Context().Value(chainKey{}).(registry.ChainDescriptor)
}

func (s *Server) listChains(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Registry.Chains())
}

func (s *Server) getChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, chainFrom(r))
}

func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Registry.TokensFor(chainFrom(r).ChainID))
}

func (s *Server) listSpenders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Registry.Spenders(chainFrom(r).ChainID))
}

type explorerLink struct {
	URL string `json:"url"`
}

func (s *Server) explorerLink(w http.ResponseWriter, r *http.Request) {
	kind, err := registry.ParseLinkKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	url := s.opts.Registry.ExplorerURL(chainFrom(r).ChainID, chi.URLParam(r, "ref"), kind)
	writeJSON(w, http.StatusOK, explorerLink{URL: url})
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, ErrShuttingDown.Error())
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the response.
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	start := time.Now()
	sess := bridge.NewSession(conn, s.opts.Bridge)
	if err := sess.Run(s.ctx); err != nil {
		s.logger.Debug("Session ended", "error", err, "duration", time.Since(start).Round(time.Second))
		return
	}
	s.logger.Debug("Session ended", "duration", time.Since(start).Round(time.Second))
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.opts.AllowedOrigins) == 0 {
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		return strings.EqualFold(host, r.Host)
	}
	return slices.ContainsFunc(s.opts.AllowedOrigins, func(o string) bool {
		return o == "*" || strings.EqualFold(o, origin)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
