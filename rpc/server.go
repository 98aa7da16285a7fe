package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pricebridge/core"
	"pricebridge/crypto"
	"pricebridge/native/oracleclient"
	"pricebridge/observability"
)

const (
	moduleName      = "bridge"
	maxRequestBytes = 1 << 16
)

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	RequestsPerMinute float64
	Burst             int
	// AuthToken, when set, is required as a bearer token on mutating routes.
	AuthToken string
	// Operator receives the units minted through cash_xrd.
	Operator crypto.Address
	// Publisher is the local stand-in price feed, if one is deployed.
	Publisher crypto.Address
	// TrustedProxies lists proxy IPs or CIDRs whose X-Real-IP and
	// X-Forwarded-For headers identify the client.
	TrustedProxies []string
	Logger         *slog.Logger
}

// OperatorAddress derives the account that collects minted proxy units.
func OperatorAddress(network crypto.Network) crypto.Address {
	return crypto.NewAddress(network, crypto.DeriveNodeID(crypto.EntityAccount, []byte("operator")))
}

// Server exposes the bridge component over HTTP.
type Server struct {
	ledger  *core.Ledger
	client  *oracleclient.Client
	cfg     ServerConfig
	limiter *rateLimiter
	logger  *slog.Logger

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(ledger *core.Ledger, client *oracleclient.Client, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Operator.IsZero() && ledger != nil {
		cfg.Operator = OperatorAddress(ledger.Network())
	}
	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Warn("ignoring trusted proxies", slog.Any("error", err))
		proxies = nil
	}
	return &Server{
		ledger:  ledger,
		client:  client,
		cfg:     cfg,
		limiter: newRateLimiter(cfg.RequestsPerMinute, cfg.Burst, proxies.clientSource),
		logger:  logger,
	}
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/status", s.observe("status", s.handleStatus))
		v1.Get("/record", s.observe("record", s.handleRecord))
		v1.Get("/supply", s.observe("supply", s.handleSupply))
		v1.Group(func(mut chi.Router) {
			mut.Use(s.requireAuth)
			mut.Use(s.limiter.middleware)
			mut.Post("/update_token", s.observe(oracleclient.MethodUpdateToken, s.handleUpdateToken))
			mut.Post("/cash_xrd", s.observe(oracleclient.MethodCashXRD, s.handleCashXRD))
			if !s.cfg.Publisher.IsZero() {
				mut.Post("/feed", s.observe("feed_set", s.handleFeedSet))
				mut.Delete("/feed", s.observe("feed_clear", s.handleFeedClear))
			}
		})
	})
	return otelhttp.NewHandler(r, "pricebridge.rpc")
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("rpc server listening", slog.String("address", listener.Addr().String()))
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) observe(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		observability.ModuleMetrics().Observe(moduleName, method, recorder.status, time.Since(start))
	}
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Authorization header must use Bearer scheme")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
