package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/redis"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

type Options struct {
	Checkout usecase.CheckoutUseCase
	Ledger   usecase.LedgerUseCase
	Linker   usecase.LinkerUseCase
	Tokens   *TokenVerifier
	// Limiter may be nil; budgets of 0 disable a limit.
	Limiter           redis.Limiter
	CheckoutPerMinute int
	PollPerMinute     int
	WebhookSecret     string
	RequestTimeout    time.Duration
	Dev               bool
}

// Server is the public funnel/PWA API.
type Server struct {
	opt Options
	log *zerolog.Logger
}

func NewServer(opt Options, logger *zerolog.Logger) *Server {
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = 20 * time.Second
	}
	l := logger.With().Str("component", "PublicAPI").Logger()
	return &Server{opt: opt, log: &l}
}

// Routes builds the chi router with the full middleware stack.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(s.guard)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/plans", s.handlePlans)
		r.Post("/checkout", s.handleCheckout)
		r.Get("/payments/{paymentID}/status", s.handleStatus)
		r.Post("/webhooks/pix", s.handlePixWebhook)
		r.Post("/account/link", s.handleAccountLink)
	})
	return r
}

func (s *Server) guard(next http.Handler) http.Handler {
	return Chain(next, TraceID(s.log), RequestLog(s.log), Recover(s.log), Timeout(s.opt.RequestTimeout))
}

// NewHTTPServer wraps handler with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
