package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/metrics"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

// SweepRunner triggers a named background sweep on demand.
type SweepRunner interface {
	RunNow(ctx context.Context, name string) (int, error)
}

type Server struct {
	ledgerUC     usecase.LedgerUseCase
	activationUC usecase.ActivationUseCase
	subUC        usecase.SubscriptionUseCase
	sweeps       SweepRunner
	auth         *AuthManager
	apiKey       string
	log          *zerolog.Logger
}

func NewServer(
	ledgerUC usecase.LedgerUseCase,
	activationUC usecase.ActivationUseCase,
	subUC usecase.SubscriptionUseCase,
	sweeps SweepRunner,
	auth *AuthManager,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		ledgerUC:     ledgerUC,
		activationUC: activationUC,
		subUC:        subUC,
		sweeps:       sweeps,
		auth:         auth,
		apiKey:       apiKey,
		log:          &l,
	}
}

// RegisterRoutes mounts the admin API on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/v1/session", s.handleSessionCreate)
	mux.HandleFunc("DELETE /admin/v1/session", s.handleSessionClear)

	mux.Handle("GET /admin/v1/purchases/{paymentID}", s.authMiddleware(http.HandlerFunc(s.handlePurchaseGet)))
	mux.Handle("POST /admin/v1/purchases/{paymentID}/activate", s.authMiddleware(http.HandlerFunc(s.handlePurchaseActivate)))
	mux.Handle("GET /admin/v1/subscriptions/{userID}", s.authMiddleware(http.HandlerFunc(s.handleSubscriptionGet)))
	mux.Handle("POST /admin/v1/sweeps/{job}", s.authMiddleware(http.HandlerFunc(s.handleSweep)))
}

// Handler returns a fresh mux with every admin route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	s.RegisterRoutes(mux)
	return mux
}

// authMiddleware accepts the static API key or a session token minted from it.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		if s.apiKeyMatches(r) {
			next.ServeHTTP(w, r)
			return
		}
		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		metrics.IncAdminRequest("auth", "unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func (s *Server) apiKeyMatches(r *http.Request) bool {
	tok, ok := bearerToken(r)
	if !ok || s.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(tok), []byte(s.apiKey)) == 1
}

// statusLabel folds an error onto the metrics status label.
func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrLockHeld):
		return "busy"
	case errors.Is(err, domain.ErrPurchaseNotPaid), errors.Is(err, domain.ErrMissingUser):
		return "rejected"
	default:
		return "error"
	}
}
