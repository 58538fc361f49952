//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

const testAPIKey = "admin-key"

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// --- Mock use cases ---

type mockLedger struct {
	usecase.LedgerUseCase // Embed interface for forward compatibility
	purchases             map[string]*model.Purchase
}

func (m *mockLedger) Get(ctx context.Context, paymentID string) (*model.Purchase, error) {
	if p, ok := m.purchases[paymentID]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

type mockActivation struct {
	usecase.ActivationUseCase
	calls []string
	err   error
}

func (m *mockActivation) ActivateByPaymentID(ctx context.Context, paymentID string) (*model.UserSubscription, error) {
	m.calls = append(m.calls, paymentID)
	if m.err != nil {
		return nil, m.err
	}
	return &model.UserSubscription{UserID: "u1", PlanID: "silver", Tier: model.TierSilver, IsActive: true}, nil
}

type mockSubs struct {
	usecase.SubscriptionUseCase
	sub     *model.UserSubscription
	history []*model.RenewalRecord
}

func (m *mockSubs) Get(ctx context.Context, userID string) (*model.UserSubscription, error) {
	if m.sub == nil || m.sub.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return m.sub, nil
}

func (m *mockSubs) History(ctx context.Context, userID string) ([]*model.RenewalRecord, error) {
	return m.history, nil
}

type mockSweeps struct {
	ran []string
	err error
}

func (m *mockSweeps) RunNow(ctx context.Context, name string) (int, error) {
	m.ran = append(m.ran, name)
	return 3, m.err
}

type testServer struct {
	activation *mockActivation
	sweeps     *mockSweeps
	auth       *AuthManager
	handler    http.Handler
}

func newTestServer() *testServer {
	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := paidAt.AddDate(0, 0, 30)
	ledger := &mockLedger{purchases: map[string]*model.Purchase{
		"corr-1": {
			ID: "p1", PaymentID: "corr-1", PlanID: "silver", Status: model.PurchaseStatusPaid,
			TotalPriceCents: 2990, Method: model.PaymentMethodPix, PaidAt: &paidAt,
			Customer: model.Customer{Name: "Maria", Email: "maria@example.com"},
		},
	}}
	subs := &mockSubs{
		sub: &model.UserSubscription{UserID: "u1", PlanID: "silver", Tier: model.TierSilver, ExpiresAt: &exp, IsActive: true},
		history: []*model.RenewalRecord{
			{PurchaseID: "p1", NewPlanID: "silver", NewExpiresAt: &exp, RevenueCents: 2990, IsUpgrade: true},
		},
	}
	ts := &testServer{
		activation: &mockActivation{},
		sweeps:     &mockSweeps{},
		auth:       NewAuthManager("session-secret", false, "", time.Minute),
	}
	srv := NewServer(ledger, ts.activation, subs, ts.sweeps, ts.auth, testAPIKey, newTestLogger())
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuth(t *testing.T) {
	t.Run("should reject requests without credentials", func(t *testing.T) {
		ts := newTestServer()
		if rec := ts.do(http.MethodGet, "/admin/v1/purchases/corr-1", ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("want 401, got %d", rec.Code)
		}
	})

	t.Run("should reject a wrong api key", func(t *testing.T) {
		ts := newTestServer()
		if rec := ts.do(http.MethodGet, "/admin/v1/purchases/corr-1", "nope"); rec.Code != http.StatusUnauthorized {
			t.Errorf("want 401, got %d", rec.Code)
		}
	})

	t.Run("should exchange the api key for a working session token", func(t *testing.T) {
		// --- Arrange ---
		ts := newTestServer()

		// --- Act ---
		rec := ts.do(http.MethodPost, "/admin/v1/session", testAPIKey)

		// --- Assert ---
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d", rec.Code)
		}
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(rec.Body).Decode(&body)
		if body.Token == "" {
			t.Fatal("expected a session token")
		}
		if len(rec.Result().Cookies()) != 1 {
			t.Error("expected the session cookie to be set")
		}
		if rec := ts.do(http.MethodGet, "/admin/v1/purchases/corr-1", body.Token); rec.Code != http.StatusOK {
			t.Errorf("want 200 with session token, got %d", rec.Code)
		}
	})

	t.Run("should accept the session cookie", func(t *testing.T) {
		ts := newTestServer()
		login := ts.do(http.MethodPost, "/admin/v1/session", testAPIKey)

		req := httptest.NewRequest(http.MethodGet, "/admin/v1/purchases/corr-1", nil)
		req.AddCookie(login.Result().Cookies()[0])
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("want 200, got %d", rec.Code)
		}
	})

	t.Run("should not mint a session from a session token", func(t *testing.T) {
		ts := newTestServer()
		tok, _, err := ts.auth.Mint(httptest.NewRecorder(), "admin")
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if rec := ts.do(http.MethodPost, "/admin/v1/session", tok); rec.Code != http.StatusUnauthorized {
			t.Errorf("want 401, got %d", rec.Code)
		}
	})

	t.Run("should refuse everything when no api key is configured", func(t *testing.T) {
		srv := NewServer(&mockLedger{}, &mockActivation{}, &mockSubs{}, nil, nil, "", newTestLogger())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/purchases/x", nil))
		if rec.Code != http.StatusForbidden {
			t.Errorf("want 403, got %d", rec.Code)
		}
	})
}

func TestAuthManager(t *testing.T) {
	a := NewAuthManager("secret", true, "", time.Minute)

	t.Run("should round-trip a minted token", func(t *testing.T) {
		tok, exp, err := a.Mint(httptest.NewRecorder(), "ops")
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		if time.Until(exp) <= 0 {
			t.Error("expected a future expiry")
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		claims, err := a.ParseFromRequest(req)
		if err != nil || claims.Subject != "ops" || claims.Role != roleAdmin {
			t.Errorf("unexpected parse result: %+v %v", claims, err)
		}
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		other := NewAuthManager("other", true, "", time.Minute)
		tok, _, _ := other.Mint(httptest.NewRecorder(), "ops")
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		if _, err := a.ParseFromRequest(req); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("should report a missing token as unauthorized", func(t *testing.T) {
		_, err := a.ParseFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
		if err == nil {
			t.Error("expected an error")
		}
	})
}

func TestPurchaseEndpoints(t *testing.T) {
	t.Run("should return the ledger row", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(http.MethodGet, "/admin/v1/purchases/corr-1", testAPIKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var got purchaseView
		_ = json.NewDecoder(rec.Body).Decode(&got)
		if got.Status != "PAID" || got.CustomerEmail != "maria@example.com" || got.PaidAt == nil {
			t.Errorf("unexpected purchase: %+v", got)
		}
	})

	t.Run("should 404 on unknown payment", func(t *testing.T) {
		ts := newTestServer()
		if rec := ts.do(http.MethodGet, "/admin/v1/purchases/nope", testAPIKey); rec.Code != http.StatusNotFound {
			t.Errorf("want 404, got %d", rec.Code)
		}
	})

	t.Run("should re-run activation", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(http.MethodPost, "/admin/v1/purchases/corr-1/activate", testAPIKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		if len(ts.activation.calls) != 1 || ts.activation.calls[0] != "corr-1" {
			t.Errorf("unexpected activation calls: %v", ts.activation.calls)
		}
	})

	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrPurchaseNotPaid, http.StatusConflict},
		{domain.ErrMissingUser, http.StatusConflict},
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("should map activation error %v to %d", tc.err, tc.want), func(t *testing.T) {
			ts := newTestServer()
			ts.activation.err = tc.err
			if rec := ts.do(http.MethodPost, "/admin/v1/purchases/corr-1/activate", testAPIKey); rec.Code != tc.want {
				t.Errorf("want %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestSubscriptionEndpoint(t *testing.T) {
	ts := newTestServer()

	t.Run("should return the row with its history", func(t *testing.T) {
		rec := ts.do(http.MethodGet, "/admin/v1/subscriptions/u1", testAPIKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var got struct {
			Subscription subscriptionView `json:"subscription"`
			Renewals     []renewalView    `json:"renewals"`
		}
		_ = json.NewDecoder(rec.Body).Decode(&got)
		if got.Subscription.Tier != model.TierSilver.String() || !got.Subscription.IsActive {
			t.Errorf("unexpected subscription: %+v", got.Subscription)
		}
		if len(got.Renewals) != 1 || !got.Renewals[0].IsUpgrade {
			t.Errorf("unexpected renewals: %+v", got.Renewals)
		}
	})

	t.Run("should 404 for a user without subscription", func(t *testing.T) {
		if rec := ts.do(http.MethodGet, "/admin/v1/subscriptions/u2", testAPIKey); rec.Code != http.StatusNotFound {
			t.Errorf("want 404, got %d", rec.Code)
		}
	})
}

func TestSweepEndpoints(t *testing.T) {
	t.Run("should trigger known sweeps", func(t *testing.T) {
		ts := newTestServer()
		for _, job := range []string{"reconcile", "orphans"} {
			rec := ts.do(http.MethodPost, "/admin/v1/sweeps/"+job, testAPIKey)
			if rec.Code != http.StatusOK {
				t.Errorf("%s: want 200, got %d", job, rec.Code)
			}
		}
		if len(ts.sweeps.ran) != 2 || ts.sweeps.ran[0] != "reconcile" || ts.sweeps.ran[1] != "orphans" {
			t.Errorf("unexpected runs: %v", ts.sweeps.ran)
		}
	})

	t.Run("should 404 unknown sweeps", func(t *testing.T) {
		ts := newTestServer()
		if rec := ts.do(http.MethodPost, "/admin/v1/sweeps/expiry", testAPIKey); rec.Code != http.StatusNotFound {
			t.Errorf("want 404, got %d", rec.Code)
		}
		if len(ts.sweeps.ran) != 0 {
			t.Error("expected no sweep to run")
		}
	})

	t.Run("should 409 when another instance holds the lock", func(t *testing.T) {
		ts := newTestServer()
		ts.sweeps.err = domain.ErrLockHeld
		if rec := ts.do(http.MethodPost, "/admin/v1/sweeps/reconcile", testAPIKey); rec.Code != http.StatusConflict {
			t.Errorf("want 409, got %d", rec.Code)
		}
	})
}
