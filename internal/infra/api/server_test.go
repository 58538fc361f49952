//go:build !integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/usecase"
)

const (
	testJWTSecret     = "test-auth-secret"
	testWebhookSecret = "whsec"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- stub use cases ----

type stubCheckout struct {
	got  usecase.CheckoutInput
	err  error
	boom bool
}

func (s *stubCheckout) Start(ctx context.Context, in usecase.CheckoutInput) (*model.Purchase, error) {
	if s.boom {
		panic("checkout exploded")
	}
	s.got = in
	if s.err != nil {
		return nil, s.err
	}
	p := &model.Purchase{
		ID: "p1", PaymentID: "corr-1", PlanID: in.PlanID, Status: model.PurchaseStatusPending,
		TotalPriceCents: 3980, Method: model.PaymentMethodPix, PixCode: "000201", QRImage: "data:image/png;base64,AA==",
	}
	if in.Buyer != nil {
		p.UserID = &in.Buyer.ID
	}
	return p, nil
}

type stubLedger struct {
	usecase.LedgerUseCase
	refresh    func(ctx context.Context, id string) (*model.Purchase, error)
	events     []usecase.GatewayEvent
	handleErr  error
	handleDone bool
}

func (s *stubLedger) Refresh(ctx context.Context, id string) (*model.Purchase, error) {
	return s.refresh(ctx, id)
}

func (s *stubLedger) HandleGatewayEvent(ctx context.Context, ev usecase.GatewayEvent) (bool, error) {
	s.events = append(s.events, ev)
	return s.handleDone, s.handleErr
}

type stubLinker struct {
	usecase.LinkerUseCase
	userID, email string
}

func (s *stubLinker) LinkByEmail(ctx context.Context, userID, email string) (usecase.LinkResult, error) {
	s.userID, s.email = userID, email
	return usecase.LinkResult{Linked: 1, Activated: 1}, nil
}

type denyLimiter struct{ keys []string }

func (d *denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	d.keys = append(d.keys, key)
	return false, nil
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

// ---- helpers ----

type testAPI struct {
	checkout *stubCheckout
	ledger   *stubLedger
	linker   *stubLinker
	handler  http.Handler
}

func newTestAPI(mutate func(*Options)) *testAPI {
	t := &testAPI{
		checkout: &stubCheckout{},
		ledger: &stubLedger{refresh: func(ctx context.Context, id string) (*model.Purchase, error) {
			return nil, domain.ErrNotFound
		}},
		linker: &stubLinker{},
	}
	opt := Options{
		Checkout:      t.checkout,
		Ledger:        t.ledger,
		Linker:        t.linker,
		Tokens:        NewTokenVerifier(testJWTSecret, ""),
		WebhookSecret: testWebhookSecret,
	}
	if mutate != nil {
		mutate(&opt)
	}
	t.handler = NewServer(opt, newTestLogger()).Routes()
	return t
}

func (t *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	t.handler.ServeHTTP(rec, req)
	return rec
}

func mintUserToken(t *testing.T, secret, sub, email string, ttl time.Duration) string {
	t.Helper()
	claims := UserClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

const checkoutBody = `{"plan_id":"silver","add_ons":["all-regions"],"payment_method":"pix",
"customer":{"name":"Maria","email":"maria@example.com","phone":"11999990000"},
"utm":{"utm_source":"facebook"},"tracking":{"fbclid":"abc"},"quiz_answers":{"age":"25-34"}}`

// ---- tests ----

func TestHealthAndPlans(t *testing.T) {
	api := newTestAPI(nil)

	t.Run("should answer health", func(t *testing.T) {
		rec := api.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
			t.Errorf("unexpected health response: %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("should list the catalog", func(t *testing.T) {
		rec := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var body struct {
			Plans  []planDTO  `json:"plans"`
			AddOns []addOnDTO `json:"add_ons"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Plans) != 4 || len(body.AddOns) != 4 {
			t.Errorf("expected 4 plans and 4 add-ons, got %d and %d", len(body.Plans), len(body.AddOns))
		}
		if rec.Header().Get("X-Trace-Id") == "" {
			t.Error("expected a trace id header")
		}
	})
}

func TestGuard(t *testing.T) {
	t.Run("should apply middlewares in order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}
		h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
			mark("first"), mark("second"))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if fmt.Sprint(order) != "[first second handler]" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("should answer a panic with 500 and the request trace id", func(t *testing.T) {
		s := NewServer(Options{}, newTestLogger())
		h := s.guard(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("want 500, got %d", rec.Code)
		}
		var body errorBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.TraceID == "" || body.TraceID != rec.Header().Get("X-Trace-Id") {
			t.Errorf("expected trace id %q in body, got %q", rec.Header().Get("X-Trace-Id"), body.TraceID)
		}
	})
}

func TestCheckout(t *testing.T) {
	t.Run("should return 201 with the charge", func(t *testing.T) {
		// --- Arrange ---
		api := newTestAPI(nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(checkoutBody))

		// --- Act ---
		rec := api.do(req)

		// --- Assert ---
		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var got purchaseDTO
		_ = json.NewDecoder(rec.Body).Decode(&got)
		if got.PaymentID != "corr-1" || got.PixCode == "" || got.QRCodeImage == "" {
			t.Errorf("unexpected body: %+v", got)
		}
		in := api.checkout.got
		if in.Method != model.PaymentMethodPix || in.Attribution.UTM.Source != "facebook" || in.QuizAnswers["age"] != "25-34" {
			t.Errorf("unexpected checkout input: %+v", in)
		}
		if in.Buyer != nil {
			t.Error("expected an anonymous buyer")
		}
	})

	t.Run("should attach a signed-in buyer", func(t *testing.T) {
		api := newTestAPI(nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(checkoutBody))
		req.Header.Set("Authorization", "Bearer "+mintUserToken(t, testJWTSecret, "u1", "Maria@Example.com", time.Hour))

		rec := api.do(req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("want 201, got %d", rec.Code)
		}
		if b := api.checkout.got.Buyer; b == nil || b.ID != "u1" || b.Email != "maria@example.com" {
			t.Errorf("unexpected buyer: %+v", b)
		}
	})

	t.Run("should reject a forged token", func(t *testing.T) {
		api := newTestAPI(nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(checkoutBody))
		req.Header.Set("Authorization", "Bearer "+mintUserToken(t, "other-secret", "u1", "m@example.com", time.Hour))

		if rec := api.do(req); rec.Code != http.StatusUnauthorized {
			t.Errorf("want 401, got %d", rec.Code)
		}
	})

	errCases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %q", domain.ErrUnknownPlan, "platinum"), http.StatusBadRequest},
		{domain.ErrUnknownAddOn, http.StatusBadRequest},
		{fmt.Errorf("create charge: %w", domain.ErrGatewayUnavailable), http.StatusBadGateway},
		{errors.New("insert failed"), http.StatusInternalServerError},
	}
	for _, tc := range errCases {
		t.Run(fmt.Sprintf("should map %v to %d", tc.err, tc.want), func(t *testing.T) {
			api := newTestAPI(nil)
			api.checkout.err = tc.err
			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(checkoutBody))
			if rec := api.do(req); rec.Code != tc.want {
				t.Errorf("want %d, got %d", tc.want, rec.Code)
			}
		})
	}

	t.Run("should reject malformed JSON", func(t *testing.T) {
		api := newTestAPI(nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString("{"))
		if rec := api.do(req); rec.Code != http.StatusBadRequest {
			t.Errorf("want 400, got %d", rec.Code)
		}
	})

	t.Run("should throttle per client ip", func(t *testing.T) {
		lim := &denyLimiter{}
		api := newTestAPI(func(o *Options) { o.Limiter = lim; o.CheckoutPerMinute = 5 })
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(checkoutBody))
		req.Header.Set("X-Forwarded-For", "203.0.113.7")

		rec := api.do(req)

		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("want 429, got %d", rec.Code)
		}
		if len(lim.keys) != 1 || lim.keys[0] != "rate_limit:checkout:203.0.113.7" {
			t.Errorf("unexpected limiter keys: %v", lim.keys)
		}
	})

	t.Run("should fail open when the limiter errors", func(t *testing.T) {
		api := newTestAPI(func(o *Options) { o.Limiter = brokenLimiter{}; o.CheckoutPerMinute = 5 })
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(checkoutBody))
		if rec := api.do(req); rec.Code != http.StatusCreated {
			t.Errorf("want 201, got %d", rec.Code)
		}
	})

	t.Run("should recover from a panic", func(t *testing.T) {
		api := newTestAPI(nil)
		api.checkout.boom = true
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString(checkoutBody))
		if rec := api.do(req); rec.Code != http.StatusInternalServerError {
			t.Errorf("want 500, got %d", rec.Code)
		}
	})
}

func TestStatus(t *testing.T) {
	paidAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("should return the refreshed status", func(t *testing.T) {
		api := newTestAPI(nil)
		api.ledger.refresh = func(ctx context.Context, id string) (*model.Purchase, error) {
			return &model.Purchase{ID: "p1", PaymentID: id, Status: model.PurchaseStatusPaid, PaidAt: &paidAt, PixCode: "secret"}, nil
		}

		rec := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/corr-1/status", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		var got purchaseDTO
		_ = json.NewDecoder(rec.Body).Decode(&got)
		if got.Status != "PAID" || got.PaymentID != "corr-1" || got.PaidAt == nil || got.PixCode != "" {
			t.Errorf("unexpected body: %+v", got)
		}
	})

	t.Run("should return 502 with the last known status on gateway failure", func(t *testing.T) {
		api := newTestAPI(nil)
		api.ledger.refresh = func(ctx context.Context, id string) (*model.Purchase, error) {
			return &model.Purchase{PaymentID: id, Status: model.PurchaseStatusPending}, fmt.Errorf("%w: timeout", domain.ErrGatewayUnavailable)
		}

		rec := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/corr-1/status", nil))

		if rec.Code != http.StatusBadGateway {
			t.Fatalf("want 502, got %d", rec.Code)
		}
		var got map[string]any
		_ = json.NewDecoder(rec.Body).Decode(&got)
		if got["status"] != "PENDING" || got["error"] == nil {
			t.Errorf("unexpected body: %v", got)
		}
	})

	t.Run("should return 404 for an unknown payment", func(t *testing.T) {
		api := newTestAPI(nil)
		if rec := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/nope/status", nil)); rec.Code != http.StatusNotFound {
			t.Errorf("want 404, got %d", rec.Code)
		}
	})

	t.Run("should throttle per payment id", func(t *testing.T) {
		lim := &denyLimiter{}
		api := newTestAPI(func(o *Options) { o.Limiter = lim; o.PollPerMinute = 30 })
		rec := api.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/corr-9/status", nil))
		if rec.Code != http.StatusTooManyRequests || lim.keys[0] != "rate_limit:poll:corr-9" {
			t.Errorf("unexpected throttle: %d %v", rec.Code, lim.keys)
		}
	})
}

func TestPixWebhook(t *testing.T) {
	const body = `{"event":"OPENPIX:CHARGE_COMPLETED","charge":{"correlationID":"corr-1","status":"COMPLETED"}}`

	signed := func(b string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pix", bytes.NewBufferString(b))
		req.Header.Set(SignatureHeader, SignBody(testWebhookSecret, []byte(b)))
		return req
	}

	t.Run("should hand a signed event to the ledger", func(t *testing.T) {
		api := newTestAPI(nil)
		api.ledger.handleDone = true

		rec := api.do(signed(body))

		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		if len(api.ledger.events) != 1 {
			t.Fatalf("expected one event, got %d", len(api.ledger.events))
		}
		ev := api.ledger.events[0]
		if ev.PaymentID != "corr-1" || ev.Event != "OPENPIX:CHARGE_COMPLETED" || ev.ChargeStatus != "COMPLETED" {
			t.Errorf("unexpected event: %+v", ev)
		}
	})

	t.Run("should acknowledge ignored events", func(t *testing.T) {
		api := newTestAPI(nil)
		rec := api.do(signed(`{"event":"OPENPIX:CHARGE_CREATED","charge":{"correlationID":"corr-1","status":"ACTIVE"}}`))
		if rec.Code != http.StatusOK {
			t.Errorf("want 200, got %d", rec.Code)
		}
	})

	t.Run("should reject a bad signature", func(t *testing.T) {
		api := newTestAPI(nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pix", bytes.NewBufferString(body))
		req.Header.Set(SignatureHeader, "deadbeef")

		rec := api.do(req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("want 401, got %d", rec.Code)
		}
		if len(api.ledger.events) != 0 {
			t.Error("expected the ledger not to be called")
		}
	})

	t.Run("should skip verification without a secret", func(t *testing.T) {
		api := newTestAPI(func(o *Options) { o.WebhookSecret = "" })
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/pix", bytes.NewBufferString(body))
		if rec := api.do(req); rec.Code != http.StatusOK {
			t.Errorf("want 200, got %d", rec.Code)
		}
	})

	t.Run("should ask for redelivery when processing fails", func(t *testing.T) {
		api := newTestAPI(nil)
		api.ledger.handleErr = errors.New("db down")
		if rec := api.do(signed(body)); rec.Code != http.StatusInternalServerError {
			t.Errorf("want 500, got %d", rec.Code)
		}
	})

	t.Run("should reject a malformed payload", func(t *testing.T) {
		api := newTestAPI(nil)
		if rec := api.do(signed("not json")); rec.Code != http.StatusBadRequest {
			t.Errorf("want 400, got %d", rec.Code)
		}
	})
}

func TestAccountLink(t *testing.T) {
	t.Run("should link with the token subject and email", func(t *testing.T) {
		api := newTestAPI(nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/account/link", nil)
		req.Header.Set("Authorization", "Bearer "+mintUserToken(t, testJWTSecret, "u1", "maria@example.com", time.Hour))

		rec := api.do(req)

		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
		if api.linker.userID != "u1" || api.linker.email != "maria@example.com" {
			t.Errorf("unexpected link call: %s %s", api.linker.userID, api.linker.email)
		}
		var res usecase.LinkResult
		_ = json.NewDecoder(rec.Body).Decode(&res)
		if res.Activated != 1 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	cases := map[string]string{
		"missing header":  "",
		"wrong scheme":    "Basic abc",
		"expired token":   "Bearer " + mintUserToken(t, testJWTSecret, "u1", "m@example.com", -time.Minute),
		"token w/o email": "Bearer " + mintUserToken(t, testJWTSecret, "u1", "", time.Hour),
	}
	for name, hdr := range cases {
		t.Run("should reject "+name, func(t *testing.T) {
			api := newTestAPI(nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/account/link", nil)
			if hdr != "" {
				req.Header.Set("Authorization", hdr)
			}
			if rec := api.do(req); rec.Code != http.StatusUnauthorized {
				t.Errorf("want 401, got %d", rec.Code)
			}
			if api.linker.userID != "" {
				t.Error("expected the linker not to run")
			}
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := SignBody("s3cret", body)
	if !VerifyWebhookSignature("s3cret", body, sig) {
		t.Error("expected matching signature to verify")
	}
	if !VerifyWebhookSignature("s3cret", body, " "+string(bytes.ToUpper([]byte(sig)))+" ") {
		t.Error("expected hex case and padding to be ignored")
	}
	if VerifyWebhookSignature("other", body, sig) {
		t.Error("expected a different secret to fail")
	}
	if VerifyWebhookSignature("s3cret", []byte(`{"a":2}`), sig) {
		t.Error("expected a different body to fail")
	}
}
