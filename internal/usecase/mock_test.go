//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/adapter"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func strPtr(s string) *string { return &s }

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu       sync.Mutex
	seq      int
	Charges  []adapter.ChargeRequest
	Statuses map[string]model.PurchaseStatus
	Queries  map[string]int

	CreateChargeFunc func(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error)
	QueryStatusFunc  func(ctx context.Context, paymentID string) (model.PurchaseStatus, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func NewMockGateway() *MockGateway {
	return &MockGateway{Statuses: map[string]model.PurchaseStatus{}, Queries: map[string]int{}}
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) NewPaymentID(req adapter.ChargeRequest) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return "corr-" + string(rune('a'+m.seq-1))
}

func (m *MockGateway) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error) {
	if m.CreateChargeFunc != nil {
		return m.CreateChargeFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Charges = append(m.Charges, req)
	id := req.PaymentID
	m.Statuses[id] = model.PurchaseStatusPending
	return &adapter.Charge{PaymentID: id, PixCode: "000201" + id, QRImage: "data:image/png;base64,AA=="}, nil
}

func (m *MockGateway) QueryStatus(ctx context.Context, paymentID string) (model.PurchaseStatus, error) {
	m.mu.Lock()
	m.Queries[paymentID]++
	m.mu.Unlock()
	if m.QueryStatusFunc != nil {
		return m.QueryStatusFunc(ctx, paymentID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Statuses[paymentID]; ok {
		return s, nil
	}
	return model.PurchaseStatusPending, nil
}

func (m *MockGateway) QueryCount(paymentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Queries[paymentID]
}

// ---- Mock OrderNotifier ----

type MockNotifier struct {
	mu     sync.Mutex
	Events []adapter.OrderEvent
}

var _ adapter.OrderNotifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, ev adapter.OrderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

func (m *MockNotifier) Count(status adapter.OrderEventStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.Events {
		if ev.Status == status {
			n++
		}
	}
	return n
}

// =============================
// Repositories
// =============================

// ---- Mock PurchaseRepository ----

type MockPurchaseRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Purchase // by id
	Defers int
	// owner resolves a customer email to an account id, like the users join.
	owner func(email string) (string, bool)

	SaveFunc                  func(ctx context.Context, tx repository.Tx, p *model.Purchase) error
	SetChargeDetailsFunc      func(ctx context.Context, tx repository.Tx, paymentID, pixCode, qrImage, paymentLinkURL string) error
	ListLinkableOrphansFunc   func(ctx context.Context, tx repository.Tx, n int) ([]repository.LinkableOrphan, error)
	UpdateStatusIfPendingFunc func(ctx context.Context, tx repository.Tx, paymentID string, status model.PurchaseStatus, paidAt *time.Time) (bool, error)
	SetUserIfUnsetFunc        func(ctx context.Context, tx repository.Tx, purchaseID, userID string) (bool, error)
}

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func NewMockPurchaseRepo() *MockPurchaseRepo {
	return &MockPurchaseRepo{rows: map[string]*model.Purchase{}}
}

func clonePurchase(p *model.Purchase) *model.Purchase {
	cp := *p
	if p.UserID != nil {
		cp.UserID = strPtr(*p.UserID)
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		cp.PaidAt = &t
	}
	cp.AddOns = append([]model.AddOn(nil), p.AddOns...)
	return &cp
}

func (m *MockPurchaseRepo) Seed(p *model.Purchase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = clonePurchase(p)
}

func (m *MockPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.PaymentID == p.PaymentID || r.ID == p.ID {
			return domain.ErrAlreadyExists
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.rows[p.ID] = clonePurchase(p)
	return nil
}

func (m *MockPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok {
		return clonePurchase(p), nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockPurchaseRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.PaymentID == paymentID {
			return clonePurchase(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPurchaseRepo) SetChargeDetails(ctx context.Context, tx repository.Tx, paymentID, pixCode, qrImage, paymentLinkURL string) error {
	if m.SetChargeDetailsFunc != nil {
		return m.SetChargeDetailsFunc(ctx, tx, paymentID, pixCode, qrImage, paymentLinkURL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.PaymentID == paymentID {
			p.PixCode, p.QRImage, p.PaymentLinkURL = pixCode, qrImage, paymentLinkURL
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockPurchaseRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, paymentID string, status model.PurchaseStatus, paidAt *time.Time) (bool, error) {
	if m.UpdateStatusIfPendingFunc != nil {
		return m.UpdateStatusIfPendingFunc(ctx, tx, paymentID, status, paidAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rows {
		if p.PaymentID != paymentID {
			continue
		}
		if p.Status != model.PurchaseStatusPending {
			return false, nil
		}
		p.Status = status
		p.PaidAt = paidAt
		return true, nil
	}
	return false, nil
}

func (m *MockPurchaseRepo) sorted(filter func(*model.Purchase) bool) []*model.Purchase {
	var out []*model.Purchase
	for _, p := range m.rows {
		if filter(p) {
			out = append(out, clonePurchase(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func limit(ps []*model.Purchase, n int) []*model.Purchase {
	if n > 0 && len(ps) > n {
		return ps[:n]
	}
	return ps
}

func (m *MockPurchaseRepo) ListPendingSince(ctx context.Context, tx repository.Tx, since time.Time, n int) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return limit(m.sorted(func(p *model.Purchase) bool {
		return p.Status == model.PurchaseStatusPending && !p.CreatedAt.Before(since)
	}), n), nil
}

func (m *MockPurchaseRepo) ListLinkableOrphans(ctx context.Context, tx repository.Tx, n int) ([]repository.LinkableOrphan, error) {
	if m.ListLinkableOrphansFunc != nil {
		return m.ListLinkableOrphansFunc(ctx, tx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	owners := map[string]string{}
	rows := m.sorted(func(p *model.Purchase) bool {
		if p.Status != model.PurchaseStatusPaid || p.UserID != nil || m.owner == nil {
			return false
		}
		id, ok := m.owner(p.Customer.Email)
		owners[p.ID] = id
		return ok
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].UpdatedAt.Before(rows[j].UpdatedAt) })
	var out []repository.LinkableOrphan
	for _, p := range limit(rows, n) {
		out = append(out, repository.LinkableOrphan{Purchase: p, UserID: owners[p.ID]})
	}
	return out, nil
}

func (m *MockPurchaseRepo) DeferOrphan(ctx context.Context, tx repository.Tx, purchaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[purchaseID]; ok && p.UserID == nil {
		m.Defers++
		p.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MockPurchaseRepo) ListPaidOrphansByEmail(ctx context.Context, tx repository.Tx, email string) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(p *model.Purchase) bool {
		return p.Status == model.PurchaseStatusPaid && p.UserID == nil && strings.EqualFold(p.Customer.Email, email)
	}), nil
}

func (m *MockPurchaseRepo) SetUserIfUnset(ctx context.Context, tx repository.Tx, purchaseID, userID string) (bool, error) {
	if m.SetUserIfUnsetFunc != nil {
		return m.SetUserIfUnsetFunc(ctx, tx, purchaseID, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[purchaseID]
	if !ok || p.UserID != nil {
		return false, nil
	}
	p.UserID = strPtr(userID)
	return true, nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu      sync.Mutex
	rows    map[string]*model.UserSubscription
	Upserts int

	UpsertFunc func(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{rows: map[string]*model.UserSubscription{}}
}

func (m *MockSubscriptionRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.UserID] = &cp
	m.Upserts++
	return nil
}

func (m *MockSubscriptionRepo) DeactivateExpired(ctx context.Context, tx repository.Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.rows {
		if s.IsActive && s.IsExpired(now) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *MockSubscriptionRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// ---- Mock RenewalRepository ----

type MockRenewalRepo struct {
	mu      sync.Mutex
	Records []*model.RenewalRecord
}

var _ repository.RenewalRepository = (*MockRenewalRepo)(nil)

func (m *MockRenewalRepo) Save(ctx context.Context, tx repository.Tx, r *model.RenewalRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Records {
		if existing.PurchaseID == r.PurchaseID {
			return false, nil
		}
	}
	m.Records = append(m.Records, r)
	return true, nil
}

func (m *MockRenewalRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.RenewalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RenewalRecord
	for _, r := range m.Records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User

	SaveFunc        func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByEmailFunc func(ctx context.Context, tx repository.Tx, email string) (*model.User, error)
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{users: map[string]*model.User{}}
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	if m.FindByEmailFunc != nil {
		return m.FindByEmailFunc(ctx, tx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Fixtures
// =============================

type fixture struct {
	purchases *MockPurchaseRepo
	subs      *MockSubscriptionRepo
	renewals  *MockRenewalRepo
	users     *MockUserRepo
	gateway   *MockGateway
	notifier  *MockNotifier
	tm        *MockTxManager
}

func newFixture() *fixture {
	f := &fixture{
		purchases: NewMockPurchaseRepo(),
		subs:      NewMockSubscriptionRepo(),
		renewals:  &MockRenewalRepo{},
		users:     NewMockUserRepo(),
		gateway:   NewMockGateway(),
		notifier:  &MockNotifier{},
		tm:        NewMockTxManager(),
	}
	f.purchases.owner = func(email string) (string, bool) {
		u, err := f.users.FindByEmail(context.Background(), repository.NoTX, email)
		if err != nil {
			return "", false
		}
		return u.ID, true
	}
	return f
}

func paidPurchase(id, paymentID, planID, email string, method model.PaymentMethod, addOns ...model.AddOn) *model.Purchase {
	plan, _ := model.PlanByID(planID)
	return &model.Purchase{
		ID:              id,
		PaymentID:       paymentID,
		PlanID:          planID,
		PlanPriceCents:  plan.PriceCents,
		TotalPriceCents: model.TotalCents(plan, addOns),
		AddOns:          addOns,
		Method:          method,
		Status:          model.PurchaseStatusPaid,
		Customer:        model.Customer{Name: "Maria", Email: email},
		CreatedAt:       time.Now().UTC().Add(-time.Hour),
	}
}
