package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*FakeGateway)(nil)

// FakeGateway is an in-memory provider for local runs and e2e setups.
// Charges start PENDING; SetStatus moves them.
type FakeGateway struct {
	mu       sync.Mutex
	statuses map[string]model.PurchaseStatus
	down     bool
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{statuses: make(map[string]model.PurchaseStatus)}
}

func (f *FakeGateway) Name() string { return "fake" }

func (f *FakeGateway) NewPaymentID(adapter.ChargeRequest) string { return "fake_" + model.NewID() }

func (f *FakeGateway) CreateCharge(_ context.Context, req adapter.ChargeRequest) (*adapter.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, fmt.Errorf("%w: fake gateway down", domain.ErrGatewayUnavailable)
	}
	id := req.PaymentID
	if id == "" {
		id = f.NewPaymentID(req)
	}
	f.statuses[id] = model.PurchaseStatusPending
	code := fmt.Sprintf("00020126FAKE%s%d", id, req.AmountCents)
	qr, _ := QRDataURI(code)
	return &adapter.Charge{PaymentID: id, PixCode: code, QRImage: qr}, nil
}

func (f *FakeGateway) QueryStatus(_ context.Context, paymentID string) (model.PurchaseStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return "", fmt.Errorf("%w: fake gateway down", domain.ErrGatewayUnavailable)
	}
	s, ok := f.statuses[paymentID]
	if !ok {
		return model.PurchaseStatusPending, nil
	}
	return s, nil
}

func (f *FakeGateway) SetStatus(paymentID string, s model.PurchaseStatus) {
	f.mu.Lock()
	f.statuses[paymentID] = s
	f.mu.Unlock()
}

// SetDown makes every call fail as unreachable.
func (f *FakeGateway) SetDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}
