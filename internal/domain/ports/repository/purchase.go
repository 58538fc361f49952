package repository

import (
	"context"
	"time"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
)

// -----------------------------
// Purchases (ledger)
// -----------------------------

// LinkableOrphan is an unowned PAID purchase and the account its email matches.
type LinkableOrphan struct {
	Purchase *model.Purchase
	UserID   string
}

type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Purchase) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Purchase, error)
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Purchase, error)
	// SetChargeDetails fills the buyer-facing charge fields. Status is untouched.
	SetChargeDetails(ctx context.Context, tx Tx, paymentID, pixCode, qrImage, paymentLinkURL string) error
	// UpdateStatusIfPending moves a PENDING row to status and reports whether this
	// call performed the transition. false means another caller already did.
	UpdateStatusIfPending(ctx context.Context, tx Tx, paymentID string, status model.PurchaseStatus, paidAt *time.Time) (bool, error)
	// ListPendingSince returns PENDING rows created at or after since, oldest first.
	ListPendingSince(ctx context.Context, tx Tx, since time.Time, limit int) ([]*model.Purchase, error)
	// ListLinkableOrphans returns PAID rows without an owner whose customer email
	// matches an account, least recently touched first, paired with that
	// account's id.
	ListLinkableOrphans(ctx context.Context, tx Tx, limit int) ([]LinkableOrphan, error)
	// DeferOrphan moves an unowned row to the back of the ListLinkableOrphans order.
	DeferOrphan(ctx context.Context, tx Tx, purchaseID string) error
	ListPaidOrphansByEmail(ctx context.Context, tx Tx, email string) ([]*model.Purchase, error)
	// SetUserIfUnset claims an orphan for userID. false means it was already claimed.
	SetUserIfUnset(ctx context.Context, tx Tx, purchaseID, userID string) (bool, error)
}
