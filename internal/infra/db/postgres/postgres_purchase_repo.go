package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/model"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain/ports/repository"
	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/infra/security"
)

var _ repository.PurchaseRepository = (*PostgresPurchaseRepo)(nil)

// PostgresPurchaseRepo stores the purchase ledger. Customer phone numbers go
// through the FieldCipher on the way in and out.
type PostgresPurchaseRepo struct {
	pool   *pgxpool.Pool
	cipher security.FieldCipher
}

func NewPostgresPurchaseRepo(pool *pgxpool.Pool, cipher security.FieldCipher) *PostgresPurchaseRepo {
	if cipher == nil {
		cipher = security.Plaintext{}
	}
	return &PostgresPurchaseRepo{pool: pool, cipher: cipher}
}

const purchaseColumns = `
id, payment_id, plan_id, plan_price_cents, total_price_cents, add_ons, payment_method, status,
customer_name, customer_email, customer_phone, attribution, quiz_answers,
pix_code, qr_image, payment_link_url, user_id, created_at, updated_at, paid_at`

func (r *PostgresPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	if p == nil || p.ID == "" || p.PaymentID == "" {
		return domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	phone, err := r.cipher.Seal(p.Customer.Phone)
	if err != nil {
		return fmt.Errorf("seal phone: %w", err)
	}
	attribution, err := toJSON(p.Attribution)
	if err != nil {
		return fmt.Errorf("marshal attribution: %w", err)
	}
	quiz, err := toJSON(p.QuizAnswers)
	if err != nil {
		return fmt.Errorf("marshal quiz answers: %w", err)
	}

	// insert-only: status moves through UpdateStatusIfPending and nowhere else
	const q = `
INSERT INTO purchases (` + purchaseColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.PaymentID, p.PlanID, p.PlanPriceCents, p.TotalPriceCents, model.AddOnStrings(p.AddOns),
		string(p.Method), string(p.Status),
		p.Customer.Name, p.Customer.Email, phone, attribution, quiz,
		p.PixCode, p.QRImage, p.PaymentLinkURL, p.UserID, p.CreatedAt, p.UpdatedAt, p.PaidAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *PostgresPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id=$1`
	if isTx(tx) {
		q += ` FOR UPDATE`
	}
	return r.queryOne(ctx, tx, q, id)
}

func (r *PostgresPurchaseRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchases WHERE payment_id=$1`
	if isTx(tx) {
		q += ` FOR UPDATE`
	}
	return r.queryOne(ctx, tx, q, paymentID)
}

func (r *PostgresPurchaseRepo) SetChargeDetails(ctx context.Context, tx repository.Tx, paymentID, pixCode, qrImage, paymentLinkURL string) error {
	const q = `
UPDATE purchases
   SET pix_code=$2, qr_image=$3, payment_link_url=$4, updated_at=NOW()
 WHERE payment_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, paymentID, pixCode, qrImage, paymentLinkURL)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatusIfPending only touches rows still PENDING, so concurrent pollers
// racing on the same payment see exactly one true.
func (r *PostgresPurchaseRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, paymentID string, status model.PurchaseStatus, paidAt *time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE purchases
   SET status=$2, paid_at=COALESCE($3, paid_at), updated_at=NOW()
 WHERE payment_id=$1 AND status='PENDING';`
	tag, err := execSQL(ctx, r.pool, tx, q, paymentID, string(status), paidAt)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresPurchaseRepo) ListPendingSince(ctx context.Context, tx repository.Tx, since time.Time, limit int) ([]*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + `
  FROM purchases
 WHERE status='PENDING' AND created_at >= $1
 ORDER BY created_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, since, limit)
}

// ListLinkableOrphans matches accounts in SQL so the LIMIT only counts rows
// that can actually be linked.
func (r *PostgresPurchaseRepo) ListLinkableOrphans(ctx context.Context, tx repository.Tx, limit int) ([]repository.LinkableOrphan, error) {
	const q = `
WITH linkable AS (
  SELECT p.*, u.id AS owner_id
    FROM purchases p
    JOIN users u ON lower(u.email)=lower(p.customer_email)
   WHERE p.status='PAID' AND p.user_id IS NULL
)
SELECT ` + purchaseColumns + `, owner_id
  FROM linkable
 ORDER BY updated_at ASC, created_at ASC
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.LinkableOrphan
	for rows.Next() {
		var owner string
		p, err := r.scan(rows, &owner)
		if err != nil {
			return nil, err
		}
		out = append(out, repository.LinkableOrphan{Purchase: p, UserID: owner})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *PostgresPurchaseRepo) DeferOrphan(ctx context.Context, tx repository.Tx, purchaseID string) error {
	const q = `UPDATE purchases SET updated_at=NOW() WHERE id=$1 AND user_id IS NULL;`
	if _, err := execSQL(ctx, r.pool, tx, q, purchaseID); err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *PostgresPurchaseRepo) ListPaidOrphansByEmail(ctx context.Context, tx repository.Tx, email string) ([]*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + `
  FROM purchases
 WHERE status='PAID' AND user_id IS NULL AND lower(customer_email)=lower($1)
 ORDER BY created_at ASC;`
	return r.queryMany(ctx, tx, q, email)
}

// SetUserIfUnset never overwrites an existing owner.
func (r *PostgresPurchaseRepo) SetUserIfUnset(ctx context.Context, tx repository.Tx, purchaseID, userID string) (bool, error) {
	if purchaseID == "" || userID == "" {
		return false, domain.ErrInvalidArgument
	}
	const q = `UPDATE purchases SET user_id=$2, updated_at=NOW() WHERE id=$1 AND user_id IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, purchaseID, userID)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresPurchaseRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...any) (*model.Purchase, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := r.scan(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PostgresPurchaseRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...any) ([]*model.Purchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.Purchase
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *PostgresPurchaseRepo) scan(row pgx.Row, extra ...any) (*model.Purchase, error) {
	var (
		p                 model.Purchase
		addOns            []string
		method, status    string
		phone             string
		attribution, quiz []byte
	)
	dest := []any{
		&p.ID, &p.PaymentID, &p.PlanID, &p.PlanPriceCents, &p.TotalPriceCents, &addOns, &method, &status,
		&p.Customer.Name, &p.Customer.Email, &phone, &attribution, &quiz,
		&p.PixCode, &p.QRImage, &p.PaymentLinkURL, &p.UserID, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, mapScanErr(err)
	}

	p.Method = model.PaymentMethod(method)
	p.Status = model.PurchaseStatus(status)
	p.AddOns = make([]model.AddOn, 0, len(addOns))
	for _, a := range addOns {
		p.AddOns = append(p.AddOns, model.AddOn(a))
	}
	if p.Customer.Phone, err = r.cipher.Open(phone); err != nil {
		return nil, fmt.Errorf("open phone: %w", err)
	}
	if len(attribution) > 0 {
		if err := json.Unmarshal(attribution, &p.Attribution); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(quiz) > 0 {
		if err := json.Unmarshal(quiz, &p.QuizAnswers); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &p, nil
}

func mapScanErr(err error) error {
	switch err {
	case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
		return err
	default:
		return domain.ErrReadDatabaseRow
	}
}
