package model

import (
	"crypto/rand"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
)

type PurchaseStatus string

const (
	PurchaseStatusPending PurchaseStatus = "PENDING" // charge created; awaiting payment
	PurchaseStatusPaid    PurchaseStatus = "PAID"    // money received
	PurchaseStatusFailed  PurchaseStatus = "FAILED"  // expired or rejected at the gateway
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusPaid, PurchaseStatusFailed:
		return true
	}
	return false
}

func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusPaid || s == PurchaseStatusFailed
}

// CanTransition enforces forward-only status moves: PENDING -> PAID | FAILED.
func CanTransition(from, to PurchaseStatus) bool {
	return from == PurchaseStatusPending && to.IsTerminal()
}

type PaymentMethod string

const (
	PaymentMethodPix          PaymentMethod = "PIX"
	PaymentMethodPixRecurring PaymentMethod = "PIX_RECURRING"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodPix || m == PaymentMethodPixRecurring
}

func (m PaymentMethod) Recurring() bool { return m == PaymentMethodPixRecurring }

type Customer struct {
	Name  string
	Email string
	Phone string
}

// UTM holds marketing attribution captured by the funnel.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Term     string `json:"utm_term,omitempty"`
	Content  string `json:"utm_content,omitempty"`
}

// Attribution groups UTM parameters with free-form tracking ids (src, sck, fbclid...).
type Attribution struct {
	UTM      UTM               `json:"utm"`
	Tracking map[string]string `json:"tracking,omitempty"`
}

const (
	maxQuizAnswers    = 64
	maxQuizAnswerSize = 512
)

// QuizAnswers are the funnel questionnaire answers keyed by question id.
type QuizAnswers map[string]string

func (q QuizAnswers) Validate() error {
	if len(q) > maxQuizAnswers {
		return fmt.Errorf("%w: too many quiz answers", domain.ErrInvalidArgument)
	}
	for k, v := range q {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("%w: empty quiz question id", domain.ErrInvalidArgument)
		}
		if len(v) > maxQuizAnswerSize {
			return fmt.Errorf("%w: quiz answer %q too long", domain.ErrInvalidArgument, k)
		}
	}
	return nil
}

// Purchase is one checkout attempt. Status only moves forward and UserID,
// once set, is never cleared.
type Purchase struct {
	ID              string
	PaymentID       string // gateway correlation id
	PlanID          string
	PlanPriceCents  int64
	TotalPriceCents int64
	AddOns          []AddOn
	Method          PaymentMethod
	Status          PurchaseStatus
	Customer        Customer
	Attribution     Attribution
	QuizAnswers     QuizAnswers
	PixCode         string
	QRImage         string
	PaymentLinkURL  string
	UserID          *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
}

// NewID returns a time-sortable identifier for ledger rows.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// NormalizeEmail lowercases and trims an address; it fails on malformed input.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidArgument)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email", domain.ErrInvalidArgument)
	}
	return email, nil
}

func (p *Purchase) HasUser() bool { return p != nil && p.UserID != nil && *p.UserID != "" }

func (p *Purchase) IsLifetime() bool {
	if p.PlanID == PlanLifetime {
		return true
	}
	return HasAddOn(p.AddOns, AddOnLifetime)
}
