package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
)

// User mirrors an account of the hosted auth provider. Only the fields the
// payment workflow reads are kept.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

func NewUser(id, email string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	norm, err := NormalizeEmail(email)
	if err != nil {
		return nil, domain.ErrInvalidArgument
	}
	return &User{ID: id, Email: norm, CreatedAt: time.Now()}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
