package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/marketingluizamorim/pwa-encontro-com-f-variante-b-sub002/internal/domain"
)

// UserClaims is the subset of the auth provider's access token we read.
type UserClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 access tokens issued by the hosted auth provider.
type TokenVerifier struct {
	secret   []byte
	audience string
}

func NewTokenVerifier(secret, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), audience: audience}
}

func (v *TokenVerifier) Enabled() bool { return v != nil && len(v.secret) > 0 }

func (v *TokenVerifier) Verify(raw string) (*UserClaims, error) {
	if !v.Enabled() {
		return nil, fmt.Errorf("%w: token verification not configured", domain.ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	claims := &UserClaims{}
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: token without sub or email", domain.ErrUnauthorized)
	}
	return claims, nil
}

// bearer extracts the token from "Authorization: Bearer <jwt>"; ok is false
// when the header is absent.
func bearer(r *http.Request) (token string, ok bool, err error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" {
		return "", false, nil
	}
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", true, fmt.Errorf("%w: malformed authorization header", domain.ErrUnauthorized)
	}
	return strings.TrimSpace(parts[1]), true, nil
}
