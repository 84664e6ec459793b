package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidServiceToken is returned when a service credential fails to
// parse or validate.
var ErrInvalidServiceToken = errors.New("api: invalid service credential")

// ServiceClaims identifies the tenant a short-TTL internal credential is
// scoped to (accepted by the dispatch-claim endpoint; not a caller-facing
// identity).
type ServiceClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// ServiceAuth signs and verifies the short-TTL service credentials accepted
// by the internal claim endpoint. The claimer worker does not mint these; it
// claims dispatches through dispatch.Store directly.
type ServiceAuth struct {
	secret []byte
	ttl    time.Duration
}

// NewServiceAuth builds a ServiceAuth from a shared secret and token TTL.
func NewServiceAuth(secret string, ttl time.Duration) *ServiceAuth {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ServiceAuth{secret: []byte(secret), ttl: ttl}
}

// Mint issues a signed credential scoped to tenantID.
func (a *ServiceAuth) Mint(tenantID string) (string, error) {
	claims := ServiceClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Verify parses and validates a credential, returning its tenant scope.
func (a *ServiceAuth) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &ServiceClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", ErrInvalidServiceToken
	}
	claims, ok := parsed.Claims.(*ServiceClaims)
	if !ok || !parsed.Valid || claims.TenantID == "" {
		return "", ErrInvalidServiceToken
	}
	return claims.TenantID, nil
}
