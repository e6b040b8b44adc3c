package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the caller's coaching as tenant_id and staff role.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

var (
	errEmptySecret   = errors.New("auth: empty secret")
	errMissingTenant = errors.New("auth: missing tenant_id")
	errInvalidRole   = errors.New("auth: invalid role")
)

// ParseJWT verifies an HS256 token and its fee-service claims. Signature,
// expiry and format failures wrap ErrInvalidToken.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TenantID == "" {
		return nil, errMissingTenant
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, errInvalidRole
	}
	return claims, nil
}

// IssueJWT signs a token for subject acting as role inside coachingID.
// A non-positive ttl means one hour.
func IssueJWT(secret []byte, coachingID string, role Role, subject string, ttl time.Duration) (string, error) {
	switch {
	case len(secret) == 0:
		return "", errEmptySecret
	case coachingID == "":
		return "", errMissingTenant
	}
	normalized, ok := NormalizeRole(string(role))
	if !ok {
		return "", errInvalidRole
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID: coachingID,
		Role:     string(normalized),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}).SignedString(secret)
}
