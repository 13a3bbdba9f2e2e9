package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const issuer = "relay-wallet"

// WalletClaims scopes a bearer token to one wallet id (the subject)
type WalletClaims struct {
	jwt.RegisteredClaims
}

// JWTManager handles JWT generation and validation
type JWTManager struct {
	secretKey []byte
}

// NewJWTManager creates a new JWTManager
func NewJWTManager(secretKey string) *JWTManager {
	return &JWTManager{secretKey: []byte(secretKey)}
}

// Generate creates a token for walletID valid for ttl
func (m *JWTManager) Generate(walletID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := WalletClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   walletID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Validate validates the JWT token and returns the claims
func (m *JWTManager) Validate(tokenString string) (*WalletClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WalletClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}

	claims, ok := token.Claims.(*WalletClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

type subjectKey struct{}

// WithSubject stores the authenticated wallet id in ctx
func WithSubject(ctx context.Context, walletID string) context.Context {
	return context.WithValue(ctx, subjectKey{}, walletID)
}

// Allows reports whether the request context may act on walletID.
// Contexts without a subject come from unauthenticated servers and are allowed.
func Allows(ctx context.Context, walletID string) bool {
	subject, ok := ctx.Value(subjectKey{}).(string)
	if !ok {
		return true
	}
	return subject == walletID
}
