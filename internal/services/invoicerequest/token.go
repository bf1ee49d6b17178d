package invoicerequest

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"invoice-integrity-backend/internal/config"
)

var (
	// ErrTokenExpired means the confirmation window has passed.
	ErrTokenExpired = errors.New("invoicerequest: token has expired")
	// ErrTokenInvalid covers bad signatures, malformed tokens, and
	// claims that fail validation. Fail closed.
	ErrTokenInvalid = errors.New("invoicerequest: token is invalid")
)

// Claims carries the intended invoice fields through the confirmation
// handshake. No invoice state exists until the token is confirmed.
type Claims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	CustomerID string `json:"customer_id"`
	PackageID  string `json:"package_id"`
	Note       string `json:"note,omitempty"`
}

// TokenCodec signs and verifies confirmation tokens.
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenCodec(cfg config.TokenConfig) *TokenCodec {
	return &TokenCodec{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
	}
}

// Issue creates a signed token with the configured fixed expiry.
func (c *TokenCodec) Issue(customerID, packageID uuid.UUID, email, note string, now time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Email:      email,
		CustomerID: customerID.String(),
		PackageID:  packageID.String(),
		Note:       note,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks signature and expiry and returns the claims.
func (c *TokenCodec) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return c.secret, nil
	}, jwt.WithIssuer(c.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
