package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"youthexchange/internal/domain"
)

const tokenIssuer = "youthexchange"

type jwtClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// JWTSigner issues and verifies HS256 session tokens. Every token carries a unique jti so it
// can be revoked individually.
type JWTSigner struct {
	secret []byte
	now    func() time.Time
}

// NewJWTSigner returns a signer using secret for both signing and verification.
func NewJWTSigner(secret string) *JWTSigner {
	return &JWTSigner{secret: []byte(secret), now: time.Now}
}

var (
	_ domain.TokenIssuer   = (*JWTSigner)(nil)
	_ domain.TokenVerifier = (*JWTSigner)(nil)
)

func (s *JWTSigner) Issue(principalID, email string, roles []string, expiry time.Duration) (string, *domain.Claims, error) {
	now := s.now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		Email: email,
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, toDomainClaims(&claims), nil
}

// Verify checks the signature and expiry. Any failure is reported as domain.ErrUnauthorized.
func (s *JWTSigner) Verify(token string) (*domain.Claims, error) {
	claims := &jwtClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return toDomainClaims(claims), nil
}

func toDomainClaims(c *jwtClaims) *domain.Claims {
	out := &domain.Claims{
		PrincipalID: c.Subject,
		Email:       c.Email,
		Roles:       c.Roles,
		TokenID:     c.ID,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}
