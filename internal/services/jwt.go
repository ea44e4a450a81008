package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"coinflip-relay/internal/config"
)

const (
	TokenIssuer     = "coinflip-relay"
	ScopeSettle     = "settle"
	DefaultTokenTTL = 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

type RelayClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// JWTService mints and checks relay access tokens. It is disabled when no
// secret is configured.
type JWTService struct {
	secret []byte
}

func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{secret: []byte(cfg.JWTSecret)}
}

func (s *JWTService) Enabled() bool {
	return len(s.secret) > 0
}

func (s *JWTService) GenerateToken(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := RelayClaims{
		Scope: ScopeSettle,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ValidateToken(tokenString string) (*RelayClaims, error) {
	if !s.Enabled() {
		return nil, ErrInvalidToken
	}

	claims := &RelayClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(TokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Scope != ScopeSettle {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
