package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims mirrors the payload the account service signs: {userId, role}.
type jwtClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type jwtHS256Manager struct {
	secret    []byte
	ttl       time.Duration
	clockSkew time.Duration
}

// NewJWTManager builds a TokenManager for HS256 tokens signed with cfg.JWTSecret.
func NewJWTManager(cfg Config) (TokenManager, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, ErrConfig
	}
	return &jwtHS256Manager{
		secret:    []byte(cfg.JWTSecret),
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
	}, nil
}

func (m *jwtHS256Manager) Issue(p Principal, now time.Time) (string, time.Time, error) {
	if p.UserID == "" {
		return "", time.Time{}, errors.New("auth: empty user id")
	}
	exp := now.Add(m.ttl)
	claims := jwtClaims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtHS256Manager) Verify(token string, now time.Time) (Principal, error) {
	var claims jwtClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}
