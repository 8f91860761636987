package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"survey-backend/internal/metadata"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

var errBadClaims = errors.New("invalid token claims")

// TokenPair is the response returned after successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Claims carries roles and assigned areas, so record access is decided
// without a database round trip.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
	Areas []string `json:"areas,omitempty"`
}

func (c *Claims) User() *metadata.UserContext {
	return &metadata.UserContext{ID: c.Subject, Roles: c.Roles, Areas: c.Areas}
}

// Tokens issues and verifies HS256 access tokens and hands out opaque
// refresh tokens.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		accessTTL:  AccessTokenTTL,
		refreshTTL: RefreshTokenTTL,
		now:        time.Now,
	}
}

// Access signs an access token for user.
func (t *Tokens) Access(user *metadata.UserContext) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
		Roles: user.Roles,
		Areas: user.Areas,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Parse verifies an access token and returns its user.
func (t *Tokens) Parse(token string) (*metadata.UserContext, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errBadClaims
	}
	return claims.User(), nil
}

// Refresh returns a new opaque refresh token and its expiry.
func (t *Tokens) Refresh() (string, time.Time) {
	return uuid.NewString(), t.now().Add(t.refreshTTL)
}

func (t *Tokens) pair(access, refresh string) *TokenPair {
	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int(t.accessTTL.Seconds())}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
