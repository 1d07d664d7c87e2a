package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrInvalidToken covers bad signatures, expiry, wrong token type and
// revoked versions.
var ErrInvalidToken = errors.New("token is invalid or expired")

// Claims are carried by both access and refresh tokens.
type Claims struct {
	TokenType string `json:"token_type"`
	Version   int    `json:"ver"`
	jwt.RegisteredClaims
}

// TokenPair is what login and refresh hand back.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Tokens signs and verifies HS256 tokens. Access and refresh tokens use
// separate secrets so one can never stand in for the other.
type Tokens struct {
	accounts      AccountRepository
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokens builds a token service.
func NewTokens(accounts AccountRepository, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) (*Tokens, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token secrets are required")
	}
	return &Tokens{
		accounts:      accounts,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

// Issue creates a fresh pair for account.
func (t *Tokens) Issue(account Account) (TokenPair, error) {
	access, err := t.sign(account, tokenTypeAccess, t.accessSecret, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(account, tokenTypeRefresh, t.refreshSecret, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (t *Tokens) sign(account Account, kind string, secret []byte, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		TokenType: kind,
		Version:   account.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Refresh verifies a refresh token and rotates the pair.
func (t *Tokens) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	account, err := t.verify(ctx, refreshToken, tokenTypeRefresh, t.refreshSecret)
	if err != nil {
		return TokenPair{}, err
	}
	return t.Issue(account)
}

// VerifyAccess returns the account id carried by a valid access token.
func (t *Tokens) VerifyAccess(ctx context.Context, accessToken string) (string, error) {
	account, err := t.verify(ctx, accessToken, tokenTypeAccess, t.accessSecret)
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

func (t *Tokens) verify(ctx context.Context, raw, kind string, secret []byte) (Account, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return Account{}, ErrInvalidToken
	}
	if claims.TokenType != kind {
		return Account{}, ErrInvalidToken
	}
	account, err := t.accounts.FindByID(ctx, claims.Subject)
	if err != nil || account.TokenVersion != claims.Version {
		return Account{}, ErrInvalidToken
	}
	return account, nil
}
