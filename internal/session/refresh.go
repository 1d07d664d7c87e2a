package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/congo-pay/walletclient/internal/credentials"
	"github.com/congo-pay/walletclient/internal/gateway"
)

// DefaultRefreshPath is the token refresh endpoint used when none is configured.
const DefaultRefreshPath = "/accounts/token/refresh/"

// RotatingStore is the credential surface the refresher needs.
type RotatingStore interface {
	Get(ctx context.Context) (credentials.Pair, bool)
	Swap(ctx context.Context, expectedAccess string, next credentials.Pair) (bool, error)
}

// TokenRefresher exchanges the stored refresh token for a new access token.
// It implements gateway.Refresher and is only installed when refresh-on-401
// is enabled.
type TokenRefresher struct {
	api    Doer
	store  RotatingStore
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// NewTokenRefresher builds a refresher posting to path.
func NewTokenRefresher(api Doer, store RotatingStore, path string, logger *slog.Logger) *TokenRefresher {
	if path == "" {
		path = DefaultRefreshPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRefresher{api: api, store: store, path: path, logger: logger}
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (r *refreshResponse) Validate() error {
	if r.Access == "" {
		return fmt.Errorf("refresh response is missing access")
	}
	return nil
}

// Refresh renews the pair unless another caller already replaced the rejected
// access token, in which case it returns immediately so the caller replays
// with the newer token.
func (t *TokenRefresher) Refresh(ctx context.Context, rejectedAccess string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pair, ok := t.store.Get(ctx)
	if !ok {
		return ErrNoSession
	}
	if pair.Access != rejectedAccess {
		return nil
	}

	var resp refreshResponse
	err := t.api.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      t.path,
		Body:      map[string]string{"refresh": pair.Refresh},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return err
	}

	next := credentials.Pair{Access: resp.Access, Refresh: pair.Refresh}
	if resp.Refresh != "" {
		next.Refresh = resp.Refresh
	}
	swapped, err := t.store.Swap(ctx, rejectedAccess, next)
	if err != nil {
		return err
	}
	if !swapped {
		return ErrSessionChanged
	}
	t.logger.Debug("access token refreshed")
	return nil
}
