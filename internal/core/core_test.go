package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletclient/internal/backend"
	"github.com/congo-pay/walletclient/internal/config"
	"github.com/congo-pay/walletclient/internal/credentials"
	"github.com/congo-pay/walletclient/internal/ledger"
	"github.com/congo-pay/walletclient/internal/logging"
	"github.com/congo-pay/walletclient/internal/metrics"
	"github.com/congo-pay/walletclient/internal/session"
	"github.com/congo-pay/walletclient/internal/transfer"
)

const (
	seedEmail    = "adaeze@example.com"
	seedPassword = "secret"
)

func startStub(t *testing.T) (*backend.Server, string) {
	t.Helper()
	srv, err := backend.New(config.StubConfig{
		AppName:         "walletstub-test",
		AppEnv:          "test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		IdempotencyTTL:  time.Minute,
		SeedEmail:       seedEmail,
		SeedPassword:    seedPassword,
		SeedBalance:     decimal.RequireFromString("2547850.00"),
	}, nil, logging.Discard())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, "http://" + ln.Addr().String() + "/api/v1"
}

func clientConfig(apiURL string) config.Config {
	return config.Config{
		APIURL:            apiURL,
		CredentialBackend: config.BackendMemory,
		CredentialKey:     "auth_tokens",
		RequestTimeout:    5 * time.Second,
		RefreshPath:       session.DefaultRefreshPath,
	}
}

func newCore(t *testing.T, cfg config.Config, opts ...Option) *Core {
	t.Helper()
	c, err := New(context.Background(), cfg, logging.Discard(), opts...)
	require.NoError(t, err)
	t.Cleanup(c.Dispose)
	return c
}

func loggedIn(t *testing.T, apiURL string, opts ...Option) *Core {
	t.Helper()
	c := newCore(t, clientConfig(apiURL), opts...)
	ctx := context.Background()
	require.Equal(t, session.StateAnonymous, c.Init(ctx))
	require.NoError(t, c.Session.Login(ctx, seedEmail, seedPassword))
	return c
}

func TestEndToEndAgainstStub(t *testing.T) {
	_, apiURL := startStub(t)
	c := loggedIn(t, apiURL)
	ctx := context.Background()

	profile, ok := c.Session.Current()
	require.True(t, ok)
	assert.Equal(t, "adaeze", profile.ID)
	assert.Equal(t, seedEmail, profile.Email)

	balance, err := c.Balance.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2547850.00", balance.StringFixed(2))

	entries, err := c.Ledger.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindCredit, entries[0].Kind)

	out, err := c.Transfers.Submit(ctx, "merchant", "100.50")
	require.NoError(t, err)
	assert.Equal(t, backend.StatusCompleted, out.Status)
	assert.NotEmpty(t, out.TransactionID)

	balance, err = c.Balance.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2547749.50", balance.StringFixed(2))

	entries, err = c.Ledger.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, out.TransactionID, entries[0].TransactionID)
	assert.Equal(t, ledger.KindDebit, entries[0].Kind)
	assert.Equal(t, "100.50", entries[0].Amount.StringFixed(2))

	ok200 := testutil.ToFloat64(c.Metrics.Requests().WithLabelValues(http.MethodGet, "/wallets/balance/", metrics.OutcomeOK))
	assert.Equal(t, float64(2), ok200)
}

func TestRetryWithSameKeyAppliesOnce(t *testing.T) {
	srv, apiURL := startStub(t)
	c := loggedIn(t, apiURL)
	ctx := context.Background()

	_, err := c.Balance.Fetch(ctx)
	require.NoError(t, err)
	total := srv.Book().Total()

	req, err := c.Transfers.Prepare("merchant", "250")
	require.NoError(t, err)

	first, err := c.Transfers.Resubmit(ctx, req)
	require.NoError(t, err)
	second, err := c.Transfers.Resubmit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	balance, err := c.Balance.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2547600.00", balance.StringFixed(2))
	assert.True(t, total.Equal(srv.Book().Total()), "book must stay balanced")

	entries, err := c.Ledger.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "a replayed key must not post twice")
}

func TestKeyReuseWithDifferentAmountIsRejected(t *testing.T) {
	_, apiURL := startStub(t)
	c := loggedIn(t, apiURL)
	ctx := context.Background()
	_, err := c.Balance.Fetch(ctx)
	require.NoError(t, err)

	req, err := c.Transfers.Prepare("merchant", "10")
	require.NoError(t, err)
	_, err = c.Transfers.Resubmit(ctx, req)
	require.NoError(t, err)

	req.Amount = decimal.NewFromInt(11)
	_, err = c.Transfers.Resubmit(ctx, req)
	var subErr *transfer.SubmitError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, req.IdempotencyKey, subErr.Key)
}

func TestBackendMessagesSurfaceVerbatim(t *testing.T) {
	_, apiURL := startStub(t)
	c := loggedIn(t, apiURL)
	ctx := context.Background()
	_, err := c.Balance.Fetch(ctx)
	require.NoError(t, err)

	_, err = c.Transfers.Submit(ctx, "nobody", "1")
	assert.EqualError(t, err, "Receiver wallet not found")

	_, err = c.Transfers.Submit(ctx, "merchant", "9999999")
	var vErr *transfer.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, transfer.ReasonInsufficientBalance, vErr.Reason)
}

func TestWrongPasswordLeavesNoCredentials(t *testing.T) {
	_, apiURL := startStub(t)
	c := newCore(t, clientConfig(apiURL))
	ctx := context.Background()
	c.Init(ctx)

	err := c.Session.Login(ctx, seedEmail, "wrong-password")
	assert.EqualError(t, err, "No active account found with the given credentials")
	_, present := c.Credentials.Get(ctx)
	assert.False(t, present)
	assert.Equal(t, session.StateAnonymous, c.Session.State())
}

func TestSessionSurvivesRestart(t *testing.T) {
	_, apiURL := startStub(t)
	shared := credentials.NewMemoryBackend()
	ctx := context.Background()

	first := loggedIn(t, apiURL, WithCredentialBackend(shared))
	first.Dispose()

	second := newCore(t, clientConfig(apiURL), WithCredentialBackend(shared))
	assert.Equal(t, session.StateAuthenticated, second.Init(ctx))

	second.Logout(ctx)
	third := newCore(t, clientConfig(apiURL), WithCredentialBackend(shared))
	assert.Equal(t, session.StateAnonymous, third.Init(ctx))
}

func TestRejectedStoredTokenIsCleared(t *testing.T) {
	_, apiURL := startStub(t)
	shared := credentials.NewMemoryBackend()
	ctx := context.Background()
	store := credentials.NewStore(shared, logging.Discard())
	require.NoError(t, store.Set(ctx, credentials.Pair{Access: "stale", Refresh: "stale"}))

	c := newCore(t, clientConfig(apiURL), WithCredentialBackend(shared))
	assert.Equal(t, session.StateAnonymous, c.Init(ctx))
	_, present := store.Get(ctx)
	assert.False(t, present)
}

func TestRefreshOn401ReplaysRequest(t *testing.T) {
	_, apiURL := startStub(t)
	cfg := clientConfig(apiURL)
	cfg.RefreshOn401 = true
	c := newCore(t, cfg)
	ctx := context.Background()
	c.Init(ctx)
	require.NoError(t, c.Session.Login(ctx, seedEmail, seedPassword))

	pair, ok := c.Credentials.Get(ctx)
	require.True(t, ok)
	require.NoError(t, c.Credentials.Set(ctx, credentials.Pair{Access: "expired", Refresh: pair.Refresh}))

	balance, err := c.Balance.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2547850.00", balance.StringFixed(2))

	rotated, ok := c.Credentials.Get(ctx)
	require.True(t, ok)
	assert.NotEqual(t, "expired", rotated.Access)
}

func TestCredentialBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{name: "memory", cfg: config.Config{CredentialBackend: config.BackendMemory}},
		{name: "file", cfg: config.Config{CredentialBackend: config.BackendFile, CredentialFile: filepath.Join(t.TempDir(), "tokens.json"), CredentialKey: "auth_tokens"}},
		{name: "redis", cfg: config.Config{CredentialBackend: config.BackendRedis, RedisURL: "redis://" + mr.Addr(), CredentialKey: "auth_tokens"}},
		{name: "redis_unreachable", cfg: config.Config{CredentialBackend: config.BackendRedis, RedisURL: "redis://127.0.0.1:1"}, wantErr: true},
		{name: "unknown", cfg: config.Config{CredentialBackend: "floppy"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.APIURL = "http://127.0.0.1:1/api/v1"
			cfg.RequestTimeout = time.Second
			c, err := New(context.Background(), cfg, logging.Discard())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer c.Dispose()

			ctx := context.Background()
			pair := credentials.Pair{Access: "a", Refresh: "r"}
			require.NoError(t, c.Credentials.Set(ctx, pair))
			got, ok := c.Credentials.Get(ctx)
			require.True(t, ok)
			assert.Equal(t, pair, got)
		})
	}
}
