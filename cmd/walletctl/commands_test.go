package main

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletclient/internal/backend"
	"github.com/congo-pay/walletclient/internal/config"
	"github.com/congo-pay/walletclient/internal/logging"
	"github.com/congo-pay/walletclient/internal/session"
)

func startStub(t *testing.T) string {
	t.Helper()
	srv, err := backend.New(config.StubConfig{
		AppEnv:          "test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		IdempotencyTTL:  time.Minute,
		SeedEmail:       "adaeze@example.com",
		SeedPassword:    "secret",
		SeedBalance:     decimal.RequireFromString("2547850.00"),
	}, nil, logging.Discard())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return "http://" + ln.Addr().String() + "/api/v1"
}

type result struct {
	code   int
	stdout string
	stderr string
}

func invoke(t *testing.T, cfg config.Config, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), cfg, args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func TestWalletctlSession(t *testing.T) {
	cfg := config.Config{
		APIURL:            startStub(t),
		LogLevel:          "error",
		CredentialBackend: config.BackendFile,
		CredentialFile:    filepath.Join(t.TempDir(), "tokens.json"),
		CredentialKey:     "auth_tokens",
		RequestTimeout:    5 * time.Second,
		RefreshPath:       session.DefaultRefreshPath,
	}

	res := invoke(t, cfg, "", "balance")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "not signed in")

	res = invoke(t, cfg, "secret\n", "login", "-email", "adaeze@example.com")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Signed in as adaeze <adaeze@example.com>")

	res = invoke(t, cfg, "", "whoami")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "adaeze@example.com")

	res = invoke(t, cfg, "", "balance")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "Balance: 2,547,850.00\n", res.stdout)

	res = invoke(t, cfg, "", "transfer", "-to", "merchant", "-amount", "100.50")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, ": completed")
	assert.Contains(t, res.stdout, "Balance: 2,547,749.50")

	res = invoke(t, cfg, "", "transfer", "-to", "merchant", "-amount", "abc")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "please enter a valid amount")

	res = invoke(t, cfg, "", "ledger", "-kind", "debit")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "-100.50")
	assert.Contains(t, res.stdout, "1 entries")
	assert.NotContains(t, res.stdout, "CREDIT")

	res = invoke(t, cfg, "", "-metrics", "ledger")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "net 2,547,749.50")
	assert.Contains(t, res.stderr, "walletclient_gateway_requests_total")

	res = invoke(t, cfg, "", "logout")
	require.Equal(t, 0, res.code, res.stderr)

	res = invoke(t, cfg, "", "whoami")
	assert.Equal(t, 1, res.code)
}

func TestWalletctlRetryKeepsKey(t *testing.T) {
	cfg := config.Config{
		APIURL:            startStub(t),
		LogLevel:          "error",
		CredentialBackend: config.BackendFile,
		CredentialFile:    filepath.Join(t.TempDir(), "tokens.json"),
		CredentialKey:     "auth_tokens",
		RequestTimeout:    5 * time.Second,
	}
	res := invoke(t, cfg, "", "login", "-email", "adaeze@example.com", "-password", "secret")
	require.Equal(t, 0, res.code, res.stderr)

	res = invoke(t, cfg, "n\n", "transfer", "-to", "nobody", "-amount", "1")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Transfer failed: Receiver wallet not found")
	assert.Contains(t, res.stderr, "idempotency key")

	res = invoke(t, cfg, "y\nn\n", "transfer", "-to", "nobody", "-amount", "1")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, 2, strings.Count(res.stderr, "Transfer failed: Receiver wallet not found"), res.stderr)
	assert.Equal(t, 2, strings.Count(res.stderr, "Retry with the same idempotency key?"))
}

func TestWalletctlUsage(t *testing.T) {
	cfg := config.Config{CredentialBackend: config.BackendMemory, RequestTimeout: time.Second}

	res := invoke(t, cfg, "")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "usage: walletctl")

	res = invoke(t, cfg, "", "fly")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, `unknown command "fly"`)
}

func TestFormatAmount(t *testing.T) {
	tests := map[string]string{
		"0":          "0.00",
		"12.5":       "12.50",
		"999.999":    "1,000.00",
		"2547850":    "2,547,850.00",
		"-100.5":     "-100.50",
		"1234567.89": "1,234,567.89",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatAmount(decimal.RequireFromString(in)), in)
	}
}
