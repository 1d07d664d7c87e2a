package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/congo-pay/walletclient/internal/config"
	"github.com/congo-pay/walletclient/internal/credentials"
	"github.com/congo-pay/walletclient/internal/gateway"
	"github.com/congo-pay/walletclient/internal/idempotency"
	"github.com/congo-pay/walletclient/internal/infra"
	"github.com/congo-pay/walletclient/internal/ledger"
	"github.com/congo-pay/walletclient/internal/metrics"
	"github.com/congo-pay/walletclient/internal/session"
	"github.com/congo-pay/walletclient/internal/transfer"
	"github.com/congo-pay/walletclient/internal/wallet"
)

// Core is the assembled client.
type Core struct {
	Credentials *credentials.Store
	Gateway     *gateway.Client
	Session     *session.Manager
	Balance     *wallet.Reader
	Ledger      *ledger.Reader
	Transfers   *transfer.Submitter
	Metrics     *metrics.Gateway

	logger  *slog.Logger
	closers []func()
}

type options struct {
	registerer prometheus.Registerer
	httpClient *http.Client
	keys       idempotency.Generator
	backend    credentials.Backend
}

// Option customizes New.
type Option func(*options)

// WithRegisterer registers gateway metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithHTTPClient replaces the gateway's HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithKeys replaces the idempotency key generator.
func WithKeys(g idempotency.Generator) Option {
	return func(o *options) { o.keys = g }
}

// WithCredentialBackend bypasses CREDENTIAL_BACKEND.
func WithCredentialBackend(b credentials.Backend) Option {
	return func(o *options) { o.backend = b }
}

// New assembles the client. Connections opened for the credential backend are
// released by Dispose.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Core{logger: logger}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = c.openBackend(ctx, cfg)
		if err != nil {
			c.close()
			return nil, err
		}
	}
	c.Credentials = credentials.NewStore(backend, logger)
	c.Metrics = metrics.NewGateway(o.registerer)

	gwOpts := []gateway.Option{
		gateway.WithTimeout(cfg.RequestTimeout),
		gateway.WithMetrics(c.Metrics),
		gateway.WithLogger(logger),
	}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}
	c.Gateway = gateway.New(cfg.APIURL, c.Credentials, gwOpts...)
	if cfg.RefreshOn401 {
		c.Gateway.SetRefresher(session.NewTokenRefresher(c.Gateway, c.Credentials, cfg.RefreshPath, logger))
	}

	c.Session = session.NewManager(c.Gateway, c.Credentials, logger)
	c.Balance = wallet.NewReader(c.Gateway, logger)
	c.Ledger = ledger.NewReader(c.Gateway, logger)
	c.Transfers = transfer.NewSubmitter(c.Gateway, o.keys, c.Balance, logger)
	return c, nil
}

func (c *Core) openBackend(ctx context.Context, cfg config.Config) (credentials.Backend, error) {
	switch cfg.CredentialBackend {
	case config.BackendMemory:
		return credentials.NewMemoryBackend(), nil
	case config.BackendFile:
		fb, err := credentials.NewFileBackend(cfg.CredentialFile, cfg.CredentialKey)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("using file credential store", slog.String("path", fb.Path()))
		return fb, nil
	case config.BackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		c.closers = append(c.closers, func() {
			if err := client.Close(); err != nil {
				c.logger.Warn("close redis", slog.Any("error", err))
			}
		})
		return credentials.NewRedisBackend(client, cfg.CredentialKey), nil
	case config.BackendPostgres:
		pool, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("credential store: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		return credentials.NewPostgresBackend(pool, cfg.CredentialKey), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.CredentialBackend)
	}
}

// Init restores the session from stored credentials.
func (c *Core) Init(ctx context.Context) session.State {
	return c.Session.Init(ctx)
}

// Logout ends the session and forgets the cached balance.
func (c *Core) Logout(ctx context.Context) {
	c.Session.Logout(ctx)
	c.Balance.Forget()
}

// Dispose drops in-memory state and closes backend connections. Stored
// credentials survive for the next run.
func (c *Core) Dispose() {
	if c.Session != nil {
		c.Session.Dispose()
	}
	if c.Balance != nil {
		c.Balance.Forget()
	}
	c.close()
}

func (c *Core) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
