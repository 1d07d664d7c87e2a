package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletclient/internal/config"
	"github.com/congo-pay/walletclient/internal/middleware"
)

const (
	devAccessSecret  = "walletstub-dev-access"
	devRefreshSecret = "walletstub-dev-refresh"
	loginAttempts    = 5
)

// PeerSignup is the second demo account opened next to the configured seed
// account so transfers have somewhere to go.
var PeerSignup = Signup{
	Email:     "merchant@walletstub.local",
	Password:  "merchant-password",
	Username:  "merchant",
	FirstName: "Demo",
	LastName:  "Merchant",
}

// Server wraps the Fiber application and the in-memory state.
type Server struct {
	app      *fiber.App
	cfg      config.StubConfig
	cache    *redis.Client
	accounts *Accounts
	book     *Book
	logger   *slog.Logger
}

// New builds the stub. cache is optional; without it transfers are still
// deduplicated by the book. Outside development both token secrets must be
// configured.
func New(cfg config.StubConfig, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
		if !cfg.IsDev() {
			return nil, fmt.Errorf("JWT_SECRET and REFRESH_SECRET are required when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = devAccessSecret
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = devRefreshSecret
		}
	}

	repo := NewMemoryAccounts()
	tokens, err := NewTokens(repo, cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		cache:    cache,
		accounts: NewAccounts(repo),
		book:     NewBook(),
		logger:   logger,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes(NewHandler(s.accounts, tokens, s.book, NewLogNotifier(logger), logger), tokens)

	if cfg.SeedEmail != "" {
		ctx := context.Background()
		if _, err := s.Seed(ctx, Signup{Email: cfg.SeedEmail, Password: cfg.SeedPassword}, cfg.SeedBalance); err != nil {
			return nil, fmt.Errorf("seed %s: %w", cfg.SeedEmail, err)
		}
		if _, err := s.Seed(ctx, PeerSignup, decimal.Zero); err != nil {
			return nil, fmt.Errorf("seed peer: %w", err)
		}
	}
	return s, nil
}

func (s *Server) routes(h *Handler, tokens *Tokens) {
	s.app.Use(recover.New())
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Audit(s.logger))

	s.app.Get("/healthz", s.health)

	api := s.app.Group("/api/v1")
	api.Post("/accounts/login/", middleware.LoginRateLimit(s.cache, loginAttempts), h.Login)
	api.Post("/accounts/token/refresh/", h.Refresh)

	protected := api.Group("", middleware.JWTAuth(tokens))
	protected.Get("/accounts/me/", h.Me)
	protected.Post("/accounts/logout/", h.Logout)
	protected.Get("/wallets/balance/", h.Balance)
	protected.Get("/transactions/ledgerEntry", h.Ledger)

	transfer := []fiber.Handler{}
	if s.cache != nil {
		transfer = append(transfer, middleware.Idempotency(s.cache, s.cfg.IdempotencyTTL, s.logger))
	}
	transfer = append(transfer, h.Transfer)
	protected.Post("/transactions/transfer/", transfer...)
}

func (s *Server) health(c *fiber.Ctx) error {
	redisStatus := "disabled"
	status := http.StatusOK
	if s.cache != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		redisStatus = "ok"
		if err := s.cache.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"status":    fiber.Map{"redis": redisStatus},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var api *apiError
	if errors.As(err, &api) {
		return c.Status(api.status).JSON(fiber.Map{api.field: api.message})
	}
	code := http.StatusInternalServerError
	msg := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, msg = fe.Code, fe.Message
	} else {
		s.logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
	}
	return c.Status(code).JSON(fiber.Map{"detail": msg})
}

// Seed registers an account and opens its wallet with opening balance.
func (s *Server) Seed(ctx context.Context, in Signup, opening decimal.Decimal) (Account, error) {
	account, err := s.accounts.Register(ctx, in)
	if err != nil {
		return Account{}, err
	}
	s.book.Open(account.WalletID, opening)
	s.logger.Info("account seeded",
		slog.String("email", account.Email),
		slog.String("wallet_id", account.WalletID),
		slog.String("balance", opening.StringFixed(2)),
	)
	return account, nil
}

// Book exposes the ledger for inspection.
func (s *Server) Book() *Book {
	return s.book
}

// App exposes the Fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured port.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
