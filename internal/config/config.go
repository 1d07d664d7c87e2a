package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAPIURL          = "http://127.0.0.1:8000/api/v1"
	defaultLogLevel        = "info"
	defaultCredentialKey   = "auth_tokens"
	defaultBackend         = BackendFile
	defaultRequestTimeout  = 30 * time.Second
	defaultRefreshPath     = "/accounts/token/refresh/"
	defaultAppName         = "WalletStub"
	defaultAppEnv          = "development"
	defaultPort            = "8000"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultSeedBalance     = "2547850.00"
	envFileEnvVar          = "WALLET_ENV_FILE"
)

// Credential backends understood by the credential store factory.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config captures client and stub-backend configuration loaded from the environment.
type Config struct {
	APIURL            string
	LogLevel          string
	CredentialBackend string
	CredentialFile    string
	CredentialKey     string
	RedisURL          string
	DatabaseURL       string
	RequestTimeout    time.Duration
	RefreshOn401      bool
	RefreshPath       string

	Stub StubConfig
}

// StubConfig holds settings that only the stub backend reads.
type StubConfig struct {
	AppName         string
	AppEnv          string
	Port            string
	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	IdempotencyTTL  time.Duration
	ShutdownPeriod  time.Duration
	SeedEmail       string
	SeedPassword    string
	SeedBalance     decimal.Decimal
}

// Load reads an optional .env file and then the process environment.
// Variables already present in the environment win over the file.
func Load() (Config, error) {
	envFile := getEnv(envFileEnvVar, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Config{
		APIURL:            strings.TrimRight(getEnv("WALLET_API_URL", defaultAPIURL), "/"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		CredentialBackend: strings.ToLower(getEnv("CREDENTIAL_BACKEND", defaultBackend)),
		CredentialFile:    os.Getenv("CREDENTIAL_FILE"),
		CredentialKey:     getEnv("CREDENTIAL_KEY", defaultCredentialKey),
		RedisURL:          os.Getenv("REDIS_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RefreshPath:       getEnv("REFRESH_PATH", defaultRefreshPath),
		Stub: StubConfig{
			AppName:       getEnv("APP_NAME", defaultAppName),
			AppEnv:        getEnv("APP_ENV", defaultAppEnv),
			Port:          getEnv("PORT", defaultPort),
			JWTSecret:     os.Getenv("JWT_SECRET"),
			RefreshSecret: os.Getenv("REFRESH_SECRET"),
			SeedEmail:     os.Getenv("SEED_EMAIL"),
			SeedPassword:  os.Getenv("SEED_PASSWORD"),
		},
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RefreshOn401, err = boolEnv("REFRESH_ON_401", false); err != nil {
		return Config{}, err
	}
	if cfg.Stub.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", defaultAccessTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.Stub.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", defaultRefreshTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.Stub.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Stub.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}

	seed := getEnv("SEED_BALANCE", defaultSeedBalance)
	if cfg.Stub.SeedBalance, err = decimal.NewFromString(seed); err != nil {
		return Config{}, fmt.Errorf("invalid SEED_BALANCE: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.CredentialBackend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when CREDENTIAL_BACKEND=%s", c.CredentialBackend)
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when CREDENTIAL_BACKEND=%s", c.CredentialBackend)
		}
	default:
		return fmt.Errorf("unknown CREDENTIAL_BACKEND %q", c.CredentialBackend)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (s StubConfig) Address() string {
	if strings.HasPrefix(s.Port, ":") {
		return s.Port
	}
	return fmt.Sprintf(":%s", s.Port)
}

// IsDev reports whether the stub runs in a development environment.
func (s StubConfig) IsDev() bool {
	switch strings.ToLower(s.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv accepts either a Go duration ("30s") or a bare number of seconds.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
