package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletclient/internal/idempotency"
)

// Audit logs one line per request. Failed requests log at warn with the
// error; the error is passed on for the app's error handler.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		var coded interface{ StatusCode() int }
		switch {
		case errors.As(err, &fe):
			status = fe.Code
		case errors.As(err, &coded):
			status = coded.StatusCode()
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDFrom(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if account := AccountID(c); account != "" {
			attrs = append(attrs, slog.String("account_id", account))
		}
		if key := c.Get(idempotency.HeaderName); key != "" {
			attrs = append(attrs, slog.String("idempotency_key", key))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Warn("request failed", attrs...)
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
