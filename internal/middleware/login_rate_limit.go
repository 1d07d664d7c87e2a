package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loginRatePrefix = "walletstub:rl:login:"
	loginRateWindow = time.Minute
)

// LoginRateLimit caps login attempts per email, or per client IP when the
// body carries none, within a one minute window. Rejections carry Retry-After.
// Without Redis, or when Redis fails, requests pass.
func LoginRateLimit(cache *redis.Client, maxPerWindow int) fiber.Handler {
	if maxPerWindow <= 0 {
		maxPerWindow = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var body struct {
			Email string `json:"email"`
		}
		_ = c.BodyParser(&body)
		subject := strings.ToLower(strings.TrimSpace(body.Email))
		if subject == "" {
			subject = "ip:" + c.IP()
		}

		ctx := c.UserContext()
		key := loginRatePrefix + subject
		attempts, err := cache.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		if attempts == 1 {
			cache.Expire(ctx, key, loginRateWindow)
		}
		if attempts <= int64(maxPerWindow) {
			return c.Next()
		}

		wait := loginRateWindow
		if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			wait = ttl
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
}
