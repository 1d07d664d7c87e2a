package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const localAccountID = "account_id"

// AccessVerifier validates an access token and returns its subject.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, token string) (string, error)
}

// JWTAuth requires a valid bearer access token and stores the account id for
// downstream handlers.
func JWTAuth(verifier AccessVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "Authentication credentials were not provided.")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		accountID, err := verifier.VerifyAccess(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "Given token not valid for any token type")
		}
		c.Locals(localAccountID, accountID)
		return c.Next()
	}
}

// AccountID returns the authenticated account id, or "" before JWTAuth ran.
func AccountID(c *fiber.Ctx) string {
	id, _ := c.Locals(localAccountID).(string)
	return id
}
