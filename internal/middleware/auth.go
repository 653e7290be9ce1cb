package middleware

import (
	"strings"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/pkg/utils/jwt"

	"github.com/gofiber/fiber/v2"
)

const userKey = "user"

// AuthMiddleware requires a valid Bearer token and stores its claims in
// Locals("user").
func AuthMiddleware(tokens *jwt.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return apperror.New(apperror.ErrUnauthorized, "Missing or malformed token")
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			return apperror.New(apperror.ErrUnauthorized, "Invalid or expired token")
		}

		c.Locals(userKey, claims)
		return c.Next()
	}
}

// Claims returns the claims stored by AuthMiddleware.
func Claims(c *fiber.Ctx) (*jwt.Claims, error) {
	claims, ok := c.Locals(userKey).(*jwt.Claims)
	if !ok || claims == nil {
		return nil, apperror.New(apperror.ErrUnauthorized, "Authentication required")
	}
	return claims, nil
}

// UserID returns the authenticated user's id.
func UserID(c *fiber.Ctx) (uint, error) {
	claims, err := Claims(c)
	if err != nil {
		return 0, err
	}
	return claims.UserID, nil
}
