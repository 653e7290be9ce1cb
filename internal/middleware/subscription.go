package middleware

import (
	"context"

	"walletwise_backend/pkg/subscription"

	"github.com/gofiber/fiber/v2"
)

type walletLimiter interface {
	CheckWalletLimit(ctx context.Context, userID uint) error
}

type featureGate interface {
	RequireFeature(ctx context.Context, userID uint, feature subscription.Feature) error
}

// CheckWalletLimit rejects wallet creation once the user's tier allowance is
// used up. An ended trial is reported with its own error code.
func CheckWalletLimit(limiter walletLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		if err := limiter.CheckWalletLimit(c.UserContext(), userID); err != nil {
			return err
		}
		return c.Next()
	}
}

func RequireFeature(gate featureGate, feature subscription.Feature) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		if err := gate.RequireFeature(c.UserContext(), userID, feature); err != nil {
			return err
		}
		return c.Next()
	}
}
