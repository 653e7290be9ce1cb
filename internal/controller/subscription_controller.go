package controller

import (
	"walletwise_backend/internal/middleware"
	"walletwise_backend/internal/service"

	"github.com/gofiber/fiber/v2"
)

type SubscriptionController struct {
	entitlements *service.EntitlementService
}

func NewSubscriptionController(entitlements *service.EntitlementService) *SubscriptionController {
	return &SubscriptionController{entitlements: entitlements}
}

func (sc *SubscriptionController) ListPlans(c *fiber.Ctx) error {
	return ok(c, fiber.Map{"plans": sc.entitlements.Plans()})
}

func (sc *SubscriptionController) GetMySubscription(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	view, err := sc.entitlements.MySubscription(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return ok(c, view)
}
