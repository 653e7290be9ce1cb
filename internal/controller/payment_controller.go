package controller

import (
	"strings"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/middleware"
	"walletwise_backend/internal/service"
	"walletwise_backend/pkg/subscription"
	"walletwise_backend/pkg/utils/validation"

	"github.com/gofiber/fiber/v2"
)

type CreatePaymentRequest struct {
	TargetTier    string `json:"targetTier" validate:"required,oneof=pro_trial pro pro_plus"`
	BillingPeriod string `json:"billingPeriod" validate:"omitempty,oneof=monthly yearly"`
	Gateway       string `json:"gateway" validate:"omitempty,oneof=stripe xendit"`
	Method        string `json:"method" validate:"omitempty,oneof=card va ewallet qris invoice"`
}

type PaymentController struct {
	payments *service.PaymentService
}

func NewPaymentController(payments *service.PaymentService) *PaymentController {
	return &PaymentController{payments: payments}
}

// Create starts a tier change: the trial is granted at once, paid tiers
// return the gateway's checkout URL.
func (pc *PaymentController) Create(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	input := new(CreatePaymentRequest)
	if err := parseBody(c, input); err != nil {
		return err
	}
	target := subscription.Tier(input.TargetTier)
	if target != subscription.ProTrialTier && (input.BillingPeriod == "" || input.Gateway == "") {
		return apperror.Validation("billingPeriod and gateway are required for paid plans")
	}

	key := strings.TrimSpace(c.Get("Idempotency-Key"))
	if err := validation.IdempotencyKey(key); err != nil {
		return err
	}

	result, err := pc.payments.CreatePayment(c.UserContext(), service.CreatePaymentInput{
		UserID:         userID,
		TargetTier:     target,
		BillingPeriod:  subscription.BillingPeriod(input.BillingPeriod),
		Gateway:        input.Gateway,
		Method:         input.Method,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}
	return ok(c, result)
}

func (pc *PaymentController) List(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	payments, err := pc.payments.ListPayments(c.UserContext(), userID, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return ok(c, fiber.Map{"payments": payments})
}

func (pc *PaymentController) Get(c *fiber.Ctx) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return err
	}

	payment, err := pc.payments.GetPayment(c.UserContext(), userID, c.Params("gatewayRef"))
	if err != nil {
		return err
	}
	return ok(c, payment)
}
