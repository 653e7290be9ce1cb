package controller

import (
	"walletwise_backend/internal/middleware"
	"walletwise_backend/internal/service"
	"walletwise_backend/pkg/subscription"
	"walletwise_backend/pkg/utils/jwt"

	"github.com/gofiber/fiber/v2"
)

// Routes holds everything the HTTP surface is built from.
type Routes struct {
	Auth          *AuthController
	Subscriptions *SubscriptionController
	Payments      *PaymentController
	Webhooks      *WebhookController
	Wallets       *WalletController

	Tokens          *jwt.Manager
	Entitlements    *service.EntitlementService
	CheckoutLimiter *middleware.UserRateLimiter
	DB              Pinger
}

func (r Routes) Setup(app *fiber.App) {
	if r.DB != nil {
		app.Get("/health", HealthCheck(r.DB))
	}

	api := app.Group("/api/v1")

	// Auth Routes
	auth := api.Group("/auth")
	auth.Post("/register", r.Auth.Register)
	auth.Post("/login", r.Auth.Login)

	// Gateway callbacks carry their own credentials.
	webhooks := api.Group("/webhook")
	webhooks.Post("/stripe", r.Webhooks.Stripe)
	webhooks.Post("/xendit", r.Webhooks.Xendit)

	api.Get("/billing/plans", r.Subscriptions.ListPlans)

	// Protected Routes
	authRequired := middleware.AuthMiddleware(r.Tokens)
	api.Get("/me", authRequired, r.Auth.GetMe)
	api.Get("/subscriptions/my", authRequired, r.Subscriptions.GetMySubscription)

	payments := api.Group("/payments", authRequired)
	if r.CheckoutLimiter != nil {
		payments.Post("/create", r.CheckoutLimiter.Handler(), r.Payments.Create)
	} else {
		payments.Post("/create", r.Payments.Create)
	}
	payments.Get("/", r.Payments.List)
	payments.Get("/:gatewayRef", r.Payments.Get)

	wallets := api.Group("/wallets", authRequired)
	wallets.Get("/", r.Wallets.List)
	wallets.Post("/", middleware.CheckWalletLimit(r.Entitlements), r.Wallets.Create)

	analytics := api.Group("/analytics", authRequired, middleware.RequireFeature(r.Entitlements, subscription.Analytics))
	analytics.Get("/summary", r.Wallets.Summary)
}
