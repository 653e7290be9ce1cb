package controller

import (
	"log/slog"

	"walletwise_backend/internal/model"
	"walletwise_backend/internal/service"
	"walletwise_backend/pkg/gateway"

	"github.com/gofiber/fiber/v2"
)

// WebhookController receives gateway callbacks. Verification failures are
// rejected before anything is read from or written to the database.
type WebhookController struct {
	gateways  *gateway.Registry
	activator *service.WebhookActivator
	log       *slog.Logger
}

func NewWebhookController(gateways *gateway.Registry, activator *service.WebhookActivator, log *slog.Logger) *WebhookController {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookController{gateways: gateways, activator: activator, log: log}
}

func (wc *WebhookController) Stripe(c *fiber.Ctx) error {
	return wc.handle(c, model.GatewayStripe, c.Get("Stripe-Signature"))
}

func (wc *WebhookController) Xendit(c *fiber.Ctx) error {
	return wc.handle(c, model.GatewayXendit, c.Get("x-callback-token"))
}

func (wc *WebhookController) handle(c *fiber.Ctx, name, credential string) error {
	gw, err := wc.gateways.Get(name)
	if err != nil {
		return err
	}

	// Fiber reuses the request buffer once the handler returns.
	rawBody := append([]byte(nil), c.Body()...)

	event, err := gw.ParseWebhook(rawBody, credential)
	if err != nil {
		wc.log.Warn("webhook verification failed",
			slog.String("gateway", name),
			slog.String("ip", c.IP()),
			slog.Any("error", err))
		return err
	}

	wc.log.Info("webhook received",
		slog.String("gateway", name),
		slog.String("type", event.Type),
		slog.String("event_id", event.EventID),
		slog.String("gateway_ref", event.GatewayRef))

	if _, err := wc.activator.Handle(c.UserContext(), name, event, rawBody); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true})
}
