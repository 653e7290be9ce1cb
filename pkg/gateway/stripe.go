package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/model"
	"walletwise_backend/pkg/config"
	"walletwise_backend/pkg/subscription"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
)

const (
	stripeCheckoutCompleted      = "checkout.session.completed"
	stripeAsyncPaymentSucceeded  = "checkout.session.async_payment_succeeded"
	stripeAsyncPaymentFailed     = "checkout.session.async_payment_failed"
	stripeCheckoutSessionExpired = "checkout.session.expired"
)

type StripeGateway struct {
	secretKey     string
	webhookSecret string
	frontendURL   string
	prices        map[string]string
	api           *client.API
}

// StripeOption customizes the Stripe client, mostly for tests.
type StripeOption func(*stripe.BackendConfig)

// WithStripeURL points the API backend at url instead of api.stripe.com.
func WithStripeURL(url string) StripeOption {
	return func(c *stripe.BackendConfig) {
		c.URL = stripe.String(url)
	}
}

func NewStripeGateway(cfg config.StripeConfig, frontendURL string, timeout time.Duration, opts ...StripeOption) *StripeGateway {
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	for _, opt := range opts {
		opt(backendConfig)
	}

	g := &StripeGateway{
		secretKey:     strings.TrimSpace(cfg.SecretKey),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		frontendURL:   strings.TrimRight(frontendURL, "/"),
		prices: map[string]string{
			priceKey(subscription.ProTier, subscription.Monthly):     cfg.PriceProMonthly,
			priceKey(subscription.ProTier, subscription.Yearly):      cfg.PriceProYearly,
			priceKey(subscription.ProPlusTier, subscription.Monthly): cfg.PriceProPlusMonthly,
			priceKey(subscription.ProPlusTier, subscription.Yearly):  cfg.PriceProPlusYearly,
		},
	}
	if g.secretKey != "" {
		g.api = client.New(g.secretKey, &stripe.Backends{
			API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
			Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
			Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
		})
	}
	return g
}

func priceKey(tier subscription.Tier, period subscription.BillingPeriod) string {
	return string(tier) + "_" + string(period)
}

func (g *StripeGateway) Name() string {
	return model.GatewayStripe
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := checkPaidTarget(req); err != nil {
		return nil, err
	}
	if req.Method != "" && req.Method != MethodCard {
		return nil, apperror.Validation("stripe only supports card payments")
	}
	if g.api == nil {
		return nil, apperror.Configuration("STRIPE_SECRET_KEY is not configured")
	}

	key := priceKey(req.TargetTier, req.BillingPeriod)
	priceID := strings.TrimSpace(g.prices[key])
	if priceID == "" {
		return nil, apperror.Configuration("stripe price not configured for " + key)
	}
	amount, _ := subscription.PriceFor(req.TargetTier, req.BillingPeriod)

	userID := strconv.FormatUint(uint64(req.UserID), 10)
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(g.frontendURL + "/billing?success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(g.frontendURL + "/billing?canceled=true"),
		ClientReferenceID: stripe.String(userID),
	}
	params.Context = ctx
	params.AddMetadata("userId", userID)
	params.AddMetadata("targetTier", string(req.TargetTier))
	params.AddMetadata("billingPeriod", string(req.BillingPeriod))
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String("checkout_" + userID + "_" + intentKey(req.IdempotencyKey, req.TargetTier, req.BillingPeriod))
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperror.Gateway("stripe checkout failed", err)
	}

	result := &CheckoutResult{
		ProviderID:  session.ID,
		GatewayRef:  session.ID,
		Status:      model.PaymentPending,
		RedirectURL: session.URL,
		Amount:      amount,
		Currency:    "USD",
		RawRequest: mustJSON(map[string]interface{}{
			"userId":        req.UserID,
			"targetTier":    req.TargetTier,
			"billingPeriod": req.BillingPeriod,
			"priceId":       priceID,
		}),
		RawResponse: mustJSON(map[string]interface{}{
			"sessionId": session.ID,
			"url":       session.URL,
		}),
	}
	if session.ExpiresAt > 0 {
		expiresAt := time.Unix(session.ExpiresAt, 0).UTC()
		result.ExpiresAt = &expiresAt
	}
	return result, nil
}

func (g *StripeGateway) ParseWebhook(rawBody []byte, signature string) (*Event, error) {
	if g.webhookSecret == "" {
		return nil, apperror.Configuration("STRIPE_WEBHOOK_SECRET is not configured")
	}
	if strings.TrimSpace(signature) == "" || len(rawBody) == 0 {
		return nil, apperror.New(apperror.ErrSignatureInvalid, "missing signature or body")
	}

	event, err := webhook.ConstructEventWithOptions(rawBody, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrSignatureInvalid, "webhook signature verification failed", err)
	}

	out := &Event{EventID: event.ID, Type: string(event.Type), Kind: EventIgnored}

	switch out.Type {
	case stripeCheckoutCompleted, stripeAsyncPaymentSucceeded, stripeAsyncPaymentFailed, stripeCheckoutSessionExpired:
	default:
		return out, nil
	}
	if event.Data == nil {
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, apperror.Validation(fmt.Sprintf("malformed %s payload", out.Type))
	}
	out.GatewayRef = session.ID

	switch out.Type {
	case stripeCheckoutCompleted:
		// Delayed methods complete the session before money moves; the
		// async_payment_succeeded event follows.
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid {
			out.Kind = EventPaid
		}
	case stripeAsyncPaymentSucceeded:
		out.Kind = EventPaid
	case stripeAsyncPaymentFailed:
		out.Kind = EventFailed
	case stripeCheckoutSessionExpired:
		out.Kind = EventExpired
	}
	return out, nil
}
