// Package gateway adapts external payment providers to one checkout and
// webhook contract. Adapters make a single outbound call per checkout and never
// touch persistence.
package gateway

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/pkg/subscription"

	"github.com/shopspring/decimal"
)

const (
	MethodCard    = "card"
	MethodVA      = "va"
	MethodEWallet = "ewallet"
	MethodQRIS    = "qris"
	MethodInvoice = "invoice"
)

type EventKind string

const (
	EventPaid    EventKind = "paid"
	EventFailed  EventKind = "failed"
	EventExpired EventKind = "expired"
	EventIgnored EventKind = "ignored"
)

type CheckoutRequest struct {
	UserID         uint
	TargetTier     subscription.Tier
	BillingPeriod  subscription.BillingPeriod
	Method         string
	IdempotencyKey string
}

type CheckoutResult struct {
	// ProviderID is the provider's own object id (session or invoice id).
	ProviderID  string
	GatewayRef  string
	Status      string
	RedirectURL string
	InvoiceURL  string
	ExpiresAt   *time.Time
	Amount      decimal.Decimal
	Currency    string
	RawRequest  json.RawMessage
	RawResponse json.RawMessage
}

// Event is a verified webhook delivery reduced to what the activator needs.
type Event struct {
	EventID    string
	Type       string
	GatewayRef string
	Kind       EventKind
}

func (e *Event) IsPaid() bool {
	return e.Kind == EventPaid
}

type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	// ParseWebhook verifies rawBody against credential (signature header or
	// callback token) and decodes it.
	ParseWebhook(rawBody []byte, credential string) (*Event, error)
}

// Registry looks gateways up by their wire name.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, apperror.Validation("unsupported payment gateway: " + name)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// checkPaidTarget rejects targets that never go through a gateway.
func checkPaidTarget(req CheckoutRequest) error {
	if req.TargetTier == subscription.ProTrialTier {
		return apperror.New(apperror.ErrUnsupportedOperation, "pro trial does not use a payment gateway")
	}
	if !req.TargetTier.IsPaid() {
		return apperror.Validation("unsupported target tier")
	}
	if !req.BillingPeriod.Valid() {
		return apperror.Validation("unsupported billing period")
	}
	return nil
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// intentKey scopes a client idempotency key to the plan it was sent for.
func intentKey(idempotencyKey string, tier subscription.Tier, period subscription.BillingPeriod) string {
	return idempotencyKey + "|" + string(tier) + "|" + string(period)
}
