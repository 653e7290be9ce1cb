package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/model"
	"walletwise_backend/pkg/config"
	"walletwise_backend/pkg/subscription"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var xenditPaymentMethods = map[string][]string{
	MethodVA:      {"BCA", "BNI", "BRI", "MANDIRI", "PERMATA"},
	MethodEWallet: {"OVO", "DANA", "SHOPEEPAY", "LINKAJA"},
	MethodQRIS:    {"QRIS"},
	MethodCard:    {"CREDIT_CARD"},
	MethodInvoice: nil, // every method enabled on the account
}

type XenditGateway struct {
	SecretKey       string
	WebhookToken    string
	BaseURL         string
	FrontendURL     string
	USDToIDRRate    int64
	InvoiceDuration time.Duration

	HTTPClient *http.Client
	Now        func() time.Time
}

type xenditInvoiceRequest struct {
	ExternalID         string   `json:"external_id"`
	Amount             int64    `json:"amount"`
	Currency           string   `json:"currency"`
	Description        string   `json:"description"`
	InvoiceDuration    int64    `json:"invoice_duration"`
	ReminderTime       int      `json:"reminder_time"`
	SuccessRedirectURL string   `json:"success_redirect_url,omitempty"`
	PaymentMethods     []string `json:"payment_methods,omitempty"`
}

type xenditInvoiceResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	InvoiceURL string `json:"invoice_url"`
	ExpiryDate string `json:"expiry_date"`
}

type xenditCallback struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

func NewXenditGateway(cfg config.XenditConfig, frontendURL string, timeout time.Duration) *XenditGateway {
	return &XenditGateway{
		SecretKey:       strings.TrimSpace(cfg.SecretKey),
		WebhookToken:    strings.TrimSpace(cfg.WebhookToken),
		BaseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		FrontendURL:     strings.TrimRight(frontendURL, "/"),
		USDToIDRRate:    cfg.USDToIDRRate,
		InvoiceDuration: cfg.InvoiceDuration,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Now: time.Now,
	}
}

func (g *XenditGateway) Name() string {
	return model.GatewayXendit
}

// VerifiesCallbacks reports whether a callback token is configured. Without
// one, callbacks are accepted unverified.
func (g *XenditGateway) VerifiesCallbacks() bool {
	return g.WebhookToken != ""
}

// ExternalID builds the gateway ref for a new invoice. A client idempotency
// key yields a stable ref so a retried request maps to the same ledger row.
// The tier and period are part of the digest, so reusing a key for another
// plan never replays the first invoice.
func (g *XenditGateway) ExternalID(userID uint, idempotencyKey string, tier subscription.Tier, period subscription.BillingPeriod) string {
	if idempotencyKey != "" {
		sum := sha256.Sum256([]byte(intentKey(idempotencyKey, tier, period)))
		return fmt.Sprintf("wlw_%d_k%s", userID, hex.EncodeToString(sum[:])[:16])
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
	return fmt.Sprintf("wlw_%d_%d_%s", userID, g.Now().UnixMilli(), random)
}

// AmountIDR converts a USD price to whole rupiah.
func (g *XenditGateway) AmountIDR(usd decimal.Decimal) int64 {
	return usd.Mul(decimal.NewFromInt(g.USDToIDRRate)).Round(0).IntPart()
}

func (g *XenditGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := checkPaidTarget(req); err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = MethodInvoice
	}
	channels, ok := xenditPaymentMethods[method]
	if !ok {
		return nil, apperror.Validation("unsupported payment method for xendit: " + method)
	}
	if g.SecretKey == "" {
		return nil, apperror.Configuration("XENDIT_SECRET_KEY is not configured")
	}
	if g.USDToIDRRate <= 0 {
		return nil, apperror.Configuration("XENDIT_USD_IDR_RATE must be positive")
	}
	usd, ok := subscription.PriceFor(req.TargetTier, req.BillingPeriod)
	if !ok {
		return nil, apperror.Configuration("price not configured for " + priceKey(req.TargetTier, req.BillingPeriod))
	}

	externalID := g.ExternalID(req.UserID, req.IdempotencyKey, req.TargetTier, req.BillingPeriod)
	body := xenditInvoiceRequest{
		ExternalID:      externalID,
		Amount:          g.AmountIDR(usd),
		Currency:        "IDR",
		Description:     fmt.Sprintf("WalletWise %s - %s", req.TargetTier, req.BillingPeriod),
		InvoiceDuration: int64(g.InvoiceDuration / time.Second),
		ReminderTime:    1,
		PaymentMethods:  channels,
	}
	if g.FrontendURL != "" {
		body.SuccessRedirectURL = g.FrontendURL + "/transactions?xenditPayment=success&tier=" + url.QueryEscape(string(req.TargetTier))
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v2/invoices", bytes.NewReader(payload))
	if err != nil {
		return nil, apperror.Gateway("xendit invoice failed", err)
	}
	httpReq.SetBasicAuth(g.SecretKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-IDEMPOTENCY-KEY", externalID)

	resp, err := g.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, apperror.Gateway("xendit invoice failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperror.Gateway("xendit invoice failed",
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(respBody)))
	}

	var invoice xenditInvoiceResponse
	if err := json.Unmarshal(respBody, &invoice); err != nil {
		return nil, apperror.Gateway("xendit invoice failed", err)
	}

	result := &CheckoutResult{
		ProviderID:  invoice.ID,
		GatewayRef:  externalID,
		Status:      model.PaymentPending,
		InvoiceURL:  invoice.InvoiceURL,
		Amount:      decimal.NewFromInt(body.Amount),
		Currency:    "IDR",
		RawRequest:  payload,
		RawResponse: respBody,
	}
	if invoice.ExternalID != "" {
		result.GatewayRef = invoice.ExternalID
	}
	if invoice.ID == "" {
		result.ProviderID = result.GatewayRef
	}
	if invoice.ExpiryDate != "" {
		if t, err := time.Parse(time.RFC3339, invoice.ExpiryDate); err == nil {
			t = t.UTC()
			result.ExpiresAt = &t
		}
	}
	return result, nil
}

func (g *XenditGateway) ParseWebhook(rawBody []byte, callbackToken string) (*Event, error) {
	if g.VerifiesCallbacks() &&
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(callbackToken)), []byte(g.WebhookToken)) != 1 {
		return nil, apperror.New(apperror.ErrTokenInvalid, "invalid callback token")
	}

	var cb xenditCallback
	if err := json.Unmarshal(rawBody, &cb); err != nil {
		return nil, apperror.Validation("malformed xendit callback")
	}

	out := &Event{
		EventID:    cb.ID,
		Type:       cb.Status,
		GatewayRef: cb.ExternalID,
		Kind:       EventIgnored,
	}
	if cb.ExternalID == "" {
		return out, nil
	}
	switch strings.ToUpper(cb.Status) {
	case "PAID", "SETTLED":
		out.Kind = EventPaid
	case "EXPIRED":
		out.Kind = EventExpired
	}
	return out, nil
}
