package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/pkg/config"
	"walletwise_backend/pkg/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

func testStripeConfig() config.StripeConfig {
	return config.StripeConfig{
		SecretKey:           "sk_test_123",
		WebhookSecret:       testWebhookSecret,
		PriceProMonthly:     "price_pro_m",
		PriceProYearly:      "price_pro_y",
		PriceProPlusMonthly: "price_plus_m",
	}
}

func signStripePayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeCreateCheckout(t *testing.T) {
	expiresAt := time.Now().Add(24 * time.Hour).Unix()
	var calls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "checkout_42_key-1|pro|yearly", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "price_pro_y", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "42", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "pro", r.PostForm.Get("metadata[targetTier]"))
		assert.Equal(t, "https://app.test/billing?success=true&session_id={CHECKOUT_SESSION_ID}", r.PostForm.Get("success_url"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"cs_test_abc","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_abc","expires_at":%d}`, expiresAt)
	}))
	defer srv.Close()

	g := NewStripeGateway(testStripeConfig(), "https://app.test/", 5*time.Second, WithStripeURL(srv.URL))
	res, err := g.CreateCheckout(context.Background(), CheckoutRequest{
		UserID:         42,
		TargetTier:     subscription.ProTier,
		BillingPeriod:  subscription.Yearly,
		Method:         MethodCard,
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "cs_test_abc", res.GatewayRef)
	assert.Equal(t, "pending", res.Status)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_abc", res.RedirectURL)
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "99.99", res.Amount.StringFixed(2))
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, expiresAt, res.ExpiresAt.Unix())
}

func TestStripeCreateCheckoutRejections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected gateway call to %s", r.URL.Path)
	}))
	defer srv.Close()

	g := NewStripeGateway(testStripeConfig(), "https://app.test", time.Second, WithStripeURL(srv.URL))
	unconfigured := NewStripeGateway(config.StripeConfig{}, "https://app.test", time.Second, WithStripeURL(srv.URL))

	tests := []struct {
		name    string
		gateway *StripeGateway
		req     CheckoutRequest
		kind    error
	}{
		{"trial", g, CheckoutRequest{UserID: 1, TargetTier: subscription.ProTrialTier, BillingPeriod: subscription.Monthly}, apperror.ErrUnsupportedOperation},
		{"unmapped price", g, CheckoutRequest{UserID: 1, TargetTier: subscription.ProPlusTier, BillingPeriod: subscription.Yearly}, apperror.ErrConfiguration},
		{"missing key", unconfigured, CheckoutRequest{UserID: 1, TargetTier: subscription.ProTier, BillingPeriod: subscription.Monthly}, apperror.ErrConfiguration},
		{"non-card method", g, CheckoutRequest{UserID: 1, TargetTier: subscription.ProTier, BillingPeriod: subscription.Monthly, Method: MethodQRIS}, apperror.ErrValidation},
		{"bad period", g, CheckoutRequest{UserID: 1, TargetTier: subscription.ProTier, BillingPeriod: "weekly"}, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gateway.CreateCheckout(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestStripeCreateCheckoutGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"No such price"}}`)
	}))
	defer srv.Close()

	g := NewStripeGateway(testStripeConfig(), "https://app.test", time.Second, WithStripeURL(srv.URL))
	_, err := g.CreateCheckout(context.Background(), CheckoutRequest{
		UserID: 1, TargetTier: subscription.ProTier, BillingPeriod: subscription.Monthly,
	})
	assert.ErrorIs(t, err, apperror.ErrGateway)
}

func TestStripeParseWebhook(t *testing.T) {
	g := NewStripeGateway(testStripeConfig(), "https://app.test", time.Second)

	tests := []struct {
		name     string
		payload  string
		wantKind EventKind
		wantRef  string
	}{
		{
			name:     "completed and paid",
			payload:  `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid"}}}`,
			wantKind: EventPaid,
			wantRef:  "cs_1",
		},
		{
			name:     "completed but unpaid",
			payload:  `{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"unpaid"}}}`,
			wantKind: EventIgnored,
			wantRef:  "cs_2",
		},
		{
			name:     "async succeeded",
			payload:  `{"id":"evt_3","object":"event","type":"checkout.session.async_payment_succeeded","data":{"object":{"id":"cs_3","object":"checkout.session"}}}`,
			wantKind: EventPaid,
			wantRef:  "cs_3",
		},
		{
			name:     "async failed",
			payload:  `{"id":"evt_4","object":"event","type":"checkout.session.async_payment_failed","data":{"object":{"id":"cs_4","object":"checkout.session"}}}`,
			wantKind: EventFailed,
			wantRef:  "cs_4",
		},
		{
			name:     "expired",
			payload:  `{"id":"evt_5","object":"event","type":"checkout.session.expired","data":{"object":{"id":"cs_5","object":"checkout.session"}}}`,
			wantKind: EventExpired,
			wantRef:  "cs_5",
		},
		{
			name:     "unrelated event",
			payload:  `{"id":"evt_6","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`,
			wantKind: EventIgnored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.payload)
			ev, err := g.ParseWebhook(payload, signStripePayload(payload, testWebhookSecret, time.Now()))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, ev.Kind)
			assert.Equal(t, tt.wantRef, ev.GatewayRef)
			assert.NotEmpty(t, ev.EventID)
		})
	}
}

func TestStripeParseWebhookRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	g := NewStripeGateway(testStripeConfig(), "https://app.test", time.Second)

	_, err := g.ParseWebhook(payload, signStripePayload(payload, "whsec_other", time.Now()))
	assert.ErrorIs(t, err, apperror.ErrSignatureInvalid)

	_, err = g.ParseWebhook(payload, "")
	assert.ErrorIs(t, err, apperror.ErrSignatureInvalid)

	tampered := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_2"}}}`)
	_, err = g.ParseWebhook(tampered, signStripePayload(payload, testWebhookSecret, time.Now()))
	assert.ErrorIs(t, err, apperror.ErrSignatureInvalid)

	noSecret := NewStripeGateway(config.StripeConfig{SecretKey: "sk_test"}, "https://app.test", time.Second)
	_, err = noSecret.ParseWebhook(payload, signStripePayload(payload, testWebhookSecret, time.Now()))
	assert.ErrorIs(t, err, apperror.ErrConfiguration)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(
		NewStripeGateway(testStripeConfig(), "", time.Second),
		NewXenditGateway(config.XenditConfig{}, "", time.Second),
	)

	g, err := r.Get("Stripe")
	require.NoError(t, err)
	assert.Equal(t, "stripe", g.Name())

	_, err = r.Get("paypal")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, []string{"stripe", "xendit"}, r.Names())
}
