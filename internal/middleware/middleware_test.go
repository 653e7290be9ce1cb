package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/pkg/subscription"
	"walletwise_backend/pkg/utils/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stubEntitlements struct {
	walletErr  error
	featureErr error
	lastUser   uint
}

func (s *stubEntitlements) CheckWalletLimit(ctx context.Context, userID uint) error {
	s.lastUser = userID
	return s.walletErr
}

func (s *stubEntitlements) RequireFeature(ctx context.Context, userID uint, feature subscription.Feature) error {
	s.lastUser = userID
	return s.featureErr
}

func newTestApp(tokens *jwt.Manager, handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apperror.Handler})
	chain := append([]fiber.Handler{AuthMiddleware(tokens)}, handlers...)
	chain = append(chain, func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"userId": userID})
	})
	app.Get("/", chain...)
	return app
}

func doRequest(t *testing.T, app *fiber.App, token string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestAuthMiddleware(t *testing.T) {
	tokens := jwt.NewManager("secret", time.Hour)
	app := newTestApp(tokens)

	token, err := tokens.GenerateToken(42, "user@example.com")
	require.NoError(t, err)

	resp, body := doRequest(t, app, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(42), body["userId"])

	resp, body = doRequest(t, app, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, body["success"])

	resp, _ = doRequest(t, app, "garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCheckWalletLimit(t *testing.T) {
	tokens := jwt.NewManager("secret", time.Hour)
	stub := &stubEntitlements{}
	app := newTestApp(tokens, CheckWalletLimit(stub))
	token, err := tokens.GenerateToken(7, "user@example.com")
	require.NoError(t, err)

	resp, _ := doRequest(t, app, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint(7), stub.lastUser)

	stub.walletErr = apperror.New(apperror.ErrLimitReached, "Wallet limit reached (3). Upgrade to Pro for unlimited wallets.")
	resp, body := doRequest(t, app, token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "WALLET_LIMIT_REACHED", body["error"].(map[string]interface{})["code"])

	stub.walletErr = apperror.New(apperror.ErrTrialExpired, "Your Pro trial has ended.")
	resp, body = doRequest(t, app, token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "PRO_TRIAL_EXPIRED", body["error"].(map[string]interface{})["code"])
}

func TestRequireFeature(t *testing.T) {
	tokens := jwt.NewManager("secret", time.Hour)
	stub := &stubEntitlements{featureErr: apperror.New(apperror.ErrForbidden, "This feature requires the Pro+ plan")}
	app := newTestApp(tokens, RequireFeature(stub, subscription.Analytics))
	token, err := tokens.GenerateToken(7, "user@example.com")
	require.NoError(t, err)

	resp, body := doRequest(t, app, token)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "This feature requires the Pro+ plan", body["error"].(map[string]interface{})["message"])

	stub.featureErr = nil
	resp, _ = doRequest(t, app, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserRateLimiter(t *testing.T) {
	tokens := jwt.NewManager("secret", time.Hour)
	limiter := NewUserRateLimiter(rate.Every(time.Minute), 2)
	app := newTestApp(tokens, limiter.Handler())

	first, err := tokens.GenerateToken(1, "a@example.com")
	require.NoError(t, err)
	second, err := tokens.GenerateToken(2, "b@example.com")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, _ := doRequest(t, app, first)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := doRequest(t, app, first)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "HTTP_ERROR", body["error"].(map[string]interface{})["code"])

	resp, _ = doRequest(t, app, second)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUserRateLimiterEvictsIdleBuckets(t *testing.T) {
	limiter := NewUserRateLimiter(rate.Every(10*time.Second), 5)
	assert.Equal(t, time.Minute, limiter.idleTTL)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for id := uint(1); id <= 100; id++ {
		limiter.limiter(id)
	}
	assert.Equal(t, 100, limiter.size())

	now = now.Add(30 * time.Second)
	limiter.limiter(1)
	assert.Equal(t, 100, limiter.size(), "nothing is idle long enough yet")

	now = now.Add(45 * time.Second)
	limiter.limiter(2)
	assert.Equal(t, 2, limiter.size(), "only recently seen users keep a bucket")

	assert.Equal(t, 200*time.Second, refillTime(rate.Limit(0.5), 100))
	assert.Equal(t, time.Minute, refillTime(rate.Inf, 1))
}
