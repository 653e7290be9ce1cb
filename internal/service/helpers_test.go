package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/model"
	"walletwise_backend/internal/repository"
	"walletwise_backend/pkg/gateway"
	"walletwise_backend/pkg/logger"
	"walletwise_backend/pkg/notify"
	"walletwise_backend/pkg/subscription"
	"walletwise_backend/pkg/utils/jwt"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	name string

	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResult, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	err := g.err
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ref := fmt.Sprintf("%s_%d_%d", g.name, req.UserID, n)
	if req.IdempotencyKey != "" {
		ref = fmt.Sprintf("%s_%d_%s", g.name, req.UserID, req.IdempotencyKey)
	}
	amount, _ := subscription.PriceFor(req.TargetTier, req.BillingPeriod)
	expires := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	res := &gateway.CheckoutResult{
		ProviderID:  "prov_" + ref,
		GatewayRef:  ref,
		Status:      model.PaymentPending,
		ExpiresAt:   &expires,
		Amount:      amount,
		Currency:    "USD",
		RawRequest:  json.RawMessage(`{"method":"` + req.Method + `"}`),
		RawResponse: json.RawMessage(`{"id":"` + ref + `"}`),
	}
	if g.name == model.GatewayXendit {
		res.InvoiceURL = "https://invoice.test/" + ref
	} else {
		res.RedirectURL = "https://checkout.test/" + ref
	}
	return res, nil
}

func (g *fakeGateway) ParseWebhook(rawBody []byte, credential string) (*gateway.Event, error) {
	return nil, apperror.New(apperror.ErrSignatureInvalid, "not supported by fake")
}

type notification struct {
	UserID  uint
	Event   string
	Payload notify.Payload
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (n *fakeNotifier) Notify(ctx context.Context, userID uint, event string, payload notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, Event: event, Payload: payload})
	return n.err
}

func (n *fakeNotifier) Sent() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type archivedBody struct {
	Gateway string
	Ref     string
	Body    string
}

type fakeArchive struct {
	mu     sync.Mutex
	stored []archivedBody
}

func (a *fakeArchive) Store(ctx context.Context, gatewayName, gatewayRef string, body []byte, receivedAt time.Time) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stored = append(a.stored, archivedBody{Gateway: gatewayName, Ref: gatewayRef, Body: string(body)})
	return "webhooks/" + gatewayName + "/" + gatewayRef + ".json", nil
}

type fakeMailer struct {
	mu      sync.Mutex
	welcome []string
}

func (m *fakeMailer) SendWelcomeEmail(ctx context.Context, email, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.welcome = append(m.welcome, email)
	return nil
}

type testEnv struct {
	db           *gorm.DB
	repo         repository.Repository
	clock        *testClock
	stripe       *fakeGateway
	xendit       *fakeGateway
	notifier     *fakeNotifier
	archive      *fakeArchive
	mailer       *fakeMailer
	payments     *PaymentService
	activator    *WebhookActivator
	entitlements *EntitlementService
	wallets      *WalletService
	auth         *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))

	env := &testEnv{
		db:       db,
		repo:     repository.NewRepository(db),
		clock:    &testClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		stripe:   &fakeGateway{name: model.GatewayStripe},
		xendit:   &fakeGateway{name: model.GatewayXendit},
		notifier: &fakeNotifier{},
		archive:  &fakeArchive{},
		mailer:   &fakeMailer{},
	}
	log := logger.Discard()

	env.payments = NewPaymentService(env.repo, gateway.NewRegistry(env.stripe, env.xendit), env.notifier, log)
	env.payments.now = env.clock.Now
	env.activator = NewWebhookActivator(env.repo, env.notifier, env.archive, log)
	env.activator.now = env.clock.Now
	env.entitlements = NewEntitlementService(env.repo)
	env.entitlements.now = env.clock.Now
	env.wallets = NewWalletService(env.repo, env.entitlements)
	env.auth = NewAuthService(env.repo, jwt.NewManager("test-secret", time.Hour), env.mailer, log)
	env.auth.now = env.clock.Now
	return env
}

func (e *testEnv) createUser(t *testing.T, email string) *model.User {
	t.Helper()
	user := &model.User{Email: email, Password: "hash", Name: "Test User"}
	require.NoError(t, e.repo.CreateUserWithSubscription(context.Background(), user, e.clock.Now()))
	return user
}

func (e *testEnv) subscription(t *testing.T, userID uint) *model.Subscription {
	t.Helper()
	sub, err := e.repo.GetOrCreateSubscription(context.Background(), userID, e.clock.Now())
	require.NoError(t, err)
	return sub
}

func (e *testEnv) setTier(t *testing.T, userID uint, tier subscription.Tier, end *time.Time) {
	t.Helper()
	now := e.clock.Now()
	require.NoError(t, e.repo.UpsertSubscription(context.Background(), &model.Subscription{
		UserID:    userID,
		Tier:      tier,
		IsActive:  true,
		StartDate: now,
		EndDate:   end,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func (e *testEnv) paymentCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&model.Payment{}).Count(&count).Error)
	return count
}
