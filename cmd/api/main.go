package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/time/rate"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/controller"
	"walletwise_backend/internal/middleware"
	"walletwise_backend/internal/model"
	"walletwise_backend/internal/repository"
	"walletwise_backend/internal/service"
	"walletwise_backend/pkg/config"
	"walletwise_backend/pkg/cron"
	"walletwise_backend/pkg/database"
	"walletwise_backend/pkg/email"
	"walletwise_backend/pkg/gateway"
	"walletwise_backend/pkg/logger"
	"walletwise_backend/pkg/notify"
	"walletwise_backend/pkg/seed"
	"walletwise_backend/pkg/utils/cloudflare"
	"walletwise_backend/pkg/utils/jwt"
	"walletwise_backend/pkg/utils/storage"
)

const notifyTimeout = 15 * time.Second

type mailer interface {
	SendWelcomeEmail(ctx context.Context, email, name string) error
	SendSubscriptionActivatedEmail(ctx context.Context, email, name, planName string, isTrial bool, expiresAt *time.Time) error
	SendSubscriptionExpiryWarning(ctx context.Context, email, name, planName string, expiryDate time.Time, daysLeft int) error
}

func main() {
	cfg := config.Load()
	log := logger.New(
		logger.WithLevel(cfg.LogLevel),
		logger.WithEnvironment(cfg.Server.Env),
	)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, log, model.AllModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	repo := repository.NewRepository(db)

	var mail mailer
	if cfg.Email.ResendAPIKey != "" {
		emailService, err := email.NewEmailService(cfg.Email.ResendAPIKey, cfg.Email.From, email.WithLogger(log))
		if err != nil {
			return err
		}
		mail = emailService
		log.Info("email service initialized")
	} else {
		log.Warn("RESEND_API_KEY not set, emails are disabled")
	}

	notifier := notify.NewMultiNotifier(log)
	if cfg.Redis.URL != "" {
		client, err := notify.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		notifier.Add(notify.NewRedisNotifier(client))
	}
	if mail != nil {
		notifier.Add(notify.NewEmailNotifier(mail, func(ctx context.Context, userID uint) (string, string, error) {
			user, err := repo.FindUserByID(ctx, userID)
			if err != nil {
				return "", "", err
			}
			return user.Email, user.Name, nil
		}))
	}

	// Deliveries finish before the Redis client and database close.
	notifications := notify.NewAsyncNotifier(notifier, notifyTimeout, log)
	defer notifications.Wait()

	xendit := gateway.NewXenditGateway(cfg.Xendit, cfg.Server.FrontendURL, cfg.GatewayTimeout)
	warnUnverifiedCallbacks(xendit, log)
	gateways := gateway.NewRegistry(
		gateway.NewStripeGateway(cfg.Stripe, cfg.Server.FrontendURL, cfg.GatewayTimeout),
		xendit,
	)

	archive, err := newWebhookArchive(ctx, cfg.Archive, log)
	if err != nil {
		return err
	}

	if !cfg.Server.IsProduction() && cfg.Seed.DemoEmail != "" {
		if _, _, err := seed.SeedDemoUser(ctx, repo, cfg.Seed.DemoEmail, cfg.Seed.DemoPassword, log); err != nil {
			log.Warn("demo user not seeded", "error", err)
		}
	}

	tokens := jwt.NewManager(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	entitlements := service.NewEntitlementService(repo)
	payments := service.NewPaymentService(repo, gateways, notifications, log)
	activator := service.NewWebhookActivator(repo, notifications, archive, log)

	scheduler := cron.NewScheduler(repo, mail, log)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("cron: %w", err)
	}
	defer func() { <-scheduler.Stop().Done() }()

	app := fiber.New(fiber.Config{
		ErrorHandler: apperror.Handler,
		BodyLimit:    storage.MaxFileSize,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))

	controller.Routes{
		Auth:            controller.NewAuthController(service.NewAuthService(repo, tokens, mail, log)),
		Subscriptions:   controller.NewSubscriptionController(entitlements),
		Payments:        controller.NewPaymentController(payments),
		Webhooks:        controller.NewWebhookController(gateways, activator, log),
		Wallets:         controller.NewWalletController(service.NewWalletService(repo, entitlements)),
		Tokens:          tokens,
		Entitlements:    entitlements,
		CheckoutLimiter: middleware.NewUserRateLimiter(rate.Every(10*time.Second), 5),
		DB:              sqlDB,
	}.Setup(app)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server is running", "port", cfg.Server.Port, "env", cfg.Server.Env)
		errCh <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	return app.ShutdownWithTimeout(10 * time.Second)
}

// warnUnverifiedCallbacks logs when Xendit callbacks are accepted without a
// token check and reports whether that is the case.
func warnUnverifiedCallbacks(xendit *gateway.XenditGateway, log *slog.Logger) bool {
	if xendit.VerifiesCallbacks() {
		return false
	}
	log.Warn("XENDIT_WEBHOOK_TOKEN not set, Xendit callbacks are accepted without verification")
	return true
}

// newWebhookArchive prefers R2 and falls back to a local directory. It
// returns a nil interface when neither is configured.
func newWebhookArchive(ctx context.Context, cfg config.ArchiveConfig, log *slog.Logger) (cloudflare.WebhookArchive, error) {
	r2, err := cloudflare.NewR2Archive(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("webhook archive: %w", err)
	}
	if r2 != nil {
		log.Info("webhook archive enabled", "backend", "r2", "bucket", cfg.BucketName)
		return r2, nil
	}
	if cfg.Dir != "" {
		local, err := storage.NewFileArchive(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("webhook archive: %w", err)
		}
		log.Info("webhook archive enabled", "backend", "disk", "dir", cfg.Dir)
		return local, nil
	}
	return nil, nil
}
