package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"walletwise_backend/internal/model"
	"walletwise_backend/internal/repository"
	"walletwise_backend/pkg/gateway"
	"walletwise_backend/pkg/notify"
	"walletwise_backend/pkg/subscription"
	"walletwise_backend/pkg/utils/cloudflare"

	"gorm.io/datatypes"
)

type ActivationInput struct {
	GatewayRef string
	Gateway    string
	RawWebhook []byte
}

// Activation describes a subscription change applied by a webhook.
type Activation struct {
	UserID       uint                `json:"userId"`
	Tier         subscription.Tier   `json:"tier"`
	Subscription *model.Subscription `json:"subscription"`
}

// WebhookActivator applies verified gateway events to the ledger and the
// subscription. Each payment activates a subscription at most once no matter
// how often the gateway delivers the event.
type WebhookActivator struct {
	repo     repository.Repository
	notifier notify.Notifier
	archive  cloudflare.WebhookArchive
	log      *slog.Logger
	now      func() time.Time
}

// NewWebhookActivator creates an activator. archive may be nil.
func NewWebhookActivator(repo repository.Repository, notifier notify.Notifier, archive cloudflare.WebhookArchive, log *slog.Logger) *WebhookActivator {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookActivator{
		repo:     repo,
		notifier: notifier,
		archive:  archive,
		log:      log,
		now:      time.Now,
	}
}

// Handle dispatches a verified event. Unknown references and irrelevant
// event types are acknowledged without changes.
func (a *WebhookActivator) Handle(ctx context.Context, gatewayName string, event *gateway.Event, rawBody []byte) (*Activation, error) {
	a.store(ctx, gatewayName, event, rawBody)

	switch event.Kind {
	case gateway.EventPaid:
		return a.Activate(ctx, ActivationInput{
			GatewayRef: event.GatewayRef,
			Gateway:    gatewayName,
			RawWebhook: rawBody,
		})
	case gateway.EventFailed:
		return nil, a.close(ctx, gatewayName, event.GatewayRef, model.PaymentFailed, rawBody)
	case gateway.EventExpired:
		return nil, a.close(ctx, gatewayName, event.GatewayRef, model.PaymentExpired, rawBody)
	default:
		a.log.Debug("webhook event ignored",
			slog.String("gateway", gatewayName),
			slog.String("type", event.Type),
			slog.String("event_id", event.EventID))
		return nil, nil
	}
}

// Activate marks the payment paid and upserts the subscription in one
// transaction. It returns nil when there was nothing to apply.
func (a *WebhookActivator) Activate(ctx context.Context, in ActivationInput) (*Activation, error) {
	log := a.log.With(slog.String("gateway", in.Gateway), slog.String("gateway_ref", in.GatewayRef))
	if in.GatewayRef == "" {
		log.Warn("webhook without payment reference")
		return nil, nil
	}

	now := a.now().UTC()
	var activation *Activation
	err := a.repo.Transaction(ctx, func(tx repository.Repository) error {
		payment, err := tx.FindPaymentByRef(ctx, in.GatewayRef)
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("webhook for unknown payment")
			return nil
		}
		if err != nil {
			return err
		}
		if in.Gateway != "" && payment.Gateway != in.Gateway {
			log.Warn("webhook gateway does not match payment", slog.String("payment_gateway", payment.Gateway))
			return nil
		}
		if payment.IsPaid() {
			log.Info("payment already activated")
			return nil
		}

		applied, err := tx.MarkPaymentPaid(ctx, in.GatewayRef, rawJSON(in.RawWebhook), now)
		if err != nil {
			return err
		}
		if !applied {
			log.Info("payment activated by a concurrent delivery")
			return nil
		}

		end := subscription.PeriodEnd(now, payment.BillingPeriod)
		sub := &model.Subscription{
			UserID:    payment.UserID,
			Tier:      payment.TargetTier,
			IsActive:  true,
			StartDate: now,
			EndDate:   &end,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.UpsertSubscription(ctx, sub); err != nil {
			return err
		}

		activation = &Activation{UserID: payment.UserID, Tier: sub.Tier, Subscription: sub}
		return nil
	})
	if err != nil {
		log.Error("webhook activation failed", slog.Any("error", err))
		return nil, err
	}
	if activation == nil {
		return nil, nil
	}

	log.Info("subscription activated",
		slog.Uint64("user_id", uint64(activation.UserID)),
		slog.String("tier", string(activation.Tier)))

	if a.notifier != nil {
		sub := activation.Subscription
		if err := a.notifier.Notify(ctx, activation.UserID, notify.EventSubscriptionUpdated, notify.Payload{
			Tier:     sub.Tier,
			IsActive: sub.IsActive,
			EndDate:  sub.EndDate,
		}); err != nil {
			log.Warn("subscription notification failed", slog.Any("error", err))
		}
	}
	return activation, nil
}

func (a *WebhookActivator) close(ctx context.Context, gatewayName, gatewayRef, status string, rawBody []byte) error {
	if gatewayRef == "" {
		return nil
	}
	log := a.log.With(slog.String("gateway", gatewayName), slog.String("gateway_ref", gatewayRef))
	payment, err := a.repo.FindPaymentByRef(ctx, gatewayRef)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("webhook for unknown payment")
		return nil
	}
	if err != nil {
		return err
	}
	if payment.Gateway != gatewayName {
		log.Warn("webhook gateway does not match payment", slog.String("payment_gateway", payment.Gateway))
		return nil
	}

	closed, err := a.repo.ClosePendingPayment(ctx, gatewayRef, status, rawJSON(rawBody), a.now().UTC())
	if err != nil {
		return err
	}
	log.Info("payment closed",
		slog.String("status", status),
		slog.Bool("changed", closed))
	return nil
}

func (a *WebhookActivator) store(ctx context.Context, gatewayName string, event *gateway.Event, rawBody []byte) {
	if a.archive == nil || len(rawBody) == 0 {
		return
	}
	key, err := a.archive.Store(ctx, gatewayName, event.GatewayRef, rawBody, a.now().UTC())
	if err != nil {
		a.log.Warn("webhook archive failed",
			slog.String("gateway", gatewayName),
			slog.String("gateway_ref", event.GatewayRef),
			slog.Any("error", err))
		return
	}
	a.log.Debug("webhook archived", slog.String("key", key))
}

func rawJSON(body []byte) datatypes.JSON {
	if len(body) == 0 {
		return nil
	}
	return datatypes.JSON(body)
}
