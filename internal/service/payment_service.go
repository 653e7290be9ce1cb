package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/model"
	"walletwise_backend/internal/repository"
	"walletwise_backend/pkg/gateway"
	"walletwise_backend/pkg/notify"
	"walletwise_backend/pkg/subscription"

	"gorm.io/datatypes"
)

type CreatePaymentInput struct {
	UserID         uint
	TargetTier     subscription.Tier
	BillingPeriod  subscription.BillingPeriod
	Gateway        string
	Method         string
	IdempotencyKey string
}

type PaymentResult struct {
	PaymentID    string              `json:"paymentId"`
	GatewayRef   string              `json:"gatewayRef"`
	Status       string              `json:"status"`
	RedirectURL  string              `json:"redirectUrl,omitempty"`
	InvoiceURL   string              `json:"invoiceUrl,omitempty"`
	ExpiresAt    *time.Time          `json:"expiresAt,omitempty"`
	Idempotent   bool                `json:"idempotent,omitempty"`
	Subscription *model.Subscription `json:"subscription,omitempty"`
}

// PaymentService starts tier changes. Trials are granted directly; paid tiers
// go through a gateway checkout and are activated later by the webhook.
type PaymentService struct {
	repo     repository.Repository
	gateways *gateway.Registry
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time
}

func NewPaymentService(repo repository.Repository, gateways *gateway.Registry, notifier notify.Notifier, log *slog.Logger) *PaymentService {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentService{
		repo:     repo,
		gateways: gateways,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func transitionError(err error) error {
	var te *subscription.TransitionError
	if errors.As(err, &te) {
		return apperror.Validation(te.Reason)
	}
	return err
}

func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*PaymentResult, error) {
	if !in.TargetTier.Valid() {
		return nil, apperror.Validation(subscription.ReasonUnsupportedTarget)
	}

	user, err := s.repo.FindUserByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("user")
		}
		return nil, err
	}

	now := s.now().UTC()
	sub, err := s.repo.GetOrCreateSubscription(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}

	if err := subscription.ValidateTransition(sub.EffectiveTier(now), in.TargetTier, sub.TrialUsed()); err != nil {
		return nil, transitionError(err)
	}

	if in.TargetTier == subscription.ProTrialTier {
		return s.startTrial(ctx, user.ID, sub, now)
	}
	return s.checkout(ctx, user.ID, in)
}

func (s *PaymentService) startTrial(ctx context.Context, userID uint, sub *model.Subscription, now time.Time) (*PaymentResult, error) {
	end := subscription.TrialEnd(now)
	applied, err := s.repo.ActivateTrial(ctx, userID, sub.Version, now, end)
	if err != nil {
		return nil, err
	}

	fresh, err := s.repo.GetOrCreateSubscription(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another write landed between the read and the update.
		if err := subscription.ValidateTransition(fresh.EffectiveTier(now), subscription.ProTrialTier, fresh.TrialUsed()); err != nil {
			return nil, transitionError(err)
		}
		return nil, apperror.New(apperror.ErrConflict, "subscription changed concurrently, please retry")
	}

	s.log.Info("pro trial started",
		slog.Uint64("user_id", uint64(userID)),
		slog.Time("end_date", end))
	s.publish(ctx, fresh)

	ref := fmt.Sprintf("trial_%d", userID)
	return &PaymentResult{
		PaymentID:    ref,
		GatewayRef:   ref,
		Status:       model.PaymentPaid,
		Subscription: fresh,
	}, nil
}

func (s *PaymentService) checkout(ctx context.Context, userID uint, in CreatePaymentInput) (*PaymentResult, error) {
	gw, err := s.gateways.Get(in.Gateway)
	if err != nil {
		return nil, err
	}
	method := strings.ToLower(strings.TrimSpace(in.Method))
	if method == "" {
		method = defaultMethod(gw.Name())
	}

	res, err := gw.CreateCheckout(ctx, gateway.CheckoutRequest{
		UserID:         userID,
		TargetTier:     in.TargetTier,
		BillingPeriod:  in.BillingPeriod,
		Method:         method,
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
	})
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperror.Gateway(gw.Name()+" checkout failed", err)
	}

	payment := &model.Payment{
		UserID:        userID,
		Gateway:       gw.Name(),
		GatewayRef:    res.GatewayRef,
		ProviderID:    res.ProviderID,
		Method:        method,
		Status:        model.PaymentPending,
		Amount:        res.Amount,
		Currency:      res.Currency,
		TargetTier:    in.TargetTier,
		BillingPeriod: in.BillingPeriod,
		RedirectURL:   firstNonEmpty(res.RedirectURL, res.InvoiceURL),
		ExpiresAt:     res.ExpiresAt,
		RawRequest:    datatypes.JSON(res.RawRequest),
		RawResponse:   datatypes.JSON(res.RawResponse),
	}
	created, stored, err := s.repo.CreatePaymentIfNotExists(ctx, payment)
	if err != nil {
		return nil, fmt.Errorf("record payment %s: %w", res.GatewayRef, err)
	}
	if stored.UserID != userID {
		return nil, apperror.New(apperror.ErrConflict, "payment reference belongs to another user")
	}
	if !created && !sameIntent(stored, gw.Name(), in) {
		return nil, apperror.New(apperror.ErrConflict, "Idempotency-Key was already used for a different plan")
	}

	if created {
		s.log.Info("payment created",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("gateway", gw.Name()),
			slog.String("gateway_ref", stored.GatewayRef),
			slog.String("target_tier", string(in.TargetTier)),
			slog.String("amount", stored.Amount.String()),
			slog.String("currency", stored.Currency))
	} else {
		s.log.Info("payment already recorded",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("gateway_ref", stored.GatewayRef))
	}

	result := paymentResult(stored)
	result.Idempotent = !created
	return result, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, userID uint, limit int) ([]model.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListPaymentsByUser(ctx, userID, limit)
}

// GetPayment returns a ledger row owned by userID. Rows of other users are
// reported as missing.
func (s *PaymentService) GetPayment(ctx context.Context, userID uint, gatewayRef string) (*model.Payment, error) {
	payment, err := s.repo.FindPaymentByRef(ctx, gatewayRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("payment")
		}
		return nil, err
	}
	if payment.UserID != userID {
		return nil, apperror.NotFound("payment")
	}
	return payment, nil
}

func (s *PaymentService) publish(ctx context.Context, sub *model.Subscription) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, sub.UserID, notify.EventSubscriptionUpdated, notify.Payload{
		Tier:     sub.Tier,
		IsActive: sub.IsActive,
		EndDate:  sub.EndDate,
	}); err != nil {
		s.log.Warn("subscription notification failed",
			slog.Uint64("user_id", uint64(sub.UserID)),
			slog.Any("error", err))
	}
}

// sameIntent reports whether an existing ledger row was created for the same
// tier, period and gateway as the request replaying its key.
func sameIntent(p *model.Payment, gatewayName string, in CreatePaymentInput) bool {
	return p.Gateway == gatewayName && p.TargetTier == in.TargetTier && p.BillingPeriod == in.BillingPeriod
}

func paymentResult(p *model.Payment) *PaymentResult {
	result := &PaymentResult{
		PaymentID:  p.ID,
		GatewayRef: p.GatewayRef,
		Status:     p.Status,
		ExpiresAt:  p.ExpiresAt,
	}
	if p.Gateway == model.GatewayXendit {
		result.InvoiceURL = p.RedirectURL
	} else {
		result.RedirectURL = p.RedirectURL
	}
	return result
}

func defaultMethod(gatewayName string) string {
	if gatewayName == model.GatewayXendit {
		return gateway.MethodInvoice
	}
	return gateway.MethodCard
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
