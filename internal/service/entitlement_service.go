package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"walletwise_backend/internal/apperror"
	"walletwise_backend/internal/model"
	"walletwise_backend/internal/repository"
	"walletwise_backend/pkg/subscription"

	"github.com/shopspring/decimal"
)

const trialEndedMessage = "Your Pro trial has ended. Please upgrade to Pro for unlimited wallets."

// SubscriptionView is the subscription as the client sees it.
type SubscriptionView struct {
	Tier             subscription.Tier             `json:"tier"`
	EffectiveTier    subscription.Tier             `json:"effectiveTier"`
	PlanName         string                        `json:"planName"`
	IsActive         bool                          `json:"isActive"`
	StartDate        time.Time                     `json:"startDate"`
	EndDate          *time.Time                    `json:"endDate,omitempty"`
	DaysRemaining    *int                          `json:"daysRemaining,omitempty"`
	HasUsedTrial     bool                          `json:"hasUsedTrial"`
	TrialAvailable   bool                          `json:"trialAvailable"`
	TrialExpired     bool                          `json:"trialExpired"`
	WalletLimit      *int                          `json:"walletLimit"`
	UnlimitedWallets bool                          `json:"unlimitedWallets"`
	Features         map[subscription.Feature]bool `json:"features"`
}

type PlanView struct {
	Tier       subscription.Tier                              `json:"tier"`
	Name       string                                         `json:"name"`
	MaxWallets *int                                           `json:"maxWallets"`
	Features   []string                                       `json:"features"`
	Analytics  bool                                           `json:"analytics"`
	Export     bool                                           `json:"export"`
	Prices     map[subscription.BillingPeriod]decimal.Decimal `json:"prices,omitempty"`
	TrialDays  int                                            `json:"trialDays,omitempty"`
}

// EntitlementService answers what a user may do under their current tier.
type EntitlementService struct {
	repo repository.Repository
	now  func() time.Time
}

func NewEntitlementService(repo repository.Repository) *EntitlementService {
	return &EntitlementService{repo: repo, now: time.Now}
}

func (s *EntitlementService) loadSubscription(ctx context.Context, userID uint) (*model.Subscription, time.Time, error) {
	now := s.now().UTC()
	if _, err := s.repo.FindUserByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, now, apperror.NotFound("user")
		}
		return nil, now, err
	}
	sub, err := s.repo.GetOrCreateSubscription(ctx, userID, now)
	return sub, now, err
}

// walletAllowance keeps pro_trial as stored so an ended trial is reported as
// such. Lapsed paid tiers and inactive rows get the free allowance.
func walletAllowance(sub *model.Subscription, now time.Time) subscription.WalletAllowance {
	if !sub.IsActive {
		return subscription.WalletLimit(subscription.FreeTier, nil, now)
	}
	tier := sub.Tier
	if tier != subscription.ProTrialTier {
		tier = sub.EffectiveTier(now)
	}
	return subscription.WalletLimit(tier, sub.EndDate, now)
}

func (s *EntitlementService) MySubscription(ctx context.Context, userID uint) (*SubscriptionView, error) {
	sub, now, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	effective := sub.EffectiveTier(now)
	allowance := walletAllowance(sub, now)
	view := &SubscriptionView{
		Tier:             sub.Tier,
		EffectiveTier:    effective,
		PlanName:         subscription.GetPlanLimits(effective).Name,
		IsActive:         sub.IsActive,
		StartDate:        sub.StartDate,
		EndDate:          sub.EndDate,
		HasUsedTrial:     sub.TrialUsed(),
		TrialAvailable:   subscription.ValidateTransition(effective, subscription.ProTrialTier, sub.TrialUsed()) == nil,
		TrialExpired:     allowance.TrialExpired,
		UnlimitedWallets: allowance.Unlimited,
		Features:         map[subscription.Feature]bool{},
	}
	if !allowance.Unlimited {
		limit := allowance.Limit
		view.WalletLimit = &limit
	}
	if sub.EndDate != nil && sub.EndDate.After(now) {
		days := int(math.Ceil(sub.EndDate.Sub(now).Hours() / 24))
		view.DaysRemaining = &days
	}
	for feature, allowed := range subscription.GetPlanLimits(effective).AllowedFeatures {
		view.Features[feature] = allowed
	}
	return view, nil
}

// CheckWalletLimit returns ErrTrialExpired or ErrLimitReached when the user
// cannot create another wallet.
func (s *EntitlementService) CheckWalletLimit(ctx context.Context, userID uint) error {
	sub, now, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return err
	}
	allowance := walletAllowance(sub, now)
	if allowance.Unlimited {
		return nil
	}

	count, err := s.repo.CountWallets(ctx, userID)
	if err != nil {
		return err
	}
	if allowance.Allows(count) {
		return nil
	}
	if allowance.TrialExpired {
		return apperror.New(apperror.ErrTrialExpired, trialEndedMessage)
	}
	return apperror.New(apperror.ErrLimitReached,
		fmt.Sprintf("Wallet limit reached (%d). Upgrade to Pro for unlimited wallets.", allowance.Limit))
}

func (s *EntitlementService) CanUseFeature(ctx context.Context, userID uint, feature subscription.Feature) (bool, error) {
	sub, now, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return subscription.CanUseFeature(sub.EffectiveTier(now), feature), nil
}

// RequireFeature returns ErrForbidden naming the cheapest plan that unlocks
// feature.
func (s *EntitlementService) RequireFeature(ctx context.Context, userID uint, feature subscription.Feature) error {
	ok, err := s.CanUseFeature(ctx, userID, feature)
	if err != nil || ok {
		return err
	}
	for _, tier := range []subscription.Tier{subscription.ProTier, subscription.ProPlusTier} {
		if subscription.CanUseFeature(tier, feature) {
			return apperror.New(apperror.ErrForbidden,
				fmt.Sprintf("This feature requires the %s plan", subscription.GetPlanLimits(tier).Name))
		}
	}
	return apperror.New(apperror.ErrForbidden, "This feature is not available on your plan")
}

// Plans lists the purchasable catalogue.
func (s *EntitlementService) Plans() []PlanView {
	tiers := []subscription.Tier{subscription.FreeTier, subscription.ProTier, subscription.ProPlusTier}
	plans := make([]PlanView, 0, len(tiers))
	for _, tier := range tiers {
		limits := subscription.GetPlanLimits(tier)
		plan := PlanView{
			Tier:      tier,
			Name:      limits.Name,
			Features:  limits.Highlights,
			Analytics: limits.AllowedFeatures[subscription.Analytics],
			Export:    limits.AllowedFeatures[subscription.Export],
			Prices:    subscription.Prices[tier],
		}
		if limits.MaxWallets > 0 {
			maxWallets := limits.MaxWallets
			plan.MaxWallets = &maxWallets
		}
		if tier == subscription.ProTier {
			plan.TrialDays = subscription.TrialDays
		}
		plans = append(plans, plan)
	}
	return plans
}
