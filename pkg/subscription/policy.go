package subscription

import "time"

const (
	ReasonTrialRequiresFree = "trial requires free plan"
	ReasonTrialAlreadyUsed  = "trial already used"
	ReasonAlreadyAtOrAbove  = "already at or above target"
	ReasonAlreadyProPlus    = "already at pro_plus"
	ReasonUnsupportedTarget = "unsupported target tier"
)

// TransitionError is returned by ValidateTransition when a tier change is not
// allowed. Reason is one of the Reason* constants.
type TransitionError struct {
	Reason string
}

func (e *TransitionError) Error() string {
	return e.Reason
}

// ValidateTransition decides whether a user currently on current may start
// becoming target. hasUsedTrial is the durable single-use trial marker.
func ValidateTransition(current, target Tier, hasUsedTrial bool) error {
	switch target {
	case ProTrialTier:
		if current == ProTrialTier {
			return &TransitionError{Reason: ReasonTrialAlreadyUsed}
		}
		if current != FreeTier {
			return &TransitionError{Reason: ReasonTrialRequiresFree}
		}
		if hasUsedTrial {
			return &TransitionError{Reason: ReasonTrialAlreadyUsed}
		}
		return nil
	case ProTier:
		if current == ProTier || current == ProPlusTier {
			return &TransitionError{Reason: ReasonAlreadyAtOrAbove}
		}
		return nil
	case ProPlusTier:
		if current == ProPlusTier {
			return &TransitionError{Reason: ReasonAlreadyProPlus}
		}
		return nil
	default:
		return &TransitionError{Reason: ReasonUnsupportedTarget}
	}
}

// WalletAllowance is the outcome of WalletLimit.
type WalletAllowance struct {
	Limit        int
	Unlimited    bool
	TrialExpired bool
}

// Allows reports whether one more wallet may be created on top of count.
func (a WalletAllowance) Allows(count int64) bool {
	return a.Unlimited || count < int64(a.Limit)
}

// WalletLimit computes the wallet allowance for tier. A pro_trial whose end
// date has passed falls back to the free limit and is flagged as expired so the
// caller can show the trial-ended message instead of the generic one.
func WalletLimit(tier Tier, trialEnd *time.Time, now time.Time) WalletAllowance {
	switch tier {
	case ProTier, ProPlusTier:
		return WalletAllowance{Unlimited: true}
	case ProTrialTier:
		if trialEnd == nil || trialEnd.After(now) {
			return WalletAllowance{Unlimited: true}
		}
		return WalletAllowance{Limit: FreeWalletLimit, TrialExpired: true}
	default:
		return WalletAllowance{Limit: FreeWalletLimit}
	}
}

// EffectiveTier is the tier used for feature gating: an expired trial or a
// lapsed paid period counts as free. A nil end date never expires.
func EffectiveTier(tier Tier, end *time.Time, now time.Time) Tier {
	if tier == FreeTier || end == nil || end.After(now) {
		return tier
	}
	return FreeTier
}

// TrialEnd returns the end of a trial started at start.
func TrialEnd(start time.Time) time.Time {
	return start.Add(TrialDays * 24 * time.Hour)
}

// PeriodEnd returns the end of a paid period started at start.
func PeriodEnd(start time.Time, period BillingPeriod) time.Time {
	return start.AddDate(0, period.Months(), 0)
}
