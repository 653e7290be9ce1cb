package subscription

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Tier string
type Feature string
type BillingPeriod string

const (
	FreeTier     Tier = "free"
	ProTrialTier Tier = "pro_trial"
	ProTier      Tier = "pro"
	ProPlusTier  Tier = "pro_plus"
)

const (
	Monthly BillingPeriod = "monthly"
	Yearly  BillingPeriod = "yearly"
)

const (
	UnlimitedWallets Feature = "unlimited_wallets"
	CustomCategories Feature = "custom_categories"
	Analytics        Feature = "analytics"
	Export           Feature = "export"
)

const (
	TrialDays       = 7
	FreeWalletLimit = 3
)

type PlanLimits struct {
	Name            string
	MaxWallets      int // 0 means unlimited
	AllowedFeatures map[Feature]bool
	Highlights      []string
}

var PlanFeatures = map[Tier]PlanLimits{
	FreeTier: {
		Name:       "Free",
		MaxWallets: FreeWalletLimit,
		AllowedFeatures: map[Feature]bool{
			UnlimitedWallets: false,
			CustomCategories: false,
			Analytics:        false,
			Export:           false,
		},
		Highlights: []string{"Up to 3 wallets", "Transaction tracking", "Basic summary"},
	},
	ProTrialTier: {
		Name:       "Pro Trial",
		MaxWallets: 0,
		AllowedFeatures: map[Feature]bool{
			UnlimitedWallets: true,
			CustomCategories: true,
			Analytics:        false,
			Export:           false,
		},
		Highlights: []string{"7 days of Pro", "Unlimited wallets", "Custom categories"},
	},
	ProTier: {
		Name:       "Pro",
		MaxWallets: 0,
		AllowedFeatures: map[Feature]bool{
			UnlimitedWallets: true,
			CustomCategories: true,
			Analytics:        false,
			Export:           false,
		},
		Highlights: []string{"Unlimited wallets", "Custom categories", "7-day free trial"},
	},
	ProPlusTier: {
		Name:       "Pro+",
		MaxWallets: 0,
		AllowedFeatures: map[Feature]bool{
			UnlimitedWallets: true,
			CustomCategories: true,
			Analytics:        true,
			Export:           true,
		},
		Highlights: []string{"Unlimited wallets", "Advanced analytics", "Data export (CSV/Excel)"},
	},
}

// Prices are in USD.
var Prices = map[Tier]map[BillingPeriod]decimal.Decimal{
	ProTier: {
		Monthly: decimal.RequireFromString("9.99"),
		Yearly:  decimal.RequireFromString("99.99"),
	},
	ProPlusTier: {
		Monthly: decimal.RequireFromString("19.99"),
		Yearly:  decimal.RequireFromString("199.99"),
	},
}

// ParseTier validates a tier at the persistence/request boundary. Tiers are
// never coerced: anything outside the enum is rejected.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case FreeTier, ProTrialTier, ProTier, ProPlusTier:
		return t, nil
	default:
		return "", fmt.Errorf("unknown subscription tier %q", s)
	}
}

func (t Tier) Valid() bool {
	_, err := ParseTier(string(t))
	return err == nil
}

func (t Tier) IsPaid() bool {
	return t == ProTier || t == ProPlusTier
}

func (p BillingPeriod) Valid() bool {
	return p == Monthly || p == Yearly
}

// Months is the length of one paid period.
func (p BillingPeriod) Months() int {
	if p == Yearly {
		return 12
	}
	return 1
}

// Helper functions
func CanUseFeature(tier Tier, feature Feature) bool {
	limits, exists := PlanFeatures[tier]
	if !exists {
		return false
	}
	return limits.AllowedFeatures[feature]
}

func GetPlanLimits(tier Tier) PlanLimits {
	return PlanFeatures[tier]
}

// PriceFor returns the USD price of a paid tier for the given period.
func PriceFor(tier Tier, period BillingPeriod) (decimal.Decimal, bool) {
	byPeriod, ok := Prices[tier]
	if !ok {
		return decimal.Zero, false
	}
	price, ok := byPeriod[period]
	return price, ok
}
