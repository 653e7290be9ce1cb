package model

import (
	"time"

	"walletwise_backend/pkg/subscription"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
	PaymentExpired = "expired"
)

const (
	GatewayStripe = "stripe"
	GatewayXendit = "xendit"
)

// Payment is one checkout attempt. GatewayRef is the idempotency key shared
// with the gateway and is unique across the ledger.
type Payment struct {
	ID            string                     `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID        uint                       `json:"user_id" gorm:"not null;index"`
	Gateway       string                     `json:"gateway" gorm:"type:varchar(20);not null"`
	GatewayRef    string                     `json:"gateway_ref" gorm:"type:varchar(191);uniqueIndex;not null"`
	ProviderID    string                     `json:"provider_id,omitempty" gorm:"type:varchar(191);index"`
	Method        string                     `json:"method" gorm:"type:varchar(20)"`
	Status        string                     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	Amount        decimal.Decimal            `json:"amount" gorm:"type:numeric(14,2);not null"`
	Currency      string                     `json:"currency" gorm:"type:varchar(3);not null"`
	TargetTier    subscription.Tier          `json:"target_tier" gorm:"type:varchar(20);not null"`
	BillingPeriod subscription.BillingPeriod `json:"billing_period" gorm:"type:varchar(10);not null"`
	RedirectURL   string                     `json:"redirect_url,omitempty"`
	ExpiresAt     *time.Time                 `json:"expires_at,omitempty" gorm:"index"`
	RawRequest    datatypes.JSON             `json:"-"`
	RawResponse   datatypes.JSON             `json:"-"`
	RawWebhook    datatypes.JSON             `json:"-"`
	CreatedAt     time.Time                  `json:"created_at"`
	UpdatedAt     time.Time                  `json:"updated_at"`

	// Relations
	User *User `json:"-" gorm:"foreignKey:UserID"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Payment) IsPaid() bool {
	return p.Status == PaymentPaid
}
