package model

import (
	"time"

	"walletwise_backend/pkg/subscription"
)

// Subscription is the single entitlement row of a user. Version increases on
// every write so the trial path can update conditionally.
type Subscription struct {
	ID           uint              `json:"id" gorm:"primaryKey"`
	UserID       uint              `json:"user_id" gorm:"uniqueIndex;not null"`
	Tier         subscription.Tier `json:"tier" gorm:"type:varchar(20);not null;default:'free'"`
	IsActive     bool              `json:"is_active" gorm:"not null"`
	StartDate    time.Time         `json:"start_date"`
	EndDate      *time.Time        `json:"end_date"`
	HasUsedTrial bool              `json:"has_used_trial" gorm:"not null;default:false"`
	Version      int64             `json:"-" gorm:"not null;default:0"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	// Relations
	User *User `json:"-" gorm:"foreignKey:UserID"`
}

// NewFreeSubscription is the row every user starts with.
func NewFreeSubscription(userID uint, now time.Time) *Subscription {
	return &Subscription{
		UserID:    userID,
		Tier:      subscription.FreeTier,
		IsActive:  true,
		StartDate: now,
	}
}

// TrialUsed reports whether the one-time trial is no longer available. Any
// row that ever left free has consumed it, matching the condition of the
// conditional trial write.
func (s *Subscription) TrialUsed() bool {
	return s.HasUsedTrial || s.Tier != subscription.FreeTier
}

// EffectiveTier is the tier that currently grants features.
func (s *Subscription) EffectiveTier(now time.Time) subscription.Tier {
	if !s.IsActive {
		return subscription.FreeTier
	}
	return subscription.EffectiveTier(s.Tier, s.EndDate, now)
}
