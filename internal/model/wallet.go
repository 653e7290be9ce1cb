package model

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Wallet struct {
	gorm.Model
	UserID   uint            `json:"user_id" gorm:"not null;uniqueIndex:idx_wallets_user_name"`
	Name     string          `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_wallets_user_name"`
	Balance  decimal.Decimal `json:"balance" gorm:"type:numeric(14,2);not null;default:0"`
	Currency string          `json:"currency" gorm:"type:varchar(3);not null;default:'USD'"`

	// Relations
	User *User `json:"-" gorm:"foreignKey:UserID"`
}

// WalletSummary aggregates a user's wallets.
type WalletSummary struct {
	Wallets      int64           `json:"wallets"`
	TotalBalance decimal.Decimal `json:"total_balance"`
}

// AllModels is the migration set, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Subscription{},
		&Payment{},
		&Wallet{},
	}
}
