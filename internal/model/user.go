package model

import (
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Password string `json:"-" gorm:"not null"`
	Name     string `json:"name"`

	// Relations
	Subscription *Subscription `json:"subscription,omitempty" gorm:"foreignKey:UserID"`
	Wallets      []Wallet      `json:"-"`
}

func (u *User) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
	}
}
