package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the platform member row. Coins is the denormalized running balance owned by the coin ledger;
// nothing outside the ledger writes it.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Coins     int64          `gorm:"not null;default:0" json:"coins"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}
