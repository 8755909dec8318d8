package models

import "time"

// DailyLoginClaim is the idempotency fence for the login bonus: one row per user per reference day.
type DailyLoginClaim struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:uk_login_claim_user_date,priority:1;not null" json:"user_id"`
	ClaimDate string    `gorm:"uniqueIndex:uk_login_claim_user_date,priority:2;size:10;not null" json:"claim_date"`
	CreatedAt time.Time `json:"created_at"`
}
