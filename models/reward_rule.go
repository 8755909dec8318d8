package models

import "time"

// RewardRule is operator-tunable configuration for one reward key.
type RewardRule struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RewardKey   string    `gorm:"size:64;not null;uniqueIndex" json:"reward_key"`
	RewardName  string    `gorm:"size:128;not null" json:"reward_name"`
	CoinsAmount int64     `gorm:"not null;default:0" json:"coins_amount"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
