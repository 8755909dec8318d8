package models

import "time"

// StreakState tracks consecutive reference-zone login days for one user.
type StreakState struct {
	UserID        uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	CurrentStreak int       `gorm:"not null;default:0" json:"current_streak"`
	BestStreak    int       `gorm:"not null;default:0" json:"best_streak"`
	LastLoginDate string    `gorm:"size:10" json:"last_login_date"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StreakMilestoneAward records that a milestone paid out; a milestone pays once per user, ever.
type StreakMilestoneAward struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex:uk_milestone_user_days,priority:1;not null" json:"user_id"`
	MilestoneDays int       `gorm:"uniqueIndex:uk_milestone_user_days,priority:2;not null" json:"milestone_days"`
	RewardKey     string    `gorm:"size:64;not null" json:"reward_key"`
	CoinsAwarded  int64     `gorm:"not null;default:0" json:"coins_awarded"`
	AwardedOn     string    `gorm:"size:10;not null" json:"awarded_on"`
	CreatedAt     time.Time `json:"created_at"`
}
