package models

import "time"

// DailyEngagementCompletion fences the all-activities bonus: one row per user per reference day.
type DailyEngagementCompletion struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"uniqueIndex:uk_engagement_user_date,priority:1;not null" json:"user_id"`
	CompletionDate string    `gorm:"uniqueIndex:uk_engagement_user_date,priority:2;size:10;not null" json:"completion_date"`
	CoinsAwarded   int64     `gorm:"not null;default:0" json:"coins_awarded"`
	CreatedAt      time.Time `json:"created_at"`
}

// ActivityCompletion marks one daily activity (mood check-in, fortune view, word game) as done.
type ActivityCompletion struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex:uk_activity_user_date_kind,priority:1;not null" json:"user_id"`
	ActivityDate string    `gorm:"uniqueIndex:uk_activity_user_date_kind,priority:2;size:10;not null" json:"activity_date"`
	Activity     string    `gorm:"uniqueIndex:uk_activity_user_date_kind,priority:3;size:32;not null" json:"activity"`
	CreatedAt    time.Time `json:"created_at"`
}
