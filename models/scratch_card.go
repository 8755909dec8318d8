package models

import "time"

// ContentCollection is a themed set of scratch-card content, live between StartsOn and EndsOn inclusive.
type ContentCollection struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	IsActive  bool      `gorm:"not null;default:false;index" json:"is_active"`
	StartsOn  string    `gorm:"size:10;not null" json:"starts_on"`
	EndsOn    string    `gorm:"size:10;not null" json:"ends_on"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScratchCard is one card for one user and day. Slot 0 is the daily card; bonus cards use slots 1..n.
type ScratchCard struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex:uk_scratch_user_date_slot,priority:1;not null" json:"user_id"`
	CardDate     string    `gorm:"uniqueIndex:uk_scratch_user_date_slot,priority:2;size:10;not null" json:"card_date"`
	Slot         int       `gorm:"uniqueIndex:uk_scratch_user_date_slot,priority:3;not null;default:0" json:"slot"`
	CollectionID uint      `gorm:"index;not null" json:"collection_id"`
	IsBonusCard  bool      `gorm:"not null;default:false" json:"is_bonus_card"`
	IsScratched  bool      `gorm:"not null;default:false" json:"is_scratched"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// DailyCardSlot is the slot of the one non-bonus card a user receives per day.
const DailyCardSlot = 0
