package models

import "time"

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	TransactionEarned TransactionType = "earned"
	TransactionSpent  TransactionType = "spent"
)

// CoinTransaction is an immutable ledger entry. For any user the sum of Amount equals users.coins.
type CoinTransaction struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index:idx_coin_tx_user_created,priority:1;not null" json:"user_id"`
	Amount          int64           `gorm:"not null" json:"amount"`
	TransactionType TransactionType `gorm:"size:16;not null" json:"transaction_type"`
	Description     string          `gorm:"size:255" json:"description"`
	BalanceAfter    int64           `gorm:"not null" json:"balance_after"`
	CreatedAt       time.Time       `gorm:"index:idx_coin_tx_user_created,priority:2" json:"created_at"`
}
