package repository

import (
	"context"
	"errors"

	"github.com/cppla/rewardhub/models"
)

var (
	// ErrDuplicateKey means a unique constraint rejected the insert. For fences this is the
	// "already claimed" answer, not a failure.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned when a required row (e.g. the user's balance row) does not exist.
	ErrNotFound = errors.New("record not found")
)

// Store is everything the reward components need from persistence.
//
// Inside WithinTx, reads that precede a write (GetBalance, GetStreak) lock their row, and
// InsertUnique runs under a savepoint so a duplicate leaves the outer transaction usable.
type Store interface {
	// WithinTx runs fn in a transaction. Nested calls become savepoints.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	GetBalance(ctx context.Context, userID uint) (int64, error)
	SetBalance(ctx context.Context, userID uint, balance int64) error
	AppendTransaction(ctx context.Context, txn *models.CoinTransaction) error
	ListTransactions(ctx context.Context, userID uint, offset, limit int) ([]models.CoinTransaction, int64, error)

	// GetRewardRule returns nil, nil when no rule exists for key.
	GetRewardRule(ctx context.Context, key string) (*models.RewardRule, error)
	ListRewardRules(ctx context.Context) ([]models.RewardRule, error)
	UpsertRewardRule(ctx context.Context, rule *models.RewardRule) error

	// InsertUnique creates record or returns ErrDuplicateKey when a unique key already holds it.
	InsertUnique(ctx context.Context, record interface{}) error

	// GetStreak returns nil, nil when the user has no streak row yet.
	GetStreak(ctx context.Context, userID uint) (*models.StreakState, error)
	SaveStreak(ctx context.Context, state *models.StreakState) error

	HasLoginClaim(ctx context.Context, userID uint, day string) (bool, error)
	HasEngagementCompletion(ctx context.Context, userID uint, day string) (bool, error)
	ListActivities(ctx context.Context, userID uint, day string) ([]string, error)

	// GetActiveCollection returns nil, nil when no collection is live on day.
	GetActiveCollection(ctx context.Context, day string) (*models.ContentCollection, error)
	ListUserIDs(ctx context.Context, afterID uint, limit int) ([]uint, error)
	// InsertScratchCards inserts cards, silently skipping any that collide with an existing
	// (user, day, slot), and returns how many rows were created.
	InsertScratchCards(ctx context.Context, cards []models.ScratchCard) (int64, error)
	NextBonusSlot(ctx context.Context, userID uint, day string) (int, error)
}
