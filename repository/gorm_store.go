package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/rewardhub/models"
)

// GormStore implements Store on gorm for MySQL and PostgreSQL.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore wraps an opened gorm DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true})
	})
}

// lockForUpdate adds SELECT ... FOR UPDATE when running inside a transaction.
func (s *GormStore) lockForUpdate(q *gorm.DB) *gorm.DB {
	if s.inTx {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (s *GormStore) GetBalance(ctx context.Context, userID uint) (int64, error) {
	var user models.User
	q := s.lockForUpdate(s.db.WithContext(ctx).Select("id", "coins"))
	if err := q.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return user.Coins, nil
}

func (s *GormStore) SetBalance(ctx context.Context, userID uint, balance int64) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("coins", balance)
	if res.Error != nil {
		return fmt.Errorf("set balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AppendTransaction(ctx context.Context, txn *models.CoinTransaction) error {
	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (s *GormStore) ListTransactions(ctx context.Context, userID uint, offset, limit int) ([]models.CoinTransaction, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.CoinTransaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	var items []models.CoinTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return items, total, nil
}

func (s *GormStore) GetRewardRule(ctx context.Context, key string) (*models.RewardRule, error) {
	var rule models.RewardRule
	if err := s.db.WithContext(ctx).Where("reward_key = ?", key).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reward rule %s: %w", key, err)
	}
	return &rule, nil
}

func (s *GormStore) ListRewardRules(ctx context.Context) ([]models.RewardRule, error) {
	var rules []models.RewardRule
	if err := s.db.WithContext(ctx).Order("reward_key").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list reward rules: %w", err)
	}
	return rules, nil
}

func (s *GormStore) UpsertRewardRule(ctx context.Context, rule *models.RewardRule) error {
	rule.UpdatedAt = time.Now()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reward_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"reward_name", "coins_amount", "is_active", "updated_at"}),
	}).Create(rule).Error
	if err != nil {
		return fmt.Errorf("upsert reward rule %s: %w", rule.RewardKey, err)
	}
	return nil
}

// InsertUnique always runs inside its own (sub)transaction: outside a transaction gorm opens one,
// inside it becomes a savepoint, so PostgreSQL does not poison the caller's transaction on a duplicate.
func (s *GormStore) InsertUnique(ctx context.Context, record interface{}) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
	if err == nil {
		return nil
	}
	if IsDuplicateKey(err) {
		return ErrDuplicateKey
	}
	return fmt.Errorf("insert %T: %w", record, err)
}

func (s *GormStore) GetStreak(ctx context.Context, userID uint) (*models.StreakState, error) {
	var st models.StreakState
	q := s.lockForUpdate(s.db.WithContext(ctx))
	if err := q.Where("user_id = ?", userID).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return &st, nil
}

func (s *GormStore) SaveStreak(ctx context.Context, state *models.StreakState) error {
	state.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(&models.StreakState{}).
		Where("user_id = ?", state.UserID).
		Updates(map[string]interface{}{
			"current_streak":  state.CurrentStreak,
			"best_streak":     state.BestStreak,
			"last_login_date": state.LastLoginDate,
			"updated_at":      state.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("save streak: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) exists(ctx context.Context, model interface{}, query string, args ...interface{}) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(model).Where(query, args...).Limit(1).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *GormStore) HasLoginClaim(ctx context.Context, userID uint, day string) (bool, error) {
	ok, err := s.exists(ctx, &models.DailyLoginClaim{}, "user_id = ? AND claim_date = ?", userID, day)
	if err != nil {
		return false, fmt.Errorf("check login claim: %w", err)
	}
	return ok, nil
}

func (s *GormStore) HasEngagementCompletion(ctx context.Context, userID uint, day string) (bool, error) {
	ok, err := s.exists(ctx, &models.DailyEngagementCompletion{}, "user_id = ? AND completion_date = ?", userID, day)
	if err != nil {
		return false, fmt.Errorf("check engagement completion: %w", err)
	}
	return ok, nil
}

func (s *GormStore) ListActivities(ctx context.Context, userID uint, day string) ([]string, error) {
	var kinds []string
	err := s.db.WithContext(ctx).Model(&models.ActivityCompletion{}).
		Where("user_id = ? AND activity_date = ?", userID, day).
		Order("activity").
		Pluck("activity", &kinds).Error
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return kinds, nil
}

func (s *GormStore) GetActiveCollection(ctx context.Context, day string) (*models.ContentCollection, error) {
	var c models.ContentCollection
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND starts_on <= ? AND ends_on >= ?", true, day, day).
		Order("starts_on DESC").Order("id DESC").
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active collection: %w", err)
	}
	return &c, nil
}

func (s *GormStore) ListUserIDs(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id > ?", afterID).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

func (s *GormStore) InsertScratchCards(ctx context.Context, cards []models.ScratchCard) (int64, error) {
	if len(cards) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&cards)
	if res.Error != nil {
		return 0, fmt.Errorf("insert scratch cards: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) NextBonusSlot(ctx context.Context, userID uint, day string) (int, error) {
	var maxSlot int
	err := s.db.WithContext(ctx).Model(&models.ScratchCard{}).
		Where("user_id = ? AND card_date = ?", userID, day).
		Select("COALESCE(MAX(slot), 0)").
		Scan(&maxSlot).Error
	if err != nil {
		return 0, fmt.Errorf("next bonus slot: %w", err)
	}
	return maxSlot + 1, nil
}
