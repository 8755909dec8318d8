package services

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cppla/rewardhub/metrics"
	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/notify"
	"github.com/cppla/rewardhub/repository"
	"github.com/cppla/rewardhub/utils"
)

// directKey labels awards that did not come from a reward rule.
const directKey RewardKey = "direct"

// Credit is one committed award. Components collect credits inside a transaction and hand them
// to Ledger.Publish once it has committed.
type Credit struct {
	UserID       uint
	Key          RewardKey
	Amount       int64
	BalanceAfter int64
	Reason       string
}

// Ledger is the only writer of users.coins. Every balance change is paired with a
// coin_transactions row in the same database transaction.
type Ledger struct {
	store    repository.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	retry    utils.RetryPolicy
}

// NewLedger wires the ledger. A nil notifier disables notifications; a nil Retryable in retry
// defaults to repository.IsTransient.
func NewLedger(store repository.Store, notifier notify.Notifier, m *metrics.Metrics, log *zap.Logger, retry utils.RetryPolicy) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	if retry.Retryable == nil {
		retry.Retryable = repository.IsTransient
	}
	return &Ledger{store: store, notifier: notifier, metrics: m, log: log, retry: retry}
}

// Store exposes the non-transactional store for read paths.
func (l *Ledger) Store() repository.Store { return l.store }

// RunInTx runs fn in one database transaction and retries the whole transaction on transient
// errors. fn must be safe to run again: anything it read before the failure is re-read.
func (l *Ledger) RunInTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return utils.Retry(ctx, l.retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			l.metrics.Retry()
		}
		return l.store.WithinTx(ctx, fn)
	})
}

// Award credits amount to the user in its own transaction and notifies after commit.
func (l *Ledger) Award(ctx context.Context, userID uint, amount int64, description string, txType models.TransactionType) (*models.CoinTransaction, error) {
	var entry *models.CoinTransaction
	err := l.RunInTx(ctx, func(tx repository.Store) error {
		var err error
		entry, err = l.AwardInTx(ctx, tx, userID, amount, description, txType)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.Publish(ctx, Credit{UserID: userID, Key: directKey, Amount: amount, BalanceAfter: entry.BalanceAfter, Reason: description})
	return entry, nil
}

// AwardInTx locks the balance row, adds amount and appends the matching ledger entry using tx.
// The caller owns commit and must call Publish afterwards.
func (l *Ledger) AwardInTx(ctx context.Context, tx repository.Store, userID uint, amount int64, description string, txType models.TransactionType) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if txType == "" {
		txType = models.TransactionEarned
	}
	if txType != models.TransactionEarned {
		return nil, ErrUnsupportedTxType
	}

	balance, err := tx.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance > math.MaxInt64-amount {
		return nil, fmt.Errorf("balance overflow for user %d", userID)
	}
	newBalance := balance + amount

	if err := tx.SetBalance(ctx, userID, newBalance); err != nil {
		return nil, err
	}
	entry := &models.CoinTransaction{
		UserID:          userID,
		Amount:          amount,
		TransactionType: txType,
		Description:     description,
		BalanceAfter:    newBalance,
	}
	if err := tx.AppendTransaction(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Publish records metrics and notifies for committed credits. Zero-amount credits are skipped.
func (l *Ledger) Publish(ctx context.Context, credits ...Credit) {
	for _, c := range credits {
		if c.Amount <= 0 {
			continue
		}
		l.metrics.Coins(string(c.Key), c.Amount)
		l.log.Info("coins awarded",
			zap.Uint("user_id", c.UserID),
			zap.String("reward_key", string(c.Key)),
			zap.Int64("amount", c.Amount),
			zap.Int64("balance_after", c.BalanceAfter),
		)
		if l.notifier != nil {
			l.notifier.CoinsEarned(ctx, c.UserID, c.Amount, c.Reason)
		}
	}
}

// History returns one page of the user's ledger, newest first.
func (l *Ledger) History(ctx context.Context, userID uint, page, pageSize int) ([]models.CoinTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return l.store.ListTransactions(ctx, userID, (page-1)*pageSize, pageSize)
}
