package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cppla/rewardhub/clock"
	"github.com/cppla/rewardhub/metrics"
	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/repository"
	"github.com/cppla/rewardhub/utils"
)

const loginFlagPrefix = "rewards:login:"

// ClaimResult is the outcome of one daily login claim.
type ClaimResult struct {
	Day            clock.DateKey `json:"day"`
	Claimed        bool          `json:"claimed"`
	AlreadyClaimed bool          `json:"already_claimed"`
	CoinsAwarded   int64         `json:"coins_awarded"`
	BalanceAfter   int64         `json:"balance_after,omitempty"`
}

// DailyLogin pays the login bonus at most once per user per reference day.
type DailyLogin struct {
	catalog *Catalog
	ledger  *Ledger
	clock   *clock.Clock
	flags   utils.Cache
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewDailyLogin wires the claim flow. flags may be nil; it only remembers days already resolved.
func NewDailyLogin(catalog *Catalog, ledger *Ledger, clk *clock.Clock, flags utils.Cache, m *metrics.Metrics, log *zap.Logger) *DailyLogin {
	if log == nil {
		log = zap.NewNop()
	}
	return &DailyLogin{catalog: catalog, ledger: ledger, clock: clk, flags: flags, metrics: m, log: log}
}

func loginFlagKey(userID uint, day clock.DateKey) string {
	return fmt.Sprintf("%s%s:%d", loginFlagPrefix, day, userID)
}

// Claim inserts today's claim fence and, if this call created it, pays daily_login in the same
// transaction. A taken fence is a successful "already claimed", never an error.
func (d *DailyLogin) Claim(ctx context.Context, userID uint) (*ClaimResult, error) {
	day := d.clock.Today()
	res := &ClaimResult{Day: day}

	if d.resolved(ctx, userID, day) {
		res.AlreadyClaimed = true
		d.metrics.Reward(string(RewardDailyLogin), metrics.OutcomeClaimed)
		return res, nil
	}

	var credit Credit
	err := d.ledger.RunInTx(ctx, func(tx repository.Store) error {
		credit = Credit{}
		res.AlreadyClaimed = false

		err := tx.InsertUnique(ctx, &models.DailyLoginClaim{UserID: userID, ClaimDate: day.String()})
		if errors.Is(err, repository.ErrDuplicateKey) {
			res.AlreadyClaimed = true
			return nil
		}
		if err != nil {
			return err
		}
		credit, err = d.catalog.AwardByKeyInTx(ctx, tx, userID, RewardDailyLogin, "")
		return err
	})
	if err != nil {
		d.metrics.Reward(string(RewardDailyLogin), metrics.OutcomeFailed)
		d.log.Error("daily login claim failed",
			zap.Uint("user_id", userID),
			zap.String("day", day.String()),
			zap.Error(err),
		)
		return nil, err
	}

	// The database has answered for today either way; remember it until the day ends.
	d.markResolved(ctx, userID, day)

	if res.AlreadyClaimed {
		d.metrics.Reward(string(RewardDailyLogin), metrics.OutcomeClaimed)
		d.log.Info("daily login already claimed", zap.Uint("user_id", userID), zap.String("day", day.String()))
		return res, nil
	}

	res.Claimed = true
	res.CoinsAwarded = credit.Amount
	res.BalanceAfter = credit.BalanceAfter
	d.metrics.Reward(string(RewardDailyLogin), metrics.OutcomeAwarded)
	d.ledger.Publish(ctx, credit)
	return res, nil
}

// resolved consults the advisory flag. It can only say "already handled"; it never permits a write.
func (d *DailyLogin) resolved(ctx context.Context, userID uint, day clock.DateKey) bool {
	if d.flags == nil {
		return false
	}
	var done bool
	return d.flags.GetJSON(ctx, loginFlagKey(userID, day), &done) && done
}

func (d *DailyLogin) markResolved(ctx context.Context, userID uint, day clock.DateKey) {
	if d.flags == nil {
		return
	}
	ttl := d.clock.UntilEndOfDay()
	if ttl <= 0 {
		return
	}
	d.flags.SetJSON(ctx, loginFlagKey(userID, day), true, ttl)
}
