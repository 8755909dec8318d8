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
)

// Activity is one of the daily activities counted toward the engagement bonus.
type Activity string

const (
	ActivityMoodCheckin Activity = "mood_checkin"
	ActivityFortuneView Activity = "fortune_view"
	ActivityWordGame    Activity = "word_game"
)

// RequiredActivities must all be completed on a day for the engagement bonus.
var RequiredActivities = []Activity{ActivityMoodCheckin, ActivityFortuneView, ActivityWordGame}

func ParseActivity(s string) (Activity, error) {
	for _, a := range RequiredActivities {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActivity, s)
}

// CompletionSource answers whether a user has completed every required activity on day.
type CompletionSource interface {
	AllComplete(ctx context.Context, userID uint, day clock.DateKey) (bool, error)
}

// ActivityTracker records per-activity completion markers and answers CompletionSource.
type ActivityTracker struct {
	store repository.Store
	clock *clock.Clock
	log   *zap.Logger
}

func NewActivityTracker(store repository.Store, clk *clock.Clock, log *zap.Logger) *ActivityTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &ActivityTracker{store: store, clock: clk, log: log}
}

// Mark records activity as done today. newlyDone is false when it was already marked.
func (a *ActivityTracker) Mark(ctx context.Context, userID uint, activity Activity) (day clock.DateKey, newlyDone bool, err error) {
	day = a.clock.Today()
	err = a.store.InsertUnique(ctx, &models.ActivityCompletion{
		UserID:       userID,
		ActivityDate: day.String(),
		Activity:     string(activity),
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		return day, false, nil
	}
	if err != nil {
		return day, false, err
	}
	a.log.Debug("activity completed", zap.Uint("user_id", userID), zap.String("activity", string(activity)), zap.String("day", day.String()))
	return day, true, nil
}

// Completed lists the required activities the user finished on day.
func (a *ActivityTracker) Completed(ctx context.Context, userID uint, day clock.DateKey) ([]Activity, error) {
	kinds, err := a.store.ListActivities(ctx, userID, day.String())
	if err != nil {
		return nil, err
	}
	done := map[string]bool{}
	for _, k := range kinds {
		done[k] = true
	}
	out := make([]Activity, 0, len(RequiredActivities))
	for _, r := range RequiredActivities {
		if done[string(r)] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *ActivityTracker) AllComplete(ctx context.Context, userID uint, day clock.DateKey) (bool, error) {
	done, err := a.Completed(ctx, userID, day)
	if err != nil {
		return false, err
	}
	return len(done) == len(RequiredActivities), nil
}

// EngagementResult tells the page whether to celebrate. Celebrate is true only on the call that
// took today's completion fence.
type EngagementResult struct {
	Day              clock.DateKey `json:"day"`
	AllComplete      bool          `json:"all_complete"`
	Celebrate        bool          `json:"celebrate"`
	AlreadyCompleted bool          `json:"already_completed"`
	CoinsAwarded     int64         `json:"coins_awarded"`
}

// Engagement pays the daily engagement bonus once per user per reference day.
type Engagement struct {
	catalog *Catalog
	ledger  *Ledger
	clock   *clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewEngagement(catalog *Catalog, ledger *Ledger, clk *clock.Clock, m *metrics.Metrics, log *zap.Logger) *Engagement {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engagement{catalog: catalog, ledger: ledger, clock: clk, metrics: m, log: log}
}

// Check is safe to call on every render. When allComplete is false nothing is written.
func (e *Engagement) Check(ctx context.Context, userID uint, allComplete bool) (*EngagementResult, error) {
	return e.check(ctx, userID, e.clock.Today(), allComplete)
}

// Evaluate asks source about today and runs Check with its answer, using one DateKey for both.
func (e *Engagement) Evaluate(ctx context.Context, userID uint, source CompletionSource) (*EngagementResult, error) {
	day := e.clock.Today()
	all, err := source.AllComplete(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	return e.check(ctx, userID, day, all)
}

func (e *Engagement) check(ctx context.Context, userID uint, day clock.DateKey, allComplete bool) (*EngagementResult, error) {
	res := &EngagementResult{Day: day, AllComplete: allComplete}
	if !allComplete {
		return res, nil
	}

	var credit Credit
	err := e.ledger.RunInTx(ctx, func(tx repository.Store) error {
		credit = Credit{}
		res.AlreadyCompleted = false

		rule, err := e.catalog.Lookup(ctx, tx, RewardEngagementBonus)
		if err != nil {
			return err
		}
		var coins int64
		if rule != nil {
			coins = rule.CoinsAmount
		}
		err = tx.InsertUnique(ctx, &models.DailyEngagementCompletion{
			UserID:         userID,
			CompletionDate: day.String(),
			CoinsAwarded:   coins,
		})
		if errors.Is(err, repository.ErrDuplicateKey) {
			res.AlreadyCompleted = true
			return nil
		}
		if err != nil {
			return err
		}
		credit, err = e.catalog.AwardRuleInTx(ctx, tx, userID, RewardEngagementBonus, rule, "")
		return err
	})
	if err != nil {
		e.metrics.Reward(string(RewardEngagementBonus), metrics.OutcomeFailed)
		e.log.Error("engagement check failed", zap.Uint("user_id", userID), zap.String("day", day.String()), zap.Error(err))
		return nil, err
	}

	if res.AlreadyCompleted {
		e.metrics.Reward(string(RewardEngagementBonus), metrics.OutcomeClaimed)
		return res, nil
	}
	res.Celebrate = true
	res.CoinsAwarded = credit.Amount
	e.metrics.Reward(string(RewardEngagementBonus), metrics.OutcomeAwarded)
	e.ledger.Publish(ctx, credit)
	return res, nil
}
