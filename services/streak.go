package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cppla/rewardhub/clock"
	"github.com/cppla/rewardhub/metrics"
	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/repository"
)

// Milestone pays Key the first time a user's streak reaches Days.
type Milestone struct {
	Days             int
	Key              RewardKey
	BonusScratchCard bool
}

// MilestoneAward is one milestone paid by a Record call, for the UI to celebrate.
type MilestoneAward struct {
	Days         int       `json:"days"`
	RewardKey    RewardKey `json:"reward_key"`
	CoinsAwarded int64     `json:"coins_awarded"`
	BonusCard    bool      `json:"bonus_card"`
}

// StreakResult is the streak after a Record call.
type StreakResult struct {
	Day           clock.DateKey    `json:"day"`
	CurrentStreak int              `json:"current_streak"`
	BestStreak    int              `json:"best_streak"`
	Advanced      bool             `json:"advanced"`
	Milestones    []MilestoneAward `json:"milestones"`
}

// StreakTracker counts consecutive reference-zone login days and pays configured milestones.
type StreakTracker struct {
	catalog    *Catalog
	ledger     *Ledger
	clock      *clock.Clock
	milestones []Milestone
	bonus      *ScratchIssuer
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// NewStreakTracker validates milestones. bonus may be nil, in which case bonus scratch cards are
// not granted.
func NewStreakTracker(catalog *Catalog, ledger *Ledger, clk *clock.Clock, milestones []Milestone, bonus *ScratchIssuer, m *metrics.Metrics, log *zap.Logger) (*StreakTracker, error) {
	seen := map[int]bool{}
	for _, ms := range milestones {
		if ms.Days < 1 {
			return nil, fmt.Errorf("milestone days must be positive, got %d", ms.Days)
		}
		if !ms.Key.Valid() {
			return nil, fmt.Errorf("milestone %d days: %w: %q", ms.Days, ErrUnknownRewardKey, ms.Key)
		}
		if seen[ms.Days] {
			return nil, fmt.Errorf("duplicate milestone for %d days", ms.Days)
		}
		seen[ms.Days] = true
	}
	sorted := append([]Milestone(nil), milestones...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Days < sorted[j].Days })
	if log == nil {
		log = zap.NewNop()
	}
	return &StreakTracker{
		catalog:    catalog,
		ledger:     ledger,
		clock:      clk,
		milestones: sorted,
		bonus:      bonus,
		metrics:    m,
		log:        log,
	}, nil
}

// Milestones returns the configured milestones in ascending order.
func (s *StreakTracker) Milestones() []Milestone {
	return append([]Milestone(nil), s.milestones...)
}

// advanceStreak applies one login on today. It reports false when today was already counted.
func advanceStreak(st models.StreakState, today, yesterday clock.DateKey) (models.StreakState, bool) {
	switch clock.DateKey(st.LastLoginDate) {
	case today:
		return st, false
	case yesterday:
		st.CurrentStreak++
	default:
		st.CurrentStreak = 1
	}
	if st.CurrentStreak > st.BestStreak {
		st.BestStreak = st.CurrentStreak
	}
	st.LastLoginDate = today.String()
	return st, true
}

// Record counts today's login. Calling it again on the same day changes nothing.
func (s *StreakTracker) Record(ctx context.Context, userID uint) (*StreakResult, error) {
	today := s.clock.Today()
	yesterday := s.clock.Yesterday()

	var (
		res     *StreakResult
		credits []Credit
	)
	err := s.ledger.RunInTx(ctx, func(tx repository.Store) error {
		res = &StreakResult{Day: today, Milestones: []MilestoneAward{}}
		credits = credits[:0]

		st, err := s.lockStreak(ctx, tx, userID)
		if err != nil {
			return err
		}
		next, advanced := advanceStreak(*st, today, yesterday)
		res.CurrentStreak = next.CurrentStreak
		res.BestStreak = next.BestStreak
		res.Advanced = advanced
		if !advanced {
			return nil
		}
		if err := tx.SaveStreak(ctx, &next); err != nil {
			return err
		}

		for _, ms := range s.milestones {
			if ms.Days != next.CurrentStreak {
				continue
			}
			award, credit, paid, err := s.payMilestone(ctx, tx, userID, today, ms)
			if err != nil {
				return err
			}
			if paid {
				res.Milestones = append(res.Milestones, award)
				credits = append(credits, credit)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.Reward("streak", metrics.OutcomeFailed)
		s.log.Error("record streak failed", zap.Uint("user_id", userID), zap.String("day", today.String()), zap.Error(err))
		return nil, err
	}

	if !res.Advanced {
		s.metrics.Reward("streak", metrics.OutcomeNoop)
	}
	for _, m := range res.Milestones {
		s.metrics.Reward(string(m.RewardKey), metrics.OutcomeAwarded)
		s.log.Info("streak milestone reached",
			zap.Uint("user_id", userID),
			zap.Int("days", m.Days),
			zap.String("reward_key", string(m.RewardKey)),
		)
	}
	s.ledger.Publish(ctx, credits...)
	return res, nil
}

// lockStreak returns the user's streak row locked for update, creating it first if needed.
func (s *StreakTracker) lockStreak(ctx context.Context, tx repository.Store, userID uint) (*models.StreakState, error) {
	st, err := tx.GetStreak(ctx, userID)
	if err != nil || st != nil {
		return st, err
	}
	err = tx.InsertUnique(ctx, &models.StreakState{UserID: userID})
	if err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
		return nil, err
	}
	st, err = tx.GetStreak(ctx, userID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("streak row for user %d vanished", userID)
	}
	return st, nil
}

// payMilestone takes the once-ever fence for ms and pays it. paid is false when the fence was
// already taken by an earlier climb.
func (s *StreakTracker) payMilestone(ctx context.Context, tx repository.Store, userID uint, today clock.DateKey, ms Milestone) (MilestoneAward, Credit, bool, error) {
	rule, err := s.catalog.Lookup(ctx, tx, ms.Key)
	if err != nil {
		return MilestoneAward{}, Credit{}, false, err
	}
	var coins int64
	if rule != nil {
		coins = rule.CoinsAmount
	}

	err = tx.InsertUnique(ctx, &models.StreakMilestoneAward{
		UserID:        userID,
		MilestoneDays: ms.Days,
		RewardKey:     string(ms.Key),
		CoinsAwarded:  coins,
		AwardedOn:     today.String(),
	})
	if errors.Is(err, repository.ErrDuplicateKey) {
		s.metrics.Reward(string(ms.Key), metrics.OutcomeClaimed)
		return MilestoneAward{}, Credit{}, false, nil
	}
	if err != nil {
		return MilestoneAward{}, Credit{}, false, err
	}

	credit, err := s.catalog.AwardRuleInTx(ctx, tx, userID, ms.Key, rule, "")
	if err != nil {
		return MilestoneAward{}, Credit{}, false, err
	}
	award := MilestoneAward{Days: ms.Days, RewardKey: ms.Key, CoinsAwarded: credit.Amount}

	if ms.BonusScratchCard && s.bonus != nil {
		granted, err := s.bonus.IssueBonusCardInTx(ctx, tx, userID, today)
		if err != nil {
			return MilestoneAward{}, Credit{}, false, err
		}
		award.BonusCard = granted
	}
	return award, credit, true, nil
}
