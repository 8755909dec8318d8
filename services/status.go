package services

import (
	"context"

	"github.com/cppla/rewardhub/clock"
	"github.com/cppla/rewardhub/repository"
)

// RewardStatus is what the rewards page shows for the current reference day.
type RewardStatus struct {
	Day                 clock.DateKey `json:"day"`
	Balance             int64         `json:"balance"`
	CurrentStreak       int           `json:"current_streak"`
	BestStreak          int           `json:"best_streak"`
	LastLoginDate       string        `json:"last_login_date,omitempty"`
	LoginClaimed        bool          `json:"login_claimed"`
	EngagementCompleted bool          `json:"engagement_completed"`
	ActivitiesDone      []Activity    `json:"activities_done"`
	ActivitiesRequired  []Activity    `json:"activities_required"`
	NextMilestone       int           `json:"next_milestone,omitempty"`
	SecondsUntilReset   int64         `json:"seconds_until_reset"`
}

// StatusReader assembles RewardStatus from plain reads. It never writes.
type StatusReader struct {
	store      repository.Store
	clock      *clock.Clock
	activities *ActivityTracker
	streaks    *StreakTracker
}

func NewStatusReader(store repository.Store, clk *clock.Clock, activities *ActivityTracker, streaks *StreakTracker) *StatusReader {
	return &StatusReader{store: store, clock: clk, activities: activities, streaks: streaks}
}

func (r *StatusReader) Get(ctx context.Context, userID uint) (*RewardStatus, error) {
	today := r.clock.Today()
	st := &RewardStatus{
		Day:                today,
		ActivitiesRequired: RequiredActivities,
		SecondsUntilReset:  int64(r.clock.UntilEndOfDay().Seconds()),
	}

	balance, err := r.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	st.Balance = balance

	streak, err := r.store.GetStreak(ctx, userID)
	if err != nil {
		return nil, err
	}
	if streak != nil {
		st.BestStreak = streak.BestStreak
		st.LastLoginDate = streak.LastLoginDate
		// A streak whose last day is older than yesterday is already broken.
		last := clock.DateKey(streak.LastLoginDate)
		if last == today || last == r.clock.Yesterday() {
			st.CurrentStreak = streak.CurrentStreak
		}
	}
	if r.streaks != nil {
		for _, m := range r.streaks.Milestones() {
			if m.Days > st.CurrentStreak {
				st.NextMilestone = m.Days
				break
			}
		}
	}

	if st.LoginClaimed, err = r.store.HasLoginClaim(ctx, userID, today.String()); err != nil {
		return nil, err
	}
	if st.EngagementCompleted, err = r.store.HasEngagementCompletion(ctx, userID, today.String()); err != nil {
		return nil, err
	}
	if st.ActivitiesDone, err = r.activities.Completed(ctx, userID, today); err != nil {
		return nil, err
	}
	return st, nil
}
