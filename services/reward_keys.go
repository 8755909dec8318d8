package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount      = errors.New("award amount must be positive")
	ErrUnsupportedTxType  = errors.New("only earned transactions are supported")
	ErrUnknownRewardKey   = errors.New("unknown reward key")
	ErrUnknownActivity    = errors.New("unknown activity")
	ErrInvalidRule        = errors.New("invalid reward rule")
	ErrIssuanceInProgress = errors.New("scratch card issuance already running")
)

// RewardKey names a reward the code knows how to pay. The reward_rules table only tunes the
// amount and activation of these keys; it cannot introduce new ones.
type RewardKey string

const (
	RewardDailyLogin      RewardKey = "daily_login"
	RewardStreak3Days     RewardKey = "streak_3_days"
	RewardStreak7Days     RewardKey = "streak_7_days"
	RewardStreak14Days    RewardKey = "streak_14_days"
	RewardStreak30Days    RewardKey = "streak_30_days"
	RewardEngagementBonus RewardKey = "daily_engagement_bonus"
)

type rewardDefault struct {
	name  string
	coins int64
}

// rewardDefaults seeds reward_rules for keys that have no row yet.
var rewardDefaults = map[RewardKey]rewardDefault{
	RewardDailyLogin:      {"Daily Login Bonus", 10},
	RewardStreak3Days:     {"3-Day Streak", 20},
	RewardStreak7Days:     {"7-Day Streak", 50},
	RewardStreak14Days:    {"14-Day Streak", 100},
	RewardStreak30Days:    {"30-Day Streak", 300},
	RewardEngagementBonus: {"Daily Engagement Bonus", 15},
}

// AllRewardKeys lists the keys in a stable order.
func AllRewardKeys() []RewardKey {
	return []RewardKey{
		RewardDailyLogin,
		RewardStreak3Days,
		RewardStreak7Days,
		RewardStreak14Days,
		RewardStreak30Days,
		RewardEngagementBonus,
	}
}

func (k RewardKey) Valid() bool {
	_, ok := rewardDefaults[k]
	return ok
}

func (k RewardKey) String() string { return string(k) }

// ParseRewardKey maps s onto a known key.
func ParseRewardKey(s string) (RewardKey, error) {
	k := RewardKey(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRewardKey, s)
	}
	return k, nil
}
