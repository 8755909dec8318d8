package models

// All lists every model the service migrates.
func All() []interface{} {
	return []interface{}{
		&User{},
		&CoinTransaction{},
		&RewardRule{},
		&DailyLoginClaim{},
		&StreakState{},
		&StreakMilestoneAward{},
		&DailyEngagementCompletion{},
		&ActivityCompletion{},
		&ContentCollection{},
		&ScratchCard{},
	}
}
