package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeAll(t *testing.T, h *harness, userID uint) {
	t.Helper()
	for _, a := range RequiredActivities {
		_, _, err := h.activities.Mark(h.ctx, userID, a)
		require.NoError(t, err)
	}
}

func TestEngagement_NotCompleteWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.store.seedUser(1, 0)

	res, err := h.engagement.Check(h.ctx, 1, false)
	require.NoError(t, err)
	assert.False(t, res.Celebrate)
	assert.False(t, res.AllComplete)

	done, err := h.store.HasEngagementCompletion(h.ctx, 1, h.today())
	require.NoError(t, err)
	assert.False(t, done)
	assert.Zero(t, h.store.root.txCount)
}

func TestEngagement_AwardsOncePerDay(t *testing.T) {
	h := newHarness(t)
	h.store.seedUser(1, 0)

	res, err := h.engagement.Check(h.ctx, 1, true)
	require.NoError(t, err)
	assert.True(t, res.Celebrate)
	assert.Equal(t, int64(15), res.CoinsAwarded)

	for i := 0; i < 3; i++ {
		res, err = h.engagement.Check(h.ctx, 1, true)
		require.NoError(t, err)
		assert.False(t, res.Celebrate)
		assert.True(t, res.AlreadyCompleted)
	}
	assert.Equal(t, int64(15), h.store.balance(1))

	h.nextDay()
	res, err = h.engagement.Check(h.ctx, 1, true)
	require.NoError(t, err)
	assert.True(t, res.Celebrate)
	assert.Equal(t, int64(30), h.store.balance(1))
	h.assertLedgerConsistent(t, 1, 0)
}

func TestEngagement_EvaluateWithActivityTracker(t *testing.T) {
	h := newHarness(t)
	h.store.seedUser(1, 0)

	_, newlyDone, err := h.activities.Mark(h.ctx, 1, ActivityMoodCheckin)
	require.NoError(t, err)
	assert.True(t, newlyDone)
	_, newlyDone, err = h.activities.Mark(h.ctx, 1, ActivityMoodCheckin)
	require.NoError(t, err)
	assert.False(t, newlyDone)

	res, err := h.engagement.Evaluate(h.ctx, 1, h.activities)
	require.NoError(t, err)
	assert.False(t, res.AllComplete)
	assert.Zero(t, h.store.balance(1))

	completeAll(t, h, 1)
	res, err = h.engagement.Evaluate(h.ctx, 1, h.activities)
	require.NoError(t, err)
	assert.True(t, res.AllComplete)
	assert.True(t, res.Celebrate)

	// Yesterday's activities do not count today.
	h.nextDay()
	res, err = h.engagement.Evaluate(h.ctx, 1, h.activities)
	require.NoError(t, err)
	assert.False(t, res.AllComplete)
	assert.Equal(t, int64(15), h.store.balance(1))
}

func TestEngagement_DisabledRuleCelebratesWithoutCoins(t *testing.T) {
	h := newHarness(t)
	h.store.seedUser(1, 0)
	h.store.seedRule(RewardEngagementBonus, 15, false)

	res, err := h.engagement.Check(h.ctx, 1, true)
	require.NoError(t, err)
	assert.True(t, res.Celebrate)
	assert.Zero(t, res.CoinsAwarded)
	assert.Empty(t, h.store.txnsFor(1))
}

func TestParseActivity(t *testing.T) {
	a, err := ParseActivity("word_game")
	require.NoError(t, err)
	assert.Equal(t, ActivityWordGame, a)

	_, err = ParseActivity("crossword")
	require.ErrorIs(t, err, ErrUnknownActivity)
}
