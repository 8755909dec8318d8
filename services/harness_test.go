package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cppla/rewardhub/clock"
	"github.com/cppla/rewardhub/metrics"
	"github.com/cppla/rewardhub/utils"
)

type earnedEvent struct {
	UserID uint
	Amount int64
	Reason string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []earnedEvent
}

func (n *recordingNotifier) CoinsEarned(ctx context.Context, userID uint, amount int64, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, earnedEvent{UserID: userID, Amount: amount, Reason: reason})
}

func (n *recordingNotifier) all() []earnedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]earnedEvent(nil), n.events...)
}

type harness struct {
	ctx      context.Context
	store    *memStore
	now      time.Time
	clock    *clock.Clock
	notifier *recordingNotifier
	metrics  *metrics.Metrics

	ledger     *Ledger
	catalog    *Catalog
	login      *DailyLogin
	streak     *StreakTracker
	activities *ActivityTracker
	engagement *Engagement
	issuer     *ScratchIssuer
	status     *StatusReader
}

var defaultMilestones = []Milestone{
	{Days: 3, Key: RewardStreak3Days},
	{Days: 7, Key: RewardStreak7Days},
	{Days: 14, Key: RewardStreak14Days},
	{Days: 30, Key: RewardStreak30Days, BonusScratchCard: true},
}

// newHarness wires every component over a fresh in-memory store. The clock starts at
// 2024-03-14 09:00 New York time; move it with h.nextDay and h.skipDays.
func newHarness(t *testing.T) *harness {
	t.Helper()
	base, err := clock.New("America/New_York")
	require.NoError(t, err)

	h := &harness{
		ctx:      context.Background(),
		store:    newMemStore(),
		notifier: &recordingNotifier{},
	}
	h.now = time.Date(2024, 3, 14, 9, 0, 0, 0, base.Location())
	h.clock = base.WithNow(func() time.Time { return h.now })

	reg := prometheus.NewRegistry()
	h.metrics = metrics.NewMetrics(reg, reg)
	log := zap.NewNop()
	retry := utils.RetryPolicy{Attempts: 3}

	h.ledger = NewLedger(h.store, h.notifier, h.metrics, log, retry)
	h.catalog = NewCatalog(h.ledger, utils.NewMemoryCache(), time.Minute, h.metrics, log)
	h.login = NewDailyLogin(h.catalog, h.ledger, h.clock, utils.NewMemoryCache(), h.metrics, log)
	h.issuer = NewScratchIssuer(h.store, h.clock, 2, retry, h.metrics, log)
	h.streak, err = NewStreakTracker(h.catalog, h.ledger, h.clock, defaultMilestones, h.issuer, h.metrics, log)
	require.NoError(t, err)
	h.activities = NewActivityTracker(h.store, h.clock, log)
	h.engagement = NewEngagement(h.catalog, h.ledger, h.clock, h.metrics, log)
	h.status = NewStatusReader(h.store, h.clock, h.activities, h.streak)

	for _, k := range AllRewardKeys() {
		h.store.seedRule(k, rewardDefaults[k].coins, true)
	}
	return h
}

func (h *harness) today() string { return h.clock.Today().String() }

func (h *harness) nextDay() { h.now = h.now.AddDate(0, 0, 1) }

func (h *harness) skipDays(n int) { h.now = h.now.AddDate(0, 0, n) }

// assertLedgerConsistent checks that the user's ledger sums to the balance and that every entry's
// balance_after matches the running total.
func (h *harness) assertLedgerConsistent(t *testing.T, userID uint, opening int64) {
	t.Helper()
	running := opening
	for _, txn := range h.store.txnsFor(userID) {
		running += txn.Amount
		require.Equal(t, running, txn.BalanceAfter, "balance_after of txn %d", txn.ID)
	}
	require.Equal(t, h.store.balance(userID), opening+h.store.ledgerSum(userID))
}
