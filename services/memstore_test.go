package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/repository"
)

// memData is the whole fake database. Unique keys are encoded as map keys.
type memData struct {
	users       map[uint]int64
	txns        []models.CoinTransaction
	nextTxnID   uint
	rules       map[string]models.RewardRule
	claims      map[string]bool
	streaks     map[uint]models.StreakState
	milestones  map[string]models.StreakMilestoneAward
	engagements map[string]models.DailyEngagementCompletion
	activities  map[string]bool
	collections []models.ContentCollection
	cards       map[string]models.ScratchCard
}

func newMemData() *memData {
	return &memData{
		users:       map[uint]int64{},
		rules:       map[string]models.RewardRule{},
		claims:      map[string]bool{},
		streaks:     map[uint]models.StreakState{},
		milestones:  map[string]models.StreakMilestoneAward{},
		engagements: map[string]models.DailyEngagementCompletion{},
		activities:  map[string]bool{},
		cards:       map[string]models.ScratchCard{},
	}
}

// memTx is one open transaction: the row keys it has locked and how to undo its writes.
type memTx struct {
	held []string
	undo []func()
}

func (t *memTx) rollbackTo(mark int) {
	for i := len(t.undo) - 1; i >= mark; i-- {
		t.undo[i]()
	}
	t.undo = t.undo[:mark]
}

// memRoot is shared by every handle on the fake database. Transactions interleave freely; like
// Postgres, a write or SELECT ... FOR UPDATE on a row another open transaction has written waits
// for that transaction to end, and a unique insert then sees the committed row.
type memRoot struct {
	mu    sync.Mutex
	cond  *sync.Cond
	data  *memData
	locks map[string]*memTx

	// failAppend makes the next n AppendTransaction calls fail with failAppendErr.
	failAppend    int
	failAppendErr error
	// failCards, when set, is consulted before every scratch card insert.
	failCards func(cards []models.ScratchCard) error
	txCount   int
}

// memStore is an in-memory repository.Store with transaction and savepoint rollback.
type memStore struct {
	root *memRoot
	tx   *memTx
}

func newMemStore() *memStore {
	root := &memRoot{data: newMemData(), locks: map[string]*memTx{}}
	root.cond = sync.NewCond(&root.mu)
	return &memStore{root: root}
}

var _ repository.Store = (*memStore)(nil)

func memKey(parts ...interface{}) string { return fmt.Sprint(parts...) }

func (s *memStore) lock() func() {
	s.root.mu.Lock()
	return s.root.mu.Unlock
}

// rowLock takes the lock for key, waiting while another transaction holds it. Outside a
// transaction it only waits, as a single-statement write would. Callers hold root.mu.
func (s *memStore) rowLock(key string) {
	for {
		owner, ok := s.root.locks[key]
		if ok && owner != s.tx {
			s.root.cond.Wait()
			continue
		}
		if !ok && s.tx != nil {
			s.root.locks[key] = s.tx
			s.tx.held = append(s.tx.held, key)
		}
		return
	}
}

func (s *memStore) onRollback(fn func()) {
	if s.tx != nil {
		s.tx.undo = append(s.tx.undo, fn)
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if s.tx != nil {
		unlock := s.lock()
		mark := len(s.tx.undo)
		unlock()
		defer func() {
			if err != nil {
				defer s.lock()()
				s.tx.rollbackTo(mark)
			}
		}()
		return fn(s)
	}

	tx := &memTx{}
	unlock := s.lock()
	s.root.txCount++
	unlock()
	defer func() {
		defer s.lock()()
		if err != nil {
			tx.rollbackTo(0)
		}
		for _, k := range tx.held {
			delete(s.root.locks, k)
		}
		s.root.cond.Broadcast()
	}()
	return fn(&memStore{root: s.root, tx: tx})
}

func (s *memStore) GetBalance(ctx context.Context, userID uint) (int64, error) {
	defer s.lock()()
	if s.tx != nil {
		s.rowLock(memKey("user|", userID))
	}
	coins, ok := s.root.data.users[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return coins, nil
}

func (s *memStore) SetBalance(ctx context.Context, userID uint, balance int64) error {
	defer s.lock()()
	s.rowLock(memKey("user|", userID))
	old, ok := s.root.data.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	s.root.data.users[userID] = balance
	s.onRollback(func() { s.root.data.users[userID] = old })
	return nil
}

func (s *memStore) AppendTransaction(ctx context.Context, txn *models.CoinTransaction) error {
	defer s.lock()()
	if s.root.failAppend > 0 {
		s.root.failAppend--
		return s.root.failAppendErr
	}
	s.root.data.nextTxnID++
	txn.ID = s.root.data.nextTxnID
	txn.CreatedAt = time.Now()
	s.root.data.txns = append(s.root.data.txns, *txn)

	id := txn.ID
	s.onRollback(func() {
		kept := s.root.data.txns[:0]
		for _, t := range s.root.data.txns {
			if t.ID != id {
				kept = append(kept, t)
			}
		}
		s.root.data.txns = kept
	})
	return nil
}

func (s *memStore) ListTransactions(ctx context.Context, userID uint, offset, limit int) ([]models.CoinTransaction, int64, error) {
	defer s.lock()()
	var mine []models.CoinTransaction
	for i := len(s.root.data.txns) - 1; i >= 0; i-- {
		if t := s.root.data.txns[i]; t.UserID == userID {
			mine = append(mine, t)
		}
	}
	total := int64(len(mine))
	if offset >= len(mine) {
		return []models.CoinTransaction{}, total, nil
	}
	end := offset + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

func (s *memStore) GetRewardRule(ctx context.Context, k string) (*models.RewardRule, error) {
	defer s.lock()()
	r, ok := s.root.data.rules[k]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *memStore) ListRewardRules(ctx context.Context) ([]models.RewardRule, error) {
	defer s.lock()()
	out := make([]models.RewardRule, 0, len(s.root.data.rules))
	for _, r := range s.root.data.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RewardKey < out[j].RewardKey })
	return out, nil
}

func (s *memStore) UpsertRewardRule(ctx context.Context, rule *models.RewardRule) error {
	defer s.lock()()
	k := rule.RewardKey
	s.rowLock("rule|" + k)
	old, had := s.root.data.rules[k]
	rule.UpdatedAt = time.Now()
	s.root.data.rules[k] = *rule
	s.onRollback(func() {
		if had {
			s.root.data.rules[k] = old
		} else {
			delete(s.root.data.rules, k)
		}
	})
	return nil
}

// insertOnce is a unique insert: lock the key, then fail if a committed or own row holds it.
func (s *memStore) insertOnce(lockKey string, exists func() bool, put, del func()) error {
	s.rowLock(lockKey)
	if exists() {
		return repository.ErrDuplicateKey
	}
	put()
	s.onRollback(del)
	return nil
}

func (s *memStore) InsertUnique(ctx context.Context, record interface{}) error {
	defer s.lock()()
	d := s.root.data
	switch r := record.(type) {
	case *models.DailyLoginClaim:
		k := memKey(r.UserID, "|", r.ClaimDate)
		return s.insertOnce("claim|"+k,
			func() bool { return d.claims[k] },
			func() { d.claims[k] = true },
			func() { delete(d.claims, k) })
	case *models.StreakState:
		row := *r
		return s.insertOnce(memKey("streak|", r.UserID),
			func() bool { _, ok := d.streaks[row.UserID]; return ok },
			func() { d.streaks[row.UserID] = row },
			func() { delete(d.streaks, row.UserID) })
	case *models.StreakMilestoneAward:
		k := memKey(r.UserID, "|", r.MilestoneDays)
		row := *r
		return s.insertOnce("milestone|"+k,
			func() bool { _, ok := d.milestones[k]; return ok },
			func() { d.milestones[k] = row },
			func() { delete(d.milestones, k) })
	case *models.DailyEngagementCompletion:
		k := memKey(r.UserID, "|", r.CompletionDate)
		row := *r
		return s.insertOnce("engagement|"+k,
			func() bool { _, ok := d.engagements[k]; return ok },
			func() { d.engagements[k] = row },
			func() { delete(d.engagements, k) })
	case *models.ActivityCompletion:
		k := memKey(r.UserID, "|", r.ActivityDate, "|", r.Activity)
		return s.insertOnce("activity|"+k,
			func() bool { return d.activities[k] },
			func() { d.activities[k] = true },
			func() { delete(d.activities, k) })
	case *models.RewardRule:
		row := *r
		return s.insertOnce("rule|"+r.RewardKey,
			func() bool { _, ok := d.rules[row.RewardKey]; return ok },
			func() { d.rules[row.RewardKey] = row },
			func() { delete(d.rules, row.RewardKey) })
	default:
		return fmt.Errorf("memstore: unsupported record %T", record)
	}
}

func (s *memStore) GetStreak(ctx context.Context, userID uint) (*models.StreakState, error) {
	defer s.lock()()
	if s.tx != nil {
		s.rowLock(memKey("streak|", userID))
	}
	st, ok := s.root.data.streaks[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *memStore) SaveStreak(ctx context.Context, state *models.StreakState) error {
	defer s.lock()()
	s.rowLock(memKey("streak|", state.UserID))
	old, ok := s.root.data.streaks[state.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	s.root.data.streaks[state.UserID] = *state
	userID := state.UserID
	s.onRollback(func() { s.root.data.streaks[userID] = old })
	return nil
}

// uncommitted reports whether key is held by a transaction other than s. Fence rows are only
// ever locked by the transaction inserting them, so such a row is not visible yet.
func (s *memStore) uncommitted(key string) bool {
	owner, ok := s.root.locks[key]
	return ok && owner != s.tx
}

func (s *memStore) HasLoginClaim(ctx context.Context, userID uint, day string) (bool, error) {
	defer s.lock()()
	k := memKey(userID, "|", day)
	return s.root.data.claims[k] && !s.uncommitted("claim|"+k), nil
}

func (s *memStore) HasEngagementCompletion(ctx context.Context, userID uint, day string) (bool, error) {
	defer s.lock()()
	k := memKey(userID, "|", day)
	_, ok := s.root.data.engagements[k]
	return ok && !s.uncommitted("engagement|"+k), nil
}

func (s *memStore) ListActivities(ctx context.Context, userID uint, day string) ([]string, error) {
	defer s.lock()()
	var out []string
	for _, a := range RequiredActivities {
		if s.root.data.activities[memKey(userID, "|", day, "|", string(a))] {
			out = append(out, string(a))
		}
	}
	return out, nil
}

func (s *memStore) GetActiveCollection(ctx context.Context, day string) (*models.ContentCollection, error) {
	defer s.lock()()
	var best *models.ContentCollection
	for i := range s.root.data.collections {
		c := s.root.data.collections[i]
		if !c.IsActive || c.StartsOn > day || c.EndsOn < day {
			continue
		}
		if best == nil || c.StartsOn > best.StartsOn {
			best = &c
		}
	}
	return best, nil
}

func (s *memStore) ListUserIDs(ctx context.Context, afterID uint, limit int) ([]uint, error) {
	defer s.lock()()
	var ids []uint
	for id := range s.root.data.users {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *memStore) InsertScratchCards(ctx context.Context, cards []models.ScratchCard) (int64, error) {
	defer s.lock()()
	if s.root.failCards != nil {
		if err := s.root.failCards(cards); err != nil {
			return 0, err
		}
	}
	var created int64
	for _, c := range cards {
		k := memKey(c.UserID, "|", c.CardDate, "|", c.Slot)
		s.rowLock("card|" + k)
		if _, ok := s.root.data.cards[k]; ok {
			continue
		}
		s.root.data.cards[k] = c
		s.onRollback(func() { delete(s.root.data.cards, k) })
		created++
	}
	return created, nil
}

func (s *memStore) NextBonusSlot(ctx context.Context, userID uint, day string) (int, error) {
	defer s.lock()()
	maxSlot := 0
	for _, c := range s.root.data.cards {
		if c.UserID == userID && c.CardDate == day && c.Slot > maxSlot {
			maxSlot = c.Slot
		}
	}
	return maxSlot + 1, nil
}

// test helpers

func (s *memStore) seedUser(id uint, coins int64) {
	defer s.lock()()
	s.root.data.users[id] = coins
}

func (s *memStore) seedRule(k RewardKey, coins int64, active bool) {
	defer s.lock()()
	s.root.data.rules[string(k)] = models.RewardRule{
		RewardKey:   string(k),
		RewardName:  rewardDefaults[k].name,
		CoinsAmount: coins,
		IsActive:    active,
	}
}

func (s *memStore) seedCollection(c models.ContentCollection) {
	defer s.lock()()
	c.ID = uint(len(s.root.data.collections) + 1)
	s.root.data.collections = append(s.root.data.collections, c)
}

func (s *memStore) balance(id uint) int64 {
	defer s.lock()()
	return s.root.data.users[id]
}

func (s *memStore) ledgerSum(id uint) int64 {
	defer s.lock()()
	var sum int64
	for _, t := range s.root.data.txns {
		if t.UserID == id {
			sum += t.Amount
		}
	}
	return sum
}

func (s *memStore) txnsFor(id uint) []models.CoinTransaction {
	defer s.lock()()
	var out []models.CoinTransaction
	for _, t := range s.root.data.txns {
		if t.UserID == id {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) claimCount(id uint) int {
	defer s.lock()()
	n := 0
	prefix := memKey(id, "|")
	for k := range s.root.data.claims {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (s *memStore) cardsOn(day string) []models.ScratchCard {
	defer s.lock()()
	var out []models.ScratchCard
	for _, c := range s.root.data.cards {
		if c.CardDate == day {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Slot < out[j].Slot
	})
	return out
}

func (s *memStore) milestoneRows(id uint) int {
	defer s.lock()()
	n := 0
	for _, m := range s.root.data.milestones {
		if m.UserID == id {
			n++
		}
	}
	return n
}
