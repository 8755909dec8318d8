package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/rewardhub/metrics"
	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/repository"
	"github.com/cppla/rewardhub/utils"
)

const ruleCachePrefix = "rewards:rule:"

// cachedRule also caches absence so a missing rule does not hit the database on every login.
type cachedRule struct {
	Found bool              `json:"found"`
	Rule  models.RewardRule `json:"rule"`
}

// RuleView is one reward key as the admin API shows it.
type RuleView struct {
	RewardKey   RewardKey `json:"reward_key"`
	RewardName  string    `json:"reward_name"`
	CoinsAmount int64     `json:"coins_amount"`
	IsActive    bool      `json:"is_active"`
	Configured  bool      `json:"configured"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// RuleInput is an admin update for one key.
type RuleInput struct {
	RewardName  string
	CoinsAmount int64
	IsActive    bool
}

// Catalog resolves reward keys to operator-configured amounts and pays them through the ledger.
type Catalog struct {
	ledger  *Ledger
	cache   utils.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewCatalog(ledger *Ledger, cache utils.Cache, ttl time.Duration, m *metrics.Metrics, log *zap.Logger) *Catalog {
	if cache == nil {
		cache = utils.NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{ledger: ledger, cache: cache, ttl: ttl, metrics: m, log: log}
}

// Lookup returns the rule for key when it would pay something, or nil when it is absent,
// inactive or worth zero coins. q may be a transaction.
func (c *Catalog) Lookup(ctx context.Context, q repository.Store, key RewardKey) (*models.RewardRule, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRewardKey, key)
	}

	cacheKey := ruleCachePrefix + string(key)
	var cached cachedRule
	if !c.cache.GetJSON(ctx, cacheKey, &cached) {
		rule, err := q.GetRewardRule(ctx, string(key))
		if err != nil {
			return nil, err
		}
		cached = cachedRule{Found: rule != nil}
		if rule != nil {
			cached.Rule = *rule
		}
		c.cache.SetJSON(ctx, cacheKey, cached, c.ttl)
	}

	if !cached.Found || !cached.Rule.IsActive || cached.Rule.CoinsAmount <= 0 {
		return nil, nil
	}
	rule := cached.Rule
	return &rule, nil
}

// AwardByKey pays the rule for key in its own transaction and returns the coins awarded.
// A missing, inactive or zero rule returns 0 with no error and no ledger change.
func (c *Catalog) AwardByKey(ctx context.Context, userID uint, key RewardKey, customDescription string) (int64, error) {
	rule, err := c.Lookup(ctx, c.ledger.Store(), key)
	if err != nil {
		return 0, err
	}
	if rule == nil {
		c.logDisabled(userID, key)
		return 0, nil
	}

	var credit Credit
	err = c.ledger.RunInTx(ctx, func(tx repository.Store) error {
		var err error
		credit, err = c.AwardByKeyInTx(ctx, tx, userID, key, customDescription)
		return err
	})
	if err != nil {
		c.metrics.Reward("catalog", metrics.OutcomeFailed)
		return 0, err
	}
	c.ledger.Publish(ctx, credit)
	return credit.Amount, nil
}

// AwardByKeyInTx is AwardByKey inside the caller's transaction. The returned credit has a zero
// amount when the rule does not pay.
func (c *Catalog) AwardByKeyInTx(ctx context.Context, tx repository.Store, userID uint, key RewardKey, customDescription string) (Credit, error) {
	rule, err := c.Lookup(ctx, tx, key)
	if err != nil {
		return Credit{}, err
	}
	return c.AwardRuleInTx(ctx, tx, userID, key, rule, customDescription)
}

// AwardRuleInTx pays an already looked-up rule. Callers that store the amount on a fence row use
// it to keep the fence and the ledger in agreement.
func (c *Catalog) AwardRuleInTx(ctx context.Context, tx repository.Store, userID uint, key RewardKey, rule *models.RewardRule, customDescription string) (Credit, error) {
	credit := Credit{UserID: userID, Key: key}
	if rule == nil {
		c.logDisabled(userID, key)
		return credit, nil
	}

	reason := customDescription
	if reason == "" {
		reason = rule.RewardName
	}
	entry, err := c.ledger.AwardInTx(ctx, tx, userID, rule.CoinsAmount, reason, models.TransactionEarned)
	if err != nil {
		return credit, err
	}
	credit.Amount = rule.CoinsAmount
	credit.BalanceAfter = entry.BalanceAfter
	credit.Reason = reason
	return credit, nil
}

func (c *Catalog) logDisabled(userID uint, key RewardKey) {
	c.metrics.Reward(string(key), metrics.OutcomeDisabled)
	c.log.Info("reward rule missing or inactive, nothing awarded",
		zap.Uint("user_id", userID),
		zap.String("reward_key", string(key)),
	)
}

// ListRules returns every known key, merged with its stored rule when one exists.
func (c *Catalog) ListRules(ctx context.Context) ([]RuleView, error) {
	rows, err := c.ledger.Store().ListRewardRules(ctx)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]models.RewardRule, len(rows))
	for _, r := range rows {
		byKey[r.RewardKey] = r
	}

	views := make([]RuleView, 0, len(rewardDefaults))
	for _, key := range AllRewardKeys() {
		v := RuleView{RewardKey: key, RewardName: rewardDefaults[key].name}
		if r, ok := byKey[string(key)]; ok {
			v.RewardName = r.RewardName
			v.CoinsAmount = r.CoinsAmount
			v.IsActive = r.IsActive
			v.Configured = true
			v.UpdatedAt = r.UpdatedAt
		}
		views = append(views, v)
	}
	return views, nil
}

// UpsertRule creates or updates the rule for key and drops the cached copy.
func (c *Catalog) UpsertRule(ctx context.Context, key RewardKey, in RuleInput) (*models.RewardRule, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRewardKey, key)
	}
	if in.CoinsAmount < 0 {
		return nil, fmt.Errorf("%w: coins_amount must not be negative", ErrInvalidRule)
	}
	name := utils.SanitizePlain(in.RewardName)
	if name == "" {
		name = rewardDefaults[key].name
	}

	rule := &models.RewardRule{
		RewardKey:   string(key),
		RewardName:  name,
		CoinsAmount: in.CoinsAmount,
		IsActive:    in.IsActive,
	}
	if err := c.ledger.Store().UpsertRewardRule(ctx, rule); err != nil {
		return nil, err
	}
	c.cache.InvalidateByPrefix(ctx, ruleCachePrefix)
	c.log.Info("reward rule updated",
		zap.String("reward_key", string(key)),
		zap.Int64("coins_amount", rule.CoinsAmount),
		zap.Bool("is_active", rule.IsActive),
	)
	return rule, nil
}

// SeedDefaults inserts default rules for keys that have none. Existing rows are left alone.
func (c *Catalog) SeedDefaults(ctx context.Context) error {
	store := c.ledger.Store()
	for _, key := range AllRewardKeys() {
		d := rewardDefaults[key]
		err := store.InsertUnique(ctx, &models.RewardRule{
			RewardKey:   string(key),
			RewardName:  d.name,
			CoinsAmount: d.coins,
			IsActive:    true,
		})
		if err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
			return fmt.Errorf("seed rule %s: %w", key, err)
		}
	}
	c.cache.InvalidateByPrefix(ctx, ruleCachePrefix)
	return nil
}
