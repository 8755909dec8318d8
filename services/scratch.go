package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/rewardhub/clock"
	"github.com/cppla/rewardhub/metrics"
	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/repository"
	"github.com/cppla/rewardhub/utils"
)

const (
	RunStatusCompleted          = "completed"
	RunStatusNoActiveCollection = "no_active_collection"
	RunStatusAborted            = "aborted"

	defaultScratchPageSize = 500
)

// RunReport summarises one issuance run. Created+Skipped+Errored == Total.
type RunReport struct {
	RunID          string        `json:"run_id"`
	Day            clock.DateKey `json:"day"`
	Status         string        `json:"status"`
	CollectionID   uint          `json:"collection_id,omitempty"`
	CollectionName string        `json:"collection_name,omitempty"`
	Total          int           `json:"total"`
	Created        int           `json:"created"`
	Skipped        int           `json:"skipped"`
	Errored        int           `json:"errored"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// ScratchIssuer gives every user one daily scratch card from the active collection.
type ScratchIssuer struct {
	store    repository.Store
	clock    *clock.Clock
	pageSize int
	retry    utils.RetryPolicy
	metrics  *metrics.Metrics
	log      *zap.Logger

	running sync.Mutex
}

func NewScratchIssuer(store repository.Store, clk *clock.Clock, pageSize int, retry utils.RetryPolicy, m *metrics.Metrics, log *zap.Logger) *ScratchIssuer {
	if pageSize <= 0 {
		pageSize = defaultScratchPageSize
	}
	if retry.Retryable == nil {
		retry.Retryable = repository.IsTransient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ScratchIssuer{store: store, clock: clk, pageSize: pageSize, retry: retry, metrics: m, log: log}
}

// Run issues today's cards. Users who already hold today's daily card are counted as skipped,
// so running twice on one day creates nothing the second time. Only one run executes at a time
// per process; a concurrent call returns ErrIssuanceInProgress.
func (s *ScratchIssuer) Run(ctx context.Context) (*RunReport, error) {
	if !s.running.TryLock() {
		return nil, ErrIssuanceInProgress
	}
	defer s.running.Unlock()

	day := s.clock.Today()
	report := &RunReport{RunID: uuid.NewString(), Day: day, StartedAt: s.clock.Now()}
	log := s.log.With(zap.String("run_id", report.RunID), zap.String("day", day.String()))

	var coll *models.ContentCollection
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		coll, err = s.store.GetActiveCollection(ctx, day.String())
		return err
	})
	if err != nil {
		return s.finish(report, RunStatusAborted, log), err
	}
	if coll == nil {
		log.Info("no active content collection, no scratch cards issued")
		return s.finish(report, RunStatusNoActiveCollection, log), nil
	}
	report.CollectionID = coll.ID
	report.CollectionName = coll.Name
	expiresAt := s.clock.EndOfDay()

	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return s.finish(report, RunStatusAborted, log), err
		}

		var ids []uint
		err := s.withRetry(ctx, func(ctx context.Context) error {
			var err error
			ids, err = s.store.ListUserIDs(ctx, afterID, s.pageSize)
			return err
		})
		if err != nil {
			return s.finish(report, RunStatusAborted, log), err
		}
		if len(ids) == 0 {
			break
		}

		cards := make([]models.ScratchCard, 0, len(ids))
		for _, id := range ids {
			cards = append(cards, models.ScratchCard{
				UserID:       id,
				CardDate:     day.String(),
				Slot:         models.DailyCardSlot,
				CollectionID: coll.ID,
				ExpiresAt:    expiresAt,
			})
		}
		s.insertPage(ctx, cards, report, log)

		report.Total += len(ids)
		afterID = ids[len(ids)-1]
		if len(ids) < s.pageSize {
			break
		}
	}
	return s.finish(report, RunStatusCompleted, log), nil
}

// insertPage inserts one page set-based. If the page fails for a reason other than duplicates,
// it falls back to one row at a time so a single bad user does not sink the rest.
func (s *ScratchIssuer) insertPage(ctx context.Context, cards []models.ScratchCard, report *RunReport, log *zap.Logger) {
	var created int64
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.store.InsertScratchCards(ctx, cards)
		return err
	})
	if err == nil {
		report.Created += int(created)
		report.Skipped += len(cards) - int(created)
		return
	}

	log.Warn("scratch card page insert failed, falling back to single rows",
		zap.Int("page_size", len(cards)),
		zap.Uint("first_user_id", cards[0].UserID),
		zap.Error(err),
	)
	for i := range cards {
		n, err := s.store.InsertScratchCards(ctx, cards[i:i+1])
		if err != nil {
			report.Errored++
			log.Error("scratch card insert failed", zap.Uint("user_id", cards[i].UserID), zap.Error(err))
			continue
		}
		report.Created += int(n)
		report.Skipped += 1 - int(n)
	}
}

func (s *ScratchIssuer) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return utils.Retry(ctx, s.retry, func(ctx context.Context, _ int) error { return fn(ctx) })
}

func (s *ScratchIssuer) finish(report *RunReport, status string, log *zap.Logger) *RunReport {
	report.Status = status
	report.FinishedAt = s.clock.Now()
	s.metrics.ScratchRun(status, report.Created, report.Skipped, report.Errored)
	log.Info("scratch card issuance finished",
		zap.String("status", status),
		zap.Uint("collection_id", report.CollectionID),
		zap.Int("total", report.Total),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("errored", report.Errored),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report
}

// IssueBonusCardInTx grants an extra card for day in the next free bonus slot. It reports false
// when no collection is active.
func (s *ScratchIssuer) IssueBonusCardInTx(ctx context.Context, tx repository.Store, userID uint, day clock.DateKey) (bool, error) {
	coll, err := tx.GetActiveCollection(ctx, day.String())
	if err != nil || coll == nil {
		return false, err
	}
	slot, err := tx.NextBonusSlot(ctx, userID, day.String())
	if err != nil {
		return false, err
	}
	n, err := tx.InsertScratchCards(ctx, []models.ScratchCard{{
		UserID:       userID,
		CardDate:     day.String(),
		Slot:         slot,
		CollectionID: coll.ID,
		IsBonusCard:  true,
		ExpiresAt:    s.clock.EndOfDay(),
	}})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
