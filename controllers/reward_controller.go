package controllers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardhub/clock"
	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/services"
	"github.com/cppla/rewardhub/utils"
)

type loginClaimer interface {
	Claim(ctx context.Context, userID uint) (*services.ClaimResult, error)
}

type streakRecorder interface {
	Record(ctx context.Context, userID uint) (*services.StreakResult, error)
}

type activityTracker interface {
	services.CompletionSource
	Mark(ctx context.Context, userID uint, activity services.Activity) (clock.DateKey, bool, error)
}

type engagementEvaluator interface {
	Evaluate(ctx context.Context, userID uint, source services.CompletionSource) (*services.EngagementResult, error)
}

type statusReader interface {
	Get(ctx context.Context, userID uint) (*services.RewardStatus, error)
}

type historyReader interface {
	History(ctx context.Context, userID uint, page, pageSize int) ([]models.CoinTransaction, int64, error)
}

// RewardController serves the member-facing reward endpoints.
type RewardController struct {
	login      loginClaimer
	streak     streakRecorder
	activities activityTracker
	engagement engagementEvaluator
	status     statusReader
	history    historyReader
}

func NewRewardController(login loginClaimer, streak streakRecorder, activities activityTracker, engagement engagementEvaluator, status statusReader, history historyReader) *RewardController {
	return &RewardController{
		login:      login,
		streak:     streak,
		activities: activities,
		engagement: engagement,
		status:     status,
		history:    history,
	}
}

// DailyLogin claims today's login reward and then advances the streak. Both steps are
// idempotent per day, so a client may simply retry after a failure.
func (r *RewardController) DailyLogin(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	claim, err := r.login.Claim(ctx.Request.Context(), userID)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeClaimFailed, "failed to claim daily login reward")
		return
	}
	streak, err := r.streak.Record(ctx.Request.Context(), userID)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeStreakFailed, "failed to record login streak")
		return
	}

	utils.Success(ctx, gin.H{
		"login":  claim,
		"streak": streak,
	})
}

// Streak advances the streak without touching the login reward.
func (r *RewardController) Streak(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	res, err := r.streak.Record(ctx.Request.Context(), userID)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeStreakFailed, "failed to record login streak")
		return
	}
	utils.Success(ctx, res)
}

// MarkActivity records one activity for today and re-evaluates the engagement bonus.
func (r *RewardController) MarkActivity(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	activity, err := services.ParseActivity(ctx.Param("activity"))
	if err != nil {
		writeServiceError(ctx, err, utils.CodeEngageFailed, "unknown activity")
		return
	}

	_, newlyDone, err := r.activities.Mark(ctx.Request.Context(), userID, activity)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeEngageFailed, "failed to record activity")
		return
	}
	res, err := r.engagement.Evaluate(ctx.Request.Context(), userID, r.activities)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeEngageFailed, "failed to check daily engagement")
		return
	}

	utils.Success(ctx, gin.H{
		"activity":   activity,
		"newly_done": newlyDone,
		"engagement": res,
	})
}

// Engagement is safe to call on every render of the daily page.
func (r *RewardController) Engagement(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	res, err := r.engagement.Evaluate(ctx.Request.Context(), userID, r.activities)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeEngageFailed, "failed to check daily engagement")
		return
	}
	utils.Success(ctx, res)
}

func (r *RewardController) Status(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	st, err := r.status.Get(ctx.Request.Context(), userID)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeStatusFailed, "failed to load reward status")
		return
	}
	utils.Success(ctx, st)
}

// Transactions lists the caller's coin ledger, newest first.
func (r *RewardController) Transactions(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	items, total, err := r.history.History(ctx.Request.Context(), userID, page, pageSize)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeLedgerFailed, "failed to list coin transactions")
		return
	}
	utils.Success(ctx, utils.Page{Items: items, Total: total, Page: page, PageSize: pageSize})
}
