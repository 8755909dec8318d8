package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardhub/models"
	"github.com/cppla/rewardhub/services"
	"github.com/cppla/rewardhub/utils"
)

type ruleCatalog interface {
	ListRules(ctx context.Context) ([]services.RuleView, error)
	UpsertRule(ctx context.Context, key services.RewardKey, in services.RuleInput) (*models.RewardRule, error)
}

type scratchRunner interface {
	Run(ctx context.Context) (*services.RunReport, error)
}

// AdminController manages reward rules and the scratch-card batch.
type AdminController struct {
	catalog    ruleCatalog
	scratch    scratchRunner
	runTimeout time.Duration
}

// NewAdminController bounds a manually triggered batch by runTimeout, 30 minutes when <= 0.
func NewAdminController(catalog ruleCatalog, scratch scratchRunner, runTimeout time.Duration) *AdminController {
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	return &AdminController{catalog: catalog, scratch: scratch, runTimeout: runTimeout}
}

type upsertRuleRequest struct {
	RewardName  string `json:"reward_name" binding:"max=100"`
	CoinsAmount *int64 `json:"coins_amount" binding:"required,gte=0"`
	IsActive    *bool  `json:"is_active" binding:"required"`
}

// ListRules returns every known reward key, including ones with no stored rule yet.
func (a *AdminController) ListRules(ctx *gin.Context) {
	rules, err := a.catalog.ListRules(ctx.Request.Context())
	if err != nil {
		writeServiceError(ctx, err, utils.CodeCatalogFailed, "failed to list reward rules")
		return
	}
	utils.Success(ctx, rules)
}

func (a *AdminController) UpsertRule(ctx *gin.Context) {
	key, err := services.ParseRewardKey(ctx.Param("key"))
	if err != nil {
		writeServiceError(ctx, err, utils.CodeCatalogFailed, "unknown reward key")
		return
	}

	var req upsertRuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeInvalidParam, "invalid reward rule")
		return
	}

	rule, err := a.catalog.UpsertRule(ctx.Request.Context(), key, services.RuleInput{
		RewardName:  req.RewardName,
		CoinsAmount: *req.CoinsAmount,
		IsActive:    *req.IsActive,
	})
	if err != nil {
		writeServiceError(ctx, err, utils.CodeCatalogFailed, "failed to save reward rule")
		return
	}
	utils.Success(ctx, rule)
}

// IssueScratchCards runs the daily batch now. It is safe to repeat on the same day. The batch is
// detached from the request, so an admin closing the tab does not abort it halfway.
func (a *AdminController) IssueScratchCards(ctx *gin.Context) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx.Request.Context()), a.runTimeout)
	defer cancel()

	report, err := a.scratch.Run(runCtx)
	if err != nil {
		writeServiceError(ctx, err, utils.CodeIssuanceFailed, "scratch card issuance failed")
		return
	}
	utils.Success(ctx, report)
}
