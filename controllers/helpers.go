package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/rewardhub/middleware"
	"github.com/cppla/rewardhub/repository"
	"github.com/cppla/rewardhub/services"
	"github.com/cppla/rewardhub/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, v > 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0
	default:
		return 0, false
	}
}

// requireUser writes 401 and returns false when the request carries no user.
func requireUser(ctx *gin.Context) (uint, bool) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, utils.CodeUnauthorized, "unauthorized")
	}
	return userID, ok
}

// writeServiceError maps known service errors to client errors and everything else to a 500
// with failCode.
func writeServiceError(ctx *gin.Context, err error, failCode int, message string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, utils.CodeUserNotFound, "user not found")
	case errors.Is(err, services.ErrUnknownRewardKey):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeUnknownReward, "unknown reward key")
	case errors.Is(err, services.ErrUnknownActivity):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeUnknownAction, "unknown activity")
	case errors.Is(err, services.ErrInvalidRule):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeInvalidParam, err.Error())
	case errors.Is(err, services.ErrIssuanceInProgress):
		utils.Error(ctx, http.StatusConflict, utils.CodeIssuanceBusy, "scratch card issuance already running")
	default:
		utils.Logger.Error(message,
			zap.String("path", ctx.FullPath()),
			zap.String("request_id", ctx.GetString(utils.ContextRequestIDKey)),
			zap.Error(err),
		)
		utils.Error(ctx, http.StatusInternalServerError, failCode, message)
	}
}
