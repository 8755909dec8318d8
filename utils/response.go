package utils

import "github.com/gin-gonic/gin"

// Business codes carried in the envelope. The first three digits mirror the HTTP status.
const (
	CodeOK             = 0
	CodeInvalidParam   = 40001
	CodeUnknownReward  = 40002
	CodeUnknownAction  = 40003
	CodeUnauthorized   = 40110
	CodeForbidden      = 40301
	CodeUserNotFound   = 40410
	CodeRouteNotFound  = 40400
	CodeIssuanceBusy   = 40901
	CodeRateLimited    = 42901
	CodeInternal       = 50000
	CodeClaimFailed    = 50030
	CodeStreakFailed   = 50031
	CodeEngageFailed   = 50032
	CodeStatusFailed   = 50033
	CodeLedgerFailed   = 50034
	CodeCatalogFailed  = 50035
	CodeIssuanceFailed = 50036
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Page wraps a paginated list.
type Page struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, 200, CodeOK, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}
