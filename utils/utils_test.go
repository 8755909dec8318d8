package utils

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errFlaky = errors.New("flaky")

func TestRetry_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{
		Attempts:  5,
		BaseDelay: time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, errFlaky) },
	}, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), RetryPolicy{
		Attempts:  5,
		Retryable: func(err error) bool { return errors.Is(err, errFlaky) },
	}, func(ctx context.Context, attempt int) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetry_BoundedAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{
		Attempts:  3,
		Retryable: func(error) bool { return true },
	}, func(ctx context.Context, attempt int) error {
		calls++
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, RetryPolicy{
		Attempts:  5,
		BaseDelay: time.Hour,
		Retryable: func(error) bool { return true },
	}, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.SetJSON(ctx, "rewards:rule:daily_login", map[string]int{"coins": 10}, time.Minute)
	c.SetJSON(ctx, "other:key", 1, time.Minute)

	var got map[string]int
	require.True(t, c.GetJSON(ctx, "rewards:rule:daily_login", &got))
	assert.Equal(t, 10, got["coins"])

	now = now.Add(2 * time.Minute)
	assert.False(t, c.GetJSON(ctx, "rewards:rule:daily_login", &got))

	c.SetJSON(ctx, "rewards:rule:a", 1, time.Minute)
	c.InvalidateByPrefix(ctx, "rewards:")
	var n int
	assert.False(t, c.GetJSON(ctx, "rewards:rule:a", &n))
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", 42, "alice", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = ParseToken("other-secret", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", 42, "alice", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("secret", expired)
	assert.Error(t, err)
}

func TestSanitizePlain(t *testing.T) {
	assert.Equal(t, "Daily Login Bonus", SanitizePlain(" <b>Daily Login</b> Bonus<script>alert(1)</script> "))
}

func TestRecoveryWithZap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Ginzap(zap.NewNop(), time.RFC3339, true), RecoveryWithZap(zap.NewNop(), true))
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	var body JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CodeInternal, body.Code)
}
