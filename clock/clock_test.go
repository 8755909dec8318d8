package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestToday_ReferenceZoneBoundary(t *testing.T) {
	c, err := New("America/New_York")
	require.NoError(t, err)
	ny := c.Location()

	before := time.Date(2024, 3, 14, 23, 59, 59, 0, ny)
	after := before.Add(2 * time.Second)

	assert.Equal(t, DateKey("2024-03-14"), c.WithNow(fixed(before)).Today())
	assert.Equal(t, DateKey("2024-03-15"), c.WithNow(fixed(after)).Today())
}

func TestToday_IgnoresCallerZone(t *testing.T) {
	c, err := New("America/New_York")
	require.NoError(t, err)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 10:00 on the 15th in Tokyo is still the 14th in New York.
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, tokyo)
	assert.Equal(t, DateKey("2024-03-14"), c.WithNow(fixed(now)).Today())
	assert.Equal(t, DateKey("2024-03-14"), c.WithNow(fixed(now.UTC())).Today())
}

func TestToday_StableWithinDay(t *testing.T) {
	c, err := New("Europe/Berlin")
	require.NoError(t, err)
	berlin := c.Location()

	morning := c.WithNow(fixed(time.Date(2024, 6, 1, 0, 0, 1, 0, berlin))).Today()
	night := c.WithNow(fixed(time.Date(2024, 6, 1, 23, 59, 58, 0, berlin))).Today()
	assert.Equal(t, morning, night)
}

func TestYesterday_AcrossDST(t *testing.T) {
	c, err := New("America/New_York")
	require.NoError(t, err)

	// 2024-03-10 is 23 hours long in New York.
	now := time.Date(2024, 3, 11, 0, 30, 0, 0, c.Location())
	cc := c.WithNow(fixed(now))
	assert.Equal(t, DateKey("2024-03-11"), cc.Today())
	assert.Equal(t, DateKey("2024-03-10"), cc.Yesterday())
}

func TestEndOfDay(t *testing.T) {
	c, err := New("UTC")
	require.NoError(t, err)

	now := time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC)
	cc := c.WithNow(fixed(now))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), cc.EndOfDay().UTC())
	assert.Equal(t, 6*time.Hour, cc.UntilEndOfDay())
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, DateKey("2024-03-01"), DateKey("2024-02-29").AddDays(1))
	assert.Equal(t, DateKey("2023-12-31"), DateKey("2024-01-01").AddDays(-1))
	assert.True(t, DateKey("2024-02-29").Valid())
	assert.False(t, DateKey("2023-02-29").Valid())
	assert.Equal(t, DateKey("garbage"), DateKey("garbage").AddDays(3))
}

func TestNew_BadZone(t *testing.T) {
	_, err := New("Mars/Olympus_Mons")
	require.Error(t, err)
}
