// Package clock maps wall-clock time onto calendar days of one fixed reference timezone.
//
// Every daily fence (login claim, engagement completion, scratch card) is keyed on a DateKey from
// this package, so two requests on the same reference-zone day always agree no matter where the
// caller's device or the server process thinks it is.
package clock

import (
	"fmt"
	"time"
)

const layout = "2006-01-02"

// DateKey is a calendar date in the reference timezone, formatted YYYY-MM-DD.
type DateKey string

// Clock produces DateKeys for a fixed location. The zero value is not usable; call New.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New loads the IANA zone name. Callers treat an error as fatal: without the zone no day can be computed.
func New(tz string) (*Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// WithNow returns a copy of c reading time from fn.
func (c *Clock) WithNow(fn func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: fn}
}

func (c *Clock) Location() *time.Location { return c.loc }

// Now is the current instant expressed in the reference timezone.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

// Today is the current reference-zone calendar day.
func (c *Clock) Today() DateKey { return c.KeyOf(c.now()) }

// Yesterday is the calendar day before Today. It steps by calendar day, not 24h, so DST changes are harmless.
func (c *Clock) Yesterday() DateKey { return c.Today().AddDays(-1) }

// KeyOf returns the reference-zone day containing t.
func (c *Clock) KeyOf(t time.Time) DateKey {
	return DateKey(t.In(c.loc).Format(layout))
}

// EndOfDay is the instant the current reference-zone day ends (next local midnight).
func (c *Clock) EndOfDay() time.Time {
	n := c.Now()
	midnight := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, c.loc)
	return midnight.AddDate(0, 0, 1)
}

// UntilEndOfDay is the time left in the current reference-zone day.
func (c *Clock) UntilEndOfDay() time.Duration {
	return c.EndOfDay().Sub(c.now())
}

func (d DateKey) String() string { return string(d) }

// Parse validates the key and returns its date at midnight UTC.
func (d DateKey) Parse() (time.Time, error) {
	return time.Parse(layout, string(d))
}

// AddDays shifts the key by n calendar days. Invalid keys are returned unchanged.
func (d DateKey) AddDays(n int) DateKey {
	t, err := d.Parse()
	if err != nil {
		return d
	}
	return DateKey(t.AddDate(0, 0, n).Format(layout))
}

// Valid reports whether d is a well-formed date.
func (d DateKey) Valid() bool {
	_, err := d.Parse()
	return err == nil
}
