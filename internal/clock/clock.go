// Package clock maps wall time to simulation quarters. One quarter of game
// time elapses per QuarterDuration of real time; admins can shift the mapping
// forward with an offset to fast-forward a running game.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// DefaultEpoch anchors period 0. Changing it on a live game renumbers every
// period, so it is a constant rather than configuration.
var DefaultEpoch = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

type Clock struct {
	mu      sync.RWMutex
	epoch   time.Time
	quarter time.Duration
	offset  time.Duration
	wall    func() time.Time
}

func New(epoch time.Time, quarter time.Duration, wall func() time.Time) *Clock {
	if wall == nil {
		wall = time.Now
	}
	if quarter <= 0 {
		quarter = 24 * time.Hour
	}
	return &Clock{epoch: epoch, quarter: quarter, wall: wall}
}

// Now is the simulation's current time: wall time plus the admin offset.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wall().Add(c.offset)
}

// Period is the zero-based quarter index containing t. Times before the epoch
// map to period 0.
func (c *Clock) Period(t time.Time) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t.Before(c.epoch) {
		return 0
	}
	return int64(t.Sub(c.epoch) / c.quarter)
}

func (c *Clock) CurrentPeriod() int64 { return c.Period(c.Now()) }

func (c *Clock) PeriodStart(period int64) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch.Add(time.Duration(period) * c.quarter)
}

// Calendar maps a period onto the in-game calendar: four quarters per year,
// year and quarter both one-based.
func (c *Clock) Calendar(period int64) (year int64, quarter int) {
	if period < 0 {
		period = 0
	}
	return period/4 + 1, int(period%4) + 1
}

// AdvanceTo moves game time forward to the start of the given calendar
// quarter (year and quarter one-based, four quarters per year). Targets at
// or before the current game time are rejected.
func (c *Clock) AdvanceTo(year int64, quarter int) (time.Duration, error) {
	if year < 1 || quarter < 1 || quarter > 4 {
		return 0, fmt.Errorf("target must be year >= 1, quarter 1..4")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	period := (year-1)*4 + int64(quarter-1)
	target := c.epoch.Add(time.Duration(period) * c.quarter)
	now := c.wall().Add(c.offset)
	if !target.After(now) {
		return 0, fmt.Errorf("game time never runs backwards: now %s, target %s",
			now.Format(time.RFC3339), target.Format(time.RFC3339))
	}
	c.offset += target.Sub(now)
	return c.offset, nil
}

// Advance adds d to the offset. Negative values are rejected so game time
// never runs backwards under anyone's feet.
func (c *Clock) Advance(d time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.offset += d
	}
	return c.offset
}

func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}
