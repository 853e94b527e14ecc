package game

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// The two countdown flavors the client needs:
//
//   - deadline countdowns recompute the remaining value from the wall clock on
//     every tick, so a suspended tab resumes with the right number instead of
//     a stale one;
//   - clock countdowns start from a server-supplied "hh:mm:ss" value taken at
//     snapshot time and decrement locally, because the server never gives an
//     absolute timestamp for those.
//
// Both tick once per Interval (one second in production; tests compress it)
// and fire OnExpire at most once. A countdown never restarts itself: the
// reconciler replaces it whenever the declaring input's identity changes.

// CountdownConfig configures a countdown. Zero values fall back to a 1s tick
// and the system clock.
type CountdownConfig struct {
	Interval time.Duration
	Now      func() time.Time
	OnTick   func(remaining int)
	OnExpire func()
}

func (c CountdownConfig) withDefaults() CountdownConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Countdown is a running countdown. All methods are safe for concurrent use.
type Countdown struct {
	mu        sync.Mutex
	remaining int
	expired   bool
	stopped   bool
	cancel    context.CancelFunc
}

// StartDeadline starts a countdown toward an absolute wall-clock deadline.
func StartDeadline(deadline time.Time, cfg CountdownConfig) *Countdown {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Countdown{cancel: cancel}
	c.remaining = ticksUntil(deadline, cfg.Now(), cfg.Interval)
	c.notifyStart(cfg)
	if c.remaining > 0 {
		go c.runDeadline(ctx, deadline, cfg)
	}
	return c
}

// StartClock starts a countdown from a server-supplied clock string, reduced
// by a fixed subtraction used to line a displayed countdown up with a
// slightly earlier internal cutover.
func StartClock(initial string, subtract time.Duration, cfg CountdownConfig) (*Countdown, error) {
	d, err := ParseClockDuration(initial)
	if err != nil {
		return nil, err
	}
	return StartClockDuration(d-subtract, cfg), nil
}

// StartClockDuration is StartClock for an already-parsed duration.
func StartClockDuration(d time.Duration, cfg CountdownConfig) *Countdown {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Countdown{cancel: cancel}
	c.remaining = int(d / time.Second)
	if c.remaining < 0 {
		c.remaining = 0
	}
	c.notifyStart(cfg)
	if c.remaining > 0 {
		go c.runClock(ctx, cfg)
	}
	return c
}

// notifyStart reports the initial value and, for an already-elapsed input,
// the expiry. Both run off the caller's goroutine: countdowns are started
// from under the reconciler's lock and the callbacks take it again.
func (c *Countdown) notifyStart(cfg CountdownConfig) {
	rem := c.remaining
	go func() {
		if cfg.OnTick != nil {
			cfg.OnTick(rem)
		}
		if rem <= 0 {
			c.expireNow(cfg)
		}
	}()
}

func (c *Countdown) runDeadline(ctx context.Context, deadline time.Time, cfg CountdownConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rem := ticksUntil(deadline, cfg.Now(), cfg.Interval)
			if !c.setRemaining(rem) {
				return
			}
			if cfg.OnTick != nil {
				cfg.OnTick(rem)
			}
			if rem <= 0 {
				c.expireNow(cfg)
				return
			}
		}
	}
}

func (c *Countdown) runClock(ctx context.Context, cfg CountdownConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				return
			}
			c.remaining--
			if c.remaining < 0 {
				c.remaining = 0
			}
			rem := c.remaining
			c.mu.Unlock()
			if cfg.OnTick != nil {
				cfg.OnTick(rem)
			}
			if rem <= 0 {
				c.expireNow(cfg)
				return
			}
		}
	}
}

// setRemaining records a recomputed value; it reports false when the
// countdown was stopped in the meantime so the tick loop exits without
// invoking callbacks against stale state.
func (c *Countdown) setRemaining(rem int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	if rem < 0 {
		rem = 0
	}
	c.remaining = rem
	return true
}

func (c *Countdown) expireNow(cfg CountdownConfig) {
	c.mu.Lock()
	if c.expired || c.stopped {
		c.mu.Unlock()
		return
	}
	c.expired = true
	c.mu.Unlock()
	if cfg.OnExpire != nil {
		cfg.OnExpire()
	}
}

// Stop cancels the countdown. A stopped countdown never fires OnExpire.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cancel()
}

// Remaining returns the current display value.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the countdown ran to zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func ticksUntil(deadline, now time.Time, unit time.Duration) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + unit - 1) / unit)
}

// ParseClockDuration parses a server clock string ("hh:mm:ss" or "mm:ss",
// seconds may carry a fraction) into a duration.
func ParseClockDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("bad clock duration %q", s)
	}
	var h, m int
	var err error
	idx := 0
	if len(parts) == 3 {
		if h, err = strconv.Atoi(parts[0]); err != nil {
			return 0, fmt.Errorf("bad clock duration %q: %w", s, err)
		}
		idx = 1
	}
	if m, err = strconv.Atoi(parts[idx]); err != nil {
		return 0, fmt.Errorf("bad clock duration %q: %w", s, err)
	}
	sec, err := strconv.ParseFloat(parts[idx+1], 64)
	if err != nil {
		return 0, fmt.Errorf("bad clock duration %q: %w", s, err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), nil
}

// timerSlot ties one countdown to the identity of the server input that
// declared it. Restart replaces the countdown only when that identity
// changes; re-applying the same snapshot leaves a running timer alone.
type timerSlot struct {
	key string
	c   *Countdown
}

func (s *timerSlot) restart(key string, start func() *Countdown) {
	if s.c != nil && s.key == key {
		return
	}
	s.stop()
	s.key = key
	s.c = start()
}

func (s *timerSlot) stop() {
	if s.c != nil {
		s.c.Stop()
	}
	s.c = nil
	s.key = ""
}

func (s *timerSlot) active() bool {
	return s.c != nil && !s.c.Expired()
}
