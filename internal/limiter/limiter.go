package limiter

import (
	"context"
	"runtime"
	"time"
)

// workSlice is how long a caller may work between throttle sleeps.
const workSlice = 10 * time.Millisecond

// CPULimiter throttles a sequential loop to roughly maxPercent of one CPU
type CPULimiter struct {
	maxPercent float64
	lastSleep  time.Time
	sleep      func(context.Context, time.Duration) error
}

// NewCPULimiter creates a new CPU limiter. 0 or 100 disables throttling.
func NewCPULimiter(maxPercent float64) *CPULimiter {
	return &CPULimiter{
		maxPercent: maxPercent,
		lastSleep:  time.Now(),
		sleep:      sleepCtx,
	}
}

// Enabled reports whether Throttle ever sleeps.
func (l *CPULimiter) Enabled() bool {
	return l != nil && l.maxPercent > 0 && l.maxPercent < 100
}

// SleepDuration is the pause taken after each work slice.
func (l *CPULimiter) SleepDuration() time.Duration {
	if !l.Enabled() {
		return 0
	}
	return time.Duration(float64(workSlice) * ((100 - l.maxPercent) / l.maxPercent))
}

// Throttle sleeps once the caller has worked for a full slice since the
// last sleep. It returns early with ctx.Err() when ctx is cancelled.
func (l *CPULimiter) Throttle(ctx context.Context) error {
	if !l.Enabled() {
		return ctx.Err()
	}

	if time.Since(l.lastSleep) > workSlice {
		if err := l.sleep(ctx, l.SleepDuration()); err != nil {
			return err
		}
		l.lastSleep = time.Now()
	}

	runtime.Gosched()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
