package limiter

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Throttle paces deletions to at most a fixed number per second, so a large
// purge does not saturate the disk backing a busy backup server.
type Throttle struct {
	limiter *rate.Limiter
	sleep   func(time.Duration)
}

// NewThrottle creates a throttle allowing perSecond operations per second.
// A value <= 0 disables throttling.
func NewThrottle(perSecond float64) *Throttle {
	t := &Throttle{sleep: time.Sleep}
	if perSecond > 0 {
		burst := int(math.Max(1, math.Floor(perSecond)))
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return t
}

// Enabled reports whether the throttle limits anything.
func (t *Throttle) Enabled() bool {
	return t != nil && t.limiter != nil
}

// Wait blocks until the next operation is allowed.
func (t *Throttle) Wait() {
	if !t.Enabled() {
		return
	}
	r := t.limiter.Reserve()
	if d := r.Delay(); d > 0 {
		t.sleep(d)
	}
}
