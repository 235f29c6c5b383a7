package antiban

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"bulksender/internal/models"
)

const (
	DefaultDailyLimit           = 1000
	DefaultLongPauseIntervalMin = 20
	DefaultLongPauseIntervalMax = 60
	DefaultLongPauseDurationMin = 5 * time.Minute
	DefaultLongPauseDurationMax = 10 * time.Minute

	// MaxBackoffDelay caps the upper bound of a retried attempt's range
	MaxBackoffDelay = 10 * time.Minute

	jitterFraction = 0.10
	maxBackoffExp  = 30
)

// ErrQuotaExceeded is returned once the daily quota is used up
var ErrQuotaExceeded = errors.New("daily send quota exceeded")

// QuotaExceededError carries the quota state at the time of refusal
type QuotaExceededError struct {
	Limit int
	Sent  int
	Day   string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily send quota exceeded: %d of %d sent on %s", e.Sent, e.Limit, e.Day)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// GovernorConfig holds per campaign pacing policy. Zero values take defaults.
type GovernorConfig struct {
	DailyLimit           int
	LongPauseIntervalMin int
	LongPauseIntervalMax int
	LongPauseDurationMin time.Duration
	LongPauseDurationMax time.Duration

	// Rand is the random source; nil seeds one from the clock
	Rand *rand.Rand
	// Now is the wall clock used for daily quota renewal
	Now func() time.Time
}

// WithOverrides returns c with the non-zero fields of o applied
func (c GovernorConfig) WithOverrides(o *models.PacingOverrides) GovernorConfig {
	if o == nil {
		return c
	}
	if o.DailyLimit > 0 {
		c.DailyLimit = o.DailyLimit
	}
	if o.LongPauseEveryMin > 0 {
		c.LongPauseIntervalMin = o.LongPauseEveryMin
	}
	if o.LongPauseEveryMax > 0 {
		c.LongPauseIntervalMax = o.LongPauseEveryMax
	}
	if o.LongPauseMinSeconds > 0 {
		c.LongPauseDurationMin = time.Duration(o.LongPauseMinSeconds) * time.Second
	}
	if o.LongPauseMaxSeconds > 0 {
		c.LongPauseDurationMax = time.Duration(o.LongPauseMaxSeconds) * time.Second
	}
	return c
}

func (c GovernorConfig) withDefaults() GovernorConfig {
	if c.DailyLimit <= 0 {
		c.DailyLimit = DefaultDailyLimit
	}
	if c.LongPauseIntervalMin <= 0 && c.LongPauseIntervalMax <= 0 {
		c.LongPauseIntervalMin = DefaultLongPauseIntervalMin
		c.LongPauseIntervalMax = DefaultLongPauseIntervalMax
	}
	if c.LongPauseDurationMin <= 0 && c.LongPauseDurationMax <= 0 {
		c.LongPauseDurationMin = DefaultLongPauseDurationMin
		c.LongPauseDurationMax = DefaultLongPauseDurationMax
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Validate checks the policy ranges after defaults are applied
func (c GovernorConfig) Validate() error {
	c = c.withDefaults()
	if c.LongPauseIntervalMin <= 0 || c.LongPauseIntervalMin > c.LongPauseIntervalMax {
		return fmt.Errorf("invalid long pause interval: min=%d max=%d", c.LongPauseIntervalMin, c.LongPauseIntervalMax)
	}
	if c.LongPauseDurationMin < 0 || c.LongPauseDurationMin > c.LongPauseDurationMax {
		return fmt.Errorf("invalid long pause duration: min=%s max=%s", c.LongPauseDurationMin, c.LongPauseDurationMax)
	}
	return nil
}

// Delay is the wait computed before one send
type Delay struct {
	Base      time.Duration
	LongPause time.Duration
}

// Total is the full wait
func (d Delay) Total() time.Duration {
	return d.Base + d.LongPause
}

// GovernorSnapshot is a read-only view of the governor counters
type GovernorSnapshot struct {
	Day             string `json:"day"`
	DailyLimit      int    `json:"daily_limit"`
	SentToday       int    `json:"sent_today"`
	SentInBurst     int    `json:"sent_in_burst"`
	LastLongPauseAt int    `json:"last_long_pause_at"`
	NextLongPauseAt int    `json:"next_long_pause_at"`
}

// Governor enforces the daily quota and computes anti-ban delays.
// It is owned by a single campaign loop and is not safe for concurrent use.
type Governor struct {
	cfg GovernorConfig

	day             string
	sentToday       int
	sentInBurst     int
	lastLongPauseAt int
	nextLongPauseAt int
}

// NewGovernor creates a governor with fresh counters
func NewGovernor(cfg GovernorConfig) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Governor{cfg: cfg.withDefaults()}
	g.Reset()
	return g, nil
}

// Reset zeroes every counter and starts a new burst
func (g *Governor) Reset() {
	g.day = g.today()
	g.sentToday = 0
	g.resetBurst()
}

// ComputeDelay returns how long to wait before the next send.
// attempt > 0 applies exponential backoff for a retried message.
func (g *Governor) ComputeDelay(settings models.DelaySettings, attempt int) (Delay, error) {
	g.rollover()

	if g.sentToday >= g.cfg.DailyLimit {
		return Delay{}, &QuotaExceededError{Limit: g.cfg.DailyLimit, Sent: g.sentToday, Day: g.day}
	}

	minMs, maxMs, err := rangeMillis(settings)
	if err != nil {
		return Delay{}, err
	}
	minMs, maxMs = backoffRange(minMs, maxMs, attempt)

	delay := Delay{Base: g.gaussian(minMs, maxMs)}

	if g.sentInBurst-g.lastLongPauseAt >= g.nextLongPauseAt {
		delay.LongPause = g.longPauseDuration()
		g.resetBurst()
	}

	return delay, nil
}

// RecordSent counts one dispatched message
func (g *Governor) RecordSent() {
	g.rollover()
	g.sentToday++
	g.sentInBurst++
}

// CanSendMore reports whether today's quota has room left
func (g *Governor) CanSendMore() bool {
	return g.RemainingQuota() > 0
}

// RemainingQuota returns the sends left for today
func (g *Governor) RemainingQuota() int {
	g.rollover()
	remaining := g.cfg.DailyLimit - g.sentToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns the current counters
func (g *Governor) Snapshot() GovernorSnapshot {
	return GovernorSnapshot{
		Day:             g.day,
		DailyLimit:      g.cfg.DailyLimit,
		SentToday:       g.sentToday,
		SentInBurst:     g.sentInBurst,
		LastLongPauseAt: g.lastLongPauseAt,
		NextLongPauseAt: g.nextLongPauseAt,
	}
}

// rollover renews the daily quota when the calendar day changed.
// The burst restarts with it.
func (g *Governor) rollover() {
	if today := g.today(); today != g.day {
		g.day = today
		g.sentToday = 0
		g.resetBurst()
	}
}

func (g *Governor) resetBurst() {
	g.sentInBurst = 0
	g.lastLongPauseAt = 0
	g.nextLongPauseAt = g.cfg.LongPauseIntervalMin +
		int(int63n(g.cfg.Rand, int64(g.cfg.LongPauseIntervalMax-g.cfg.LongPauseIntervalMin+1)))
}

func (g *Governor) today() string {
	return g.cfg.Now().Format("2006-01-02")
}

func (g *Governor) longPauseDuration() time.Duration {
	span := g.cfg.LongPauseDurationMax - g.cfg.LongPauseDurationMin
	return g.cfg.LongPauseDurationMin + time.Duration(int63n(g.cfg.Rand, int64(span)+1))
}

// gaussian draws from N(mid, (max-min)/6) clamped into [min, max],
// then applies multiplicative jitter.
func (g *Governor) gaussian(minMs, maxMs int64) time.Duration {
	mean := float64(minMs+maxMs) / 2
	stdDev := float64(maxMs-minMs) / 6

	// Box-Muller; u1 is kept in (0, 1] so the log is finite
	u1 := 1 - float64n(g.cfg.Rand)
	u2 := float64n(g.cfg.Rand)
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

	value := mean + z*stdDev
	value = math.Max(float64(minMs), math.Min(float64(maxMs), value))

	jitter := 1 - jitterFraction + 2*jitterFraction*float64n(g.cfg.Rand)
	return time.Duration(math.Round(value*jitter)) * time.Millisecond
}

// backoffRange scales a range by 2^attempt, caps the upper bound and keeps min <= max
func backoffRange(minMs, maxMs int64, attempt int) (int64, int64) {
	if attempt <= 0 {
		return minMs, maxMs
	}
	if attempt > maxBackoffExp {
		attempt = maxBackoffExp
	}

	capMs := MaxBackoffDelay.Milliseconds()
	factor := int64(1) << attempt

	minMs = saturatingMul(minMs, factor)
	maxMs = saturatingMul(maxMs, factor)
	if maxMs > capMs {
		maxMs = capMs
	}
	if minMs > maxMs {
		minMs = maxMs
	}
	return minMs, maxMs
}

func saturatingMul(a, b int64) int64 {
	if a != 0 && a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}
