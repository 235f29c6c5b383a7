package antiban

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulksender/internal/models"
)

// fakeClock is a settable wall clock
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestGovernor(t *testing.T, cfg GovernorConfig) (*Governor, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	cfg.Now = clock.Now
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}
	g, err := NewGovernor(cfg)
	require.NoError(t, err)
	return g, clock
}

func millisRange(min, max float64) models.DelaySettings {
	return models.DelaySettings{
		Preset: models.DelayCustom,
		Custom: &models.DelayRange{Min: min, Max: max},
	}
}

func TestNewGovernor_Defaults(t *testing.T) {
	g, _ := newTestGovernor(t, GovernorConfig{})

	snap := g.Snapshot()
	assert.Equal(t, DefaultDailyLimit, snap.DailyLimit)
	assert.Equal(t, 0, snap.SentToday)
	assert.GreaterOrEqual(t, snap.NextLongPauseAt, DefaultLongPauseIntervalMin)
	assert.LessOrEqual(t, snap.NextLongPauseAt, DefaultLongPauseIntervalMax)
	assert.Equal(t, DefaultDailyLimit, g.RemainingQuota())
}

func TestNewGovernor_InvalidConfig(t *testing.T) {
	_, err := NewGovernor(GovernorConfig{LongPauseIntervalMin: 10, LongPauseIntervalMax: 5})
	assert.Error(t, err)

	_, err = NewGovernor(GovernorConfig{LongPauseDurationMin: time.Minute, LongPauseDurationMax: time.Second})
	assert.Error(t, err)
}

func TestComputeDelay_BaseWithinJitteredRange(t *testing.T) {
	g, _ := newTestGovernor(t, GovernorConfig{LongPauseIntervalMin: 1000, LongPauseIntervalMax: 1000})

	for i := 0; i < 5000; i++ {
		d, err := g.ComputeDelay(millisRange(1, 5), 0)
		require.NoError(t, err)
		assert.Zero(t, d.LongPause)
		assert.GreaterOrEqual(t, d.Base, 900*time.Millisecond)
		assert.LessOrEqual(t, d.Base, 5500*time.Millisecond)
	}
}

func TestComputeDelay_NeverMutatesCounters(t *testing.T) {
	g, _ := newTestGovernor(t, GovernorConfig{})

	_, err := g.ComputeDelay(models.DelaySettings{Preset: models.DelayShort}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, g.Snapshot().SentToday)
}

func TestBackoffRange(t *testing.T) {
	tests := []struct {
		name             string
		min, max         int64
		attempt          int
		wantMin, wantMax int64
	}{
		{"no retry", 1000, 5000, 0, 1000, 5000},
		{"negative attempt", 1000, 5000, -2, 1000, 5000},
		{"third retry", 1000, 5000, 3, 8000, 40000},
		{"max capped", 100000, 200000, 2, 400000, 600000},
		{"min clamped to capped max", 200000, 300000, 3, 600000, 600000},
		{"huge attempt", 1000, 5000, 500, 600000, 600000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMin, gotMax := backoffRange(tt.min, tt.max, tt.attempt)
			assert.Equal(t, tt.wantMin, gotMin)
			assert.Equal(t, tt.wantMax, gotMax)
			assert.LessOrEqual(t, gotMin, gotMax)
			assert.LessOrEqual(t, gotMax, MaxBackoffDelay.Milliseconds())
		})
	}
}

func TestComputeDelay_BackoffRespectsCap(t *testing.T) {
	g, _ := newTestGovernor(t, GovernorConfig{LongPauseIntervalMin: 1000, LongPauseIntervalMax: 1000})
	capWithJitter := time.Duration(float64(MaxBackoffDelay) * (1 + jitterFraction))

	for i := 0; i < 2000; i++ {
		d, err := g.ComputeDelay(millisRange(1, 5), 3)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d.Base, time.Duration(float64(8*time.Second)*(1-jitterFraction)))
		assert.LessOrEqual(t, d.Base, capWithJitter)
	}

	for i := 0; i < 2000; i++ {
		d, err := g.ComputeDelay(millisRange(200, 300), 4)
		require.NoError(t, err)
		assert.LessOrEqual(t, d.Base, capWithJitter)
	}
}

func TestComputeDelay_QuotaExceeded(t *testing.T) {
	g, _ := newTestGovernor(t, GovernorConfig{DailyLimit: 5})

	for i := 0; i < 5; i++ {
		_, err := g.ComputeDelay(models.DelaySettings{Preset: models.DelayVeryShort}, 0)
		require.NoError(t, err)
		g.RecordSent()
	}

	_, err := g.ComputeDelay(models.DelaySettings{Preset: models.DelayVeryShort}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	var quotaErr *QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, 5, quotaErr.Limit)
	assert.Equal(t, 5, quotaErr.Sent)
	assert.False(t, g.CanSendMore())
	assert.Equal(t, 0, g.RemainingQuota())
}

func TestGovernor_DayRolloverRenewsQuota(t *testing.T) {
	g, clock := newTestGovernor(t, GovernorConfig{DailyLimit: 3})

	for i := 0; i < 3; i++ {
		g.RecordSent()
	}
	assert.False(t, g.CanSendMore())

	clock.now = clock.now.Add(24 * time.Hour)

	assert.True(t, g.CanSendMore())
	assert.Equal(t, 3, g.RemainingQuota())

	_, err := g.ComputeDelay(models.DelaySettings{Preset: models.DelayShort}, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, g.Snapshot().SentInBurst)
}

func TestGovernor_InvalidSettingsDoNotMutate(t *testing.T) {
	g, _ := newTestGovernor(t, GovernorConfig{})
	g.RecordSent()

	_, err := g.ComputeDelay(models.DelaySettings{Preset: models.DelayCustom}, 0)
	assert.ErrorIs(t, err, ErrMissingRange)
	assert.Equal(t, 1, g.Snapshot().SentToday)
}

func TestComputeDelay_LongPauseAfterBurst(t *testing.T) {
	g, _ := newTestGovernor(t, GovernorConfig{
		LongPauseIntervalMin: 3,
		LongPauseIntervalMax: 3,
		LongPauseDurationMin: 2 * time.Minute,
		LongPauseDurationMax: 4 * time.Minute,
	})
	settings := models.DelaySettings{Preset: models.DelayVeryShort}

	var pauses []int
	for i := 0; i < 10; i++ {
		d, err := g.ComputeDelay(settings, 0)
		require.NoError(t, err)
		if d.LongPause > 0 {
			pauses = append(pauses, i)
			assert.GreaterOrEqual(t, d.LongPause, 2*time.Minute)
			assert.LessOrEqual(t, d.LongPause, 4*time.Minute)
			assert.Equal(t, d.Base+d.LongPause, d.Total())
			assert.Equal(t, 0, g.Snapshot().SentInBurst)
		}
		g.RecordSent()
	}

	// the burst restarts after each cooldown
	assert.Equal(t, []int{3, 6, 9}, pauses)
	assert.Equal(t, 10, g.Snapshot().SentToday)
}

func TestGovernor_Reset(t *testing.T) {
	g, _ := newTestGovernor(t, GovernorConfig{DailyLimit: 2})
	g.RecordSent()
	g.RecordSent()
	require.False(t, g.CanSendMore())

	g.Reset()

	snap := g.Snapshot()
	assert.Equal(t, 0, snap.SentToday)
	assert.Equal(t, 0, snap.SentInBurst)
	assert.Equal(t, 0, snap.LastLongPauseAt)
	assert.True(t, g.CanSendMore())
}

func TestComputeDelay_ReproducibleWithSeed(t *testing.T) {
	run := func() []time.Duration {
		g, _ := newTestGovernor(t, GovernorConfig{Rand: rand.New(rand.NewSource(99))})
		out := make([]time.Duration, 0, 50)
		for i := 0; i < 50; i++ {
			d, err := g.ComputeDelay(models.DelaySettings{Preset: models.DelayMedium}, 0)
			require.NoError(t, err)
			out = append(out, d.Total())
			g.RecordSent()
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestGovernorConfig_WithOverrides(t *testing.T) {
	base := GovernorConfig{DailyLimit: 500, LongPauseIntervalMin: 10, LongPauseIntervalMax: 20}

	assert.Equal(t, base, base.WithOverrides(nil))

	merged := base.WithOverrides(&models.PacingOverrides{
		DailyLimit:          50,
		LongPauseEveryMax:   30,
		LongPauseMinSeconds: 60,
		LongPauseMaxSeconds: 90,
	})
	assert.Equal(t, 50, merged.DailyLimit)
	assert.Equal(t, 10, merged.LongPauseIntervalMin)
	assert.Equal(t, 30, merged.LongPauseIntervalMax)
	assert.Equal(t, time.Minute, merged.LongPauseDurationMin)
	assert.Equal(t, 90*time.Second, merged.LongPauseDurationMax)
	assert.Equal(t, 500, base.DailyLimit)

	g, _ := newTestGovernor(t, merged)
	assert.Equal(t, 50, g.RemainingQuota())

	_, err := NewGovernor(base.WithOverrides(&models.PacingOverrides{LongPauseEveryMin: 25}))
	assert.Error(t, err)
}
