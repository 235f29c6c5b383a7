package antiban

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulksender/internal/models"
)

func TestSample_PresetsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for preset, r := range presetRanges {
		t.Run(string(preset), func(t *testing.T) {
			lo := time.Duration(r.Min*1000) * time.Millisecond
			hi := time.Duration(r.Max*1000) * time.Millisecond

			for i := 0; i < 10000; i++ {
				d, err := Sample(models.DelaySettings{Preset: preset}, rng)
				require.NoError(t, err)
				if d < lo || d > hi {
					t.Fatalf("sample %s outside [%s, %s]", d, lo, hi)
				}
				assert.Zero(t, d%time.Millisecond)
			}
		})
	}
}

func TestSample_CustomRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	settings := models.DelaySettings{
		Preset: models.DelayCustom,
		Custom: &models.DelayRange{Min: 0.5, Max: 2},
	}

	for i := 0; i < 1000; i++ {
		d, err := Sample(settings, rng)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestSample_DegenerateRange(t *testing.T) {
	settings := models.DelaySettings{
		Preset: models.DelayManual,
		Custom: &models.DelayRange{Min: 4, Max: 4},
	}

	d, err := Sample(settings, nil)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, d)
}

func TestSample_MissingRange(t *testing.T) {
	for _, preset := range []models.DelayPreset{models.DelayCustom, models.DelayManual} {
		_, err := Sample(models.DelaySettings{Preset: preset}, nil)
		assert.ErrorIs(t, err, ErrMissingRange)
	}
}

func TestSample_InvalidRange(t *testing.T) {
	tests := []models.DelayRange{
		{Min: 5, Max: 1},
		{Min: -1, Max: 1},
		{Min: 0, Max: -3},
	}

	for _, r := range tests {
		r := r
		_, err := Sample(models.DelaySettings{Preset: models.DelayCustom, Custom: &r}, nil)
		assert.ErrorIs(t, err, ErrInvalidRange, "range %+v", r)
	}
}

func TestSample_UnknownPreset(t *testing.T) {
	_, err := Sample(models.DelaySettings{Preset: "glacial"}, nil)
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestSample_ConcurrentWithSharedSource(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_, err := Sample(models.DelaySettings{Preset: models.DelayShort}, nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestValidateSettings(t *testing.T) {
	assert.NoError(t, ValidateSettings(models.DelaySettings{Preset: models.DelayMedium}))
	assert.ErrorIs(t, ValidateSettings(models.DelaySettings{Preset: models.DelayCustom}), ErrMissingRange)
}
