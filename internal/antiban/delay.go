// Package antiban paces outbound sends so that bulk campaigns look like
// human traffic: randomized gaps between messages, periodic long cooldowns,
// a daily send quota and exponential backoff for retried attempts.
package antiban

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"bulksender/internal/models"
)

var (
	ErrMissingRange  = errors.New("custom delay preset requires a range")
	ErrInvalidRange  = errors.New("invalid delay range")
	ErrUnknownPreset = errors.New("unknown delay preset")
)

// presetRanges holds the fixed [min, max] seconds of each preset
var presetRanges = map[models.DelayPreset]models.DelayRange{
	models.DelayVeryShort: {Min: 1, Max: 3},
	models.DelayShort:     {Min: 3, Max: 7},
	models.DelayMedium:    {Min: 7, Max: 15},
	models.DelayLong:      {Min: 15, Max: 30},
	models.DelayVeryLong:  {Min: 30, Max: 60},
}

// PresetRange returns the seconds range of a fixed preset
func PresetRange(preset models.DelayPreset) (models.DelayRange, bool) {
	r, ok := presetRanges[preset]
	return r, ok
}

// ValidateSettings checks delay settings without sampling
func ValidateSettings(settings models.DelaySettings) error {
	_, _, err := rangeMillis(settings)
	return err
}

// Sample draws a uniformly distributed delay for the given settings.
// A nil rng uses the package level source, which is safe for concurrent use.
func Sample(settings models.DelaySettings, rng *rand.Rand) (time.Duration, error) {
	minMs, maxMs, err := rangeMillis(settings)
	if err != nil {
		return 0, err
	}

	ms := minMs + int63n(rng, maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond, nil
}

// rangeMillis resolves settings to an inclusive millisecond range
func rangeMillis(settings models.DelaySettings) (int64, int64, error) {
	var r models.DelayRange

	switch {
	case settings.Preset.RequiresRange():
		if settings.Custom == nil {
			return 0, 0, fmt.Errorf("%w: preset %q", ErrMissingRange, settings.Preset)
		}
		r = *settings.Custom
	default:
		preset, ok := presetRanges[settings.Preset]
		if !ok {
			return 0, 0, fmt.Errorf("%w: %q", ErrUnknownPreset, settings.Preset)
		}
		r = preset
	}

	if r.Min < 0 || r.Max < 0 || r.Min > r.Max || math.IsNaN(r.Min) || math.IsNaN(r.Max) {
		return 0, 0, fmt.Errorf("%w: min=%v max=%v", ErrInvalidRange, r.Min, r.Max)
	}

	return int64(math.Round(r.Min * 1000)), int64(math.Round(r.Max * 1000)), nil
}

func int63n(rng *rand.Rand, n int64) int64 {
	if n <= 1 {
		return 0
	}
	if rng == nil {
		return rand.Int63n(n)
	}
	return rng.Int63n(n)
}

func float64n(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}
