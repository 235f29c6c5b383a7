package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextForRotation_Deterministic(t *testing.T) {
	first, err := NewRotator().NextForRotation([]string{"3", "1", "2"}, 5)
	require.NoError(t, err)

	second, err := NewRotator().NextForRotation([]string{"2", "3", "1"}, 5)
	require.NoError(t, err)

	assert.Equal(t, "3", first)
	assert.Equal(t, first, second)
}

func TestNextForRotation_DoesNotMutateInput(t *testing.T) {
	channels := []string{"c", "a", "b"}
	_, err := NewRotator().NextForRotation(channels, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, channels)
}

func TestNextForRotation_NoChannels(t *testing.T) {
	r := NewRotator()

	_, err := r.NextForRotation(nil, 0)
	assert.ErrorIs(t, err, ErrNoChannelsAvailable)
	assert.Empty(t, r.Distribution())
	assert.Equal(t, 0, r.CurrentIndex())
}

func TestNextForRotation_RoundRobin(t *testing.T) {
	r := NewRotator()
	channels := []string{"server-b", "server-a", "server-c"}

	var got []string
	for n := 0; n < 6; n++ {
		ch, err := r.NextForRotation(channels, n)
		require.NoError(t, err)
		got = append(got, ch)
	}

	assert.Equal(t, []string{"server-a", "server-b", "server-c", "server-a", "server-b", "server-c"}, got)
}

func TestDistribution_SumsToCalls(t *testing.T) {
	r := NewRotator()
	channels := []string{"a", "b", "c", "d"}

	const n = 37
	for i := 0; i < n; i++ {
		_, err := r.NextForRotation(channels, i)
		require.NoError(t, err)
	}

	total := 0
	for _, count := range r.Distribution() {
		total += count
	}
	assert.Equal(t, n, total)
	assert.Equal(t, n, r.CurrentIndex())
	assert.Equal(t, map[string]int{"a": 10, "b": 9, "c": 9, "d": 9}, r.Distribution())
}

func TestNextForSingle(t *testing.T) {
	r := NewRotator()
	for i := 0; i < 4; i++ {
		assert.Equal(t, "primary", r.NextForSingle("primary"))
	}
	assert.Equal(t, map[string]int{"primary": 4}, r.Distribution())
}

func TestDistribution_ReturnsCopy(t *testing.T) {
	r := NewRotator()
	r.NextForSingle("x")

	d := r.Distribution()
	d["x"] = 100

	assert.Equal(t, 1, r.Distribution()["x"])
}

func TestReset(t *testing.T) {
	r := NewRotator()
	r.NextForSingle("x")
	r.Reset()

	assert.Empty(t, r.Distribution())
	assert.Equal(t, 0, r.CurrentIndex())
}
