package media

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMutation_Deterministic(t *testing.T) {
	first := DeriveMutation("abc123")
	second := DeriveMutation("abc123")
	require.Equal(t, first, second, "same id must produce identical parameters")
}

func TestDeriveMutation_DistinctIDsDiffer(t *testing.T) {
	a := DeriveMutation("abc123")
	b := DeriveMutation("def456")
	assert.NotEqual(t, a.PitchDelta, b.PitchDelta)
}

func TestDeriveMutation_PitchDeltaBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		params := DeriveMutation(fmt.Sprintf("job-%d", i))
		assert.GreaterOrEqual(t, params.PitchDelta, -0.002)
		assert.Less(t, params.PitchDelta, 0.002)
	}
}

func TestDeriveMutation_OverlayWindow(t *testing.T) {
	for i := 0; i < 1000; i++ {
		params := DeriveMutation(fmt.Sprintf("job-%d", i))
		assert.GreaterOrEqual(t, params.OverlayFrom, 0.15)
		assert.Less(t, params.OverlayFrom, 0.35)
		assert.InDelta(t, 0.04, params.OverlayTo-params.OverlayFrom, 1e-9)
	}
}

func TestDeriveMutation_KnownJob(t *testing.T) {
	params := DeriveMutation("abc123")

	assert.GreaterOrEqual(t, params.PitchDelta, -0.002)
	assert.Less(t, params.PitchDelta, 0.002)
	assert.Equal(t, 0.005, params.Brightness)
	assert.Equal(t, 1.01, params.Contrast)
	assert.Equal(t, 1.01, params.Saturation)
	assert.Equal(t, 2, params.NoiseLevel)
}
