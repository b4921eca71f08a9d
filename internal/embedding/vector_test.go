package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.14159, 0, math.MaxFloat32, math.SmallestNonzeroFloat32}
	blob := Pack(vec)
	require.Len(t, blob, len(vec)*4)

	got, err := Unpack(blob)
	require.NoError(t, err)
	// Bit-for-bit: no float drift through serialisation.
	require.Len(t, got, len(vec))
	for i := range vec {
		assert.Equal(t, math.Float32bits(vec[i]), math.Float32bits(got[i]))
	}
}

func TestUnpackRejectsTruncatedBlob(t *testing.T) {
	_, err := Unpack([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestCosineNeverNaN(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func TestDimensions(t *testing.T) {
	assert.Equal(t, 1536, Dimensions("text-embedding-3-small"))
	assert.Equal(t, 3072, Dimensions("text-embedding-3-large"))
	assert.Equal(t, 0, Dimensions("unknown-model"))
}
