package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVector(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(i) * 0.125
	}
	return v
}

// P4 (bit-perfect compression): decompress(compress(v)) == v for all
// fixed-width f32 vectors.
func TestCompressDecompress_RoundTrips(t *testing.T) {
	c := New()
	vec := sampleVector(64)

	ce, err := c.Compress(vec, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), ce.ID)
	assert.Equal(t, 64, ce.Dimension)

	out, err := c.Decompress(ce)
	require.NoError(t, err)
	assert.Equal(t, vec, out)
}

func TestDecompress_ChecksumMismatchIsReported(t *testing.T) {
	c := New()
	ce, err := c.Compress(sampleVector(16), 1)
	require.NoError(t, err)

	ce.Bytes[0] ^= 0xFF

	_, err = c.Decompress(ce)
	require.Error(t, err)
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint64(1), mismatch.ID)
}

func TestBatchCompressDecompress_PreservesOrder(t *testing.T) {
	c := New()
	vecs := [][]float32{sampleVector(8), sampleVector(12), sampleVector(4)}
	ids := []uint64{10, 20, 30}

	entries, err := c.BatchCompress(vecs, ids)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, ids[i], e.ID)
	}

	out, err := c.BatchDecompress(entries)
	require.NoError(t, err)
	assert.Equal(t, vecs, out)
}

func TestWithLevel_ClampsToValidRange(t *testing.T) {
	low := New(WithLevel(-5))
	high := New(WithLevel(100))

	assert.NotNil(t, low)
	assert.NotNil(t, high)

	vec := sampleVector(32)
	for _, c := range []*Codec{low, high} {
		ce, err := c.Compress(vec, 1)
		require.NoError(t, err)
		out, err := c.Decompress(ce)
		require.NoError(t, err)
		assert.Equal(t, vec, out)
	}
}

func TestTrainDictionary_NoOpBelowMinimumSamples(t *testing.T) {
	samples := make([][]float32, 2)
	for i := range samples {
		samples[i] = sampleVector(16)
	}

	dict, err := TrainDictionary(samples, 1024)
	require.NoError(t, err)
	assert.Nil(t, dict)
}

func TestTrainDictionary_BuildsUsableDictionary(t *testing.T) {
	samples := make([][]float32, 16)
	for i := range samples {
		samples[i] = sampleVector(32)
	}

	dict, err := TrainDictionary(samples, 512)
	require.NoError(t, err)
	require.NotEmpty(t, dict)
	require.LessOrEqual(t, len(dict), 512)

	c := New(WithDictionary(dict))
	vec := sampleVector(32)
	ce, err := c.Compress(vec, 1)
	require.NoError(t, err)
	out, err := c.Decompress(ce)
	require.NoError(t, err)
	assert.Equal(t, vec, out)
}
