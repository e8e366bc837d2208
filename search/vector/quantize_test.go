package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantizeRoundTripIsApproximate(t *testing.T) {
	v := []float32{0.5, -0.25, 1.0, -1.0}
	q := quantize(v)
	back := dequantize(q)
	for i := range v {
		assert.InDelta(t, v[i], back[i], 0.01)
	}
}

func TestCosineSimilarityIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonalIsZero(t *testing.T) {
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarityZeroVectorIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
