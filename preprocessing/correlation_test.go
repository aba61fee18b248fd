package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestHighCorrelationPairs(t *testing.T) {
	// b = 2a (r=1), c is anti-correlated with a, d is unrelated noise
	X := mat.NewDense(6, 4, []float64{
		1, 2, 6.1, 3,
		2, 4, 4.9, -1,
		3, 6, 4.2, 2,
		4, 8, 2.8, -2,
		5, 10, 2.1, 1,
		6, 12, 0.9, -3,
	})
	names := []string{"a", "b", "c", "d"}

	pairs, err := HighCorrelationPairs(X, names, DefaultCorrelationThreshold)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, CorrelatedPair{First: "a", Second: "b", R: pairs[0].R}, pairs[0])
	assert.InDelta(t, 1.0, pairs[0].R, 1e-12)
	for _, p := range pairs[1:] {
		assert.Less(t, p.R, -0.7)
	}
	assert.GreaterOrEqual(t, math.Abs(pairs[1].R), math.Abs(pairs[2].R))

	assert.Equal(t, []string{"b", "c"}, DropCorrelated(pairs))

	kept, keptNames := SelectColumns(X, names, DropCorrelated(pairs))
	_, c := kept.Dims()
	assert.Equal(t, 2, c)
	assert.Equal(t, []string{"a", "d"}, keptNames)
}

func TestHighCorrelationPairsNoneAboveThreshold(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{1, 1, 2, -1, 3, 1, 4, -1})
	pairs, err := HighCorrelationPairs(X, []string{"x", "y"}, 0.7)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestHighCorrelationPairsSingleColumn(t *testing.T) {
	pairs, err := HighCorrelationPairs(mat.NewDense(3, 1, []float64{1, 2, 3}), []string{"x"}, 0.7)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestHighCorrelationPairsErrors(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, math.NaN(), 2, 3})
	_, err := HighCorrelationPairs(X, []string{"x", "y"}, 0.7)
	assert.Error(t, err)

	_, err = HighCorrelationPairs(X, []string{"x"}, 0.7)
	assert.Error(t, err)

	_, err = HighCorrelationPairs(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), []string{"x", "y"}, 1.5)
	assert.Error(t, err)
}

func TestCorrelationMatrixDiagonal(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{1, 5, 2, 2, 3, 9, 3, 8, 1, 4, 1, 7})
	corr, err := CorrelationMatrix(X)
	require.NoError(t, err)
	for j := 0; j < 3; j++ {
		assert.InDelta(t, 1.0, corr.At(j, j), 1e-12)
	}
}

func TestHighCorrelationPairsScaleInvariant(t *testing.T) {
	X := mat.NewDense(6, 3, []float64{
		1, 20, 6.1,
		2, 41, 4.9,
		3, 59, 4.2,
		4, 83, 2.8,
		5, 99, 2.1,
		6, 122, 0.9,
	})
	names := []string{"a", "b", "c"}
	raw, err := HighCorrelationPairs(X, names, 0.7)
	require.NoError(t, err)

	Xs, err := NewStandardScalerDefault().FitTransform(X)
	require.NoError(t, err)
	scaled, err := HighCorrelationPairs(Xs, names, 0.7)
	require.NoError(t, err)

	require.Len(t, scaled, len(raw))
	for i := range raw {
		assert.Equal(t, raw[i].First, scaled[i].First)
		assert.Equal(t, raw[i].Second, scaled[i].Second)
		assert.InDelta(t, raw[i].R, scaled[i].R, 1e-9)
	}
}
