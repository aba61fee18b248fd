package synth

import (
	"testing"

	"github.com/YuminosukeSato/pimaml/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPimaShapeAndDeterminism(t *testing.T) {
	a := Pima(PimaConfig{Rows: 200, Seed: 7, ZeroRate: 0.05})
	b := Pima(PimaConfig{Rows: 200, Seed: 7, ZeroRate: 0.05})

	assert.Equal(t, 200, a.Rows())
	assert.Equal(t, dataset.Columns, a.Columns)
	assert.True(t, mat.Equal(a.X, b.X))
	assert.Equal(t, a.Labels, b.Labels)

	neg, pos := a.ClassCounts()
	assert.Greater(t, neg, 0)
	assert.Greater(t, pos, 0)
}

func TestPimaZerosOnlyInDesignatedColumns(t *testing.T) {
	tbl := Pima(PimaConfig{Rows: 300, Seed: 1, ZeroRate: 0.05})

	n, err := dataset.NormalizeMissing(tbl, dataset.DesignatedZeroColumns)
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	for _, name := range []string{dataset.PlasmaGlucose, dataset.BMI, dataset.Age, dataset.PedigreeFunction} {
		col, err := tbl.Column(name)
		require.NoError(t, err)
		for _, v := range col {
			assert.NotEqual(t, 0.0, v, name)
		}
	}
}

func TestBlobsBalanced(t *testing.T) {
	X, y := Blobs(100, 3, 2, 1)
	r, c := X.Dims()
	assert.Equal(t, 100, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 50.0, mat.Sum(y))
}
