package model

import (
	"testing"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStateManagerLifecycle(t *testing.T) {
	s := NewStateManager()
	err := s.RequireFitted("SVC", "Predict")
	require.Error(t, err)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	s.SetDimensions(8, 537)
	s.SetFitted()
	assert.NoError(t, s.RequireFitted("SVC", "Predict"))
	assert.NoError(t, s.CheckInput("Predict", 8))

	err = s.CheckInput("Predict", 7)
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 8, de.Expected)
	assert.Equal(t, 7, de.Got)

	s.Reset()
	assert.False(t, s.IsFitted())
	f, n := s.GetDimensions()
	assert.Zero(t, f)
	assert.Zero(t, n)
}

type constClassifier struct{ p float64 }

func (c constClassifier) Fit(X, y mat.Matrix) error { return nil }
func (c constClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	return mat.NewVecDense(r, nil), nil
}
func (c constClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, 1-c.p)
		out.Set(i, 1, c.p)
	}
	return out, nil
}

func TestPositiveScores(t *testing.T) {
	X := mat.NewDense(3, 2, nil)
	scores, err := PositiveScores(constClassifier{p: 0.25}, X)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.25, 0.25}, scores.RawVector().Data)
}
