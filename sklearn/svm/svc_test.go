package svm

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/internal/synth"
	"github.com/YuminosukeSato/pimaml/metrics"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var _ model.Classifier = (*SVC)(nil)

func TestSVCLinearSeparable(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		3, 3,
		3, 4,
		4, 3,
		4, 4,
	})
	y := mat.NewVecDense(8, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	svc := NewSVC(WithKernel("linear"), WithC(10), WithProbabilityCV(0))
	require.NoError(t, svc.Fit(X, y))

	pred, err := svc.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(y, pred.(*mat.Dense).ColView(0)))

	dec, err := svc.DecisionFunction(mat.NewDense(2, 2, []float64{-1, -1, 5, 5}))
	require.NoError(t, err)
	assert.Less(t, dec.AtVec(0), 0.0)
	assert.Greater(t, dec.AtVec(1), 0.0)

	// the margin of a hard-margin SVM touches (1,1) and (3,3)
	margin, err := svc.DecisionFunction(mat.NewDense(2, 2, []float64{1, 1, 3, 3}))
	require.NoError(t, err)
	assert.InDelta(t, -1, margin.AtVec(0), 1e-2)
	assert.InDelta(t, 1, margin.AtVec(1), 1e-2)
}

func TestSVCRBFSolvesRings(t *testing.T) {
	X, y := synth.Rings(200, 1)
	Xtest, ytest := synth.Rings(100, 2)

	svc := NewSVC(WithKernel("rbf"), WithSigma(1), WithC(1), WithRandomState(3))
	require.NoError(t, svc.Fit(X, y))
	assert.Greater(t, svc.NSupport(), 0)

	scores, err := model.PositiveScores(svc, Xtest)
	require.NoError(t, err)
	auc, err := metrics.AUC(ytest, scores)
	require.NoError(t, err)
	assert.Greater(t, auc, 0.95)

	proba, err := svc.PredictProba(Xtest)
	require.NoError(t, err)
	r, _ := proba.Dims()
	for i := 0; i < r; i++ {
		p := proba.At(i, 1)
		assert.True(t, p >= 0 && p <= 1 && !math.IsNaN(p))
		assert.InDelta(t, 1, proba.At(i, 0)+p, 1e-9)
	}

	// the linear kernel cannot rank rings
	lin := NewSVC(WithKernel("linear"), WithRandomState(3))
	require.NoError(t, lin.Fit(X, y))
	linScores, err := model.PositiveScores(lin, Xtest)
	require.NoError(t, err)
	linAUC, err := metrics.AUC(ytest, linScores)
	require.NoError(t, err)
	assert.Less(t, linAUC, auc)
}

func TestSVCProbabilityOrdersWithDecision(t *testing.T) {
	X, y := synth.Blobs(120, 3, 2, 4)
	svc := NewSVC(WithKernel("linear"), WithC(0.1), WithRandomState(1))
	require.NoError(t, svc.Fit(X, y))

	dec, err := svc.DecisionFunction(X)
	require.NoError(t, err)
	proba, err := svc.PredictProba(X)
	require.NoError(t, err)

	hi, lo := 0, 0
	for i := 1; i < dec.Len(); i++ {
		if dec.AtVec(i) > dec.AtVec(hi) {
			hi = i
		}
		if dec.AtVec(i) < dec.AtVec(lo) {
			lo = i
		}
	}
	assert.Greater(t, proba.At(hi, 1), 0.5)
	assert.Less(t, proba.At(lo, 1), 0.5)
}

func TestSVCErrors(t *testing.T) {
	X, y := synth.Blobs(20, 2, 2, 1)

	tests := []struct {
		name string
		svc  *SVC
	}{
		{"non-positive C", NewSVC(WithC(0))},
		{"bad kernel", NewSVC(WithKernel("poly"))},
		{"bad sigma", NewSVC(WithSigma(-1))},
		{"one calibration fold", NewSVC(WithProbabilityCV(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *errors.ValidationError
			assert.True(t, errors.As(tt.svc.Fit(X, y), &ve))
		})
	}

	oneClass := mat.NewVecDense(20, nil)
	assert.Error(t, NewSVC().Fit(X, oneClass))

	_, err := NewSVC().PredictProba(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestSolveSMOSatisfiesConstraints(t *testing.T) {
	X, y := synth.Blobs(40, 2, 1, 9)
	rows := matrixRows(X)
	signs := make([]float64, len(rows))
	for i := range signs {
		signs[i] = 2*y.AtVec(i) - 1
	}
	C := 0.5
	res := solveSMO(gram(RBFKernel{Sigma: 0.5}, rows), signs, C, 1e-3, 100000)
	require.True(t, res.converged)

	sum := 0.0
	for i, a := range res.alpha {
		assert.GreaterOrEqual(t, a, 0.0)
		assert.LessOrEqual(t, a, C)
		sum += a * signs[i]
	}
	assert.InDelta(t, 0, sum, 1e-9)
}
