package metrics

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestROCCurve(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{0, 0, 1, 1})
	yScore := mat.NewVecDense(4, []float64{0.1, 0.4, 0.35, 0.8})

	roc, err := ROCCurve(yTrue, yScore)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 0.5, 0.5, 1}, roc.FPR)
	assert.Equal(t, []float64{0, 0.5, 0.5, 1, 1}, roc.TPR)
	assert.True(t, math.IsInf(roc.Thresholds[0], 1))
	assert.Equal(t, []float64{0.8, 0.4, 0.35, 0.1}, roc.Thresholds[1:])

	auc, err := AUC(yTrue, yScore)
	require.NoError(t, err)
	assert.InDelta(t, auc, roc.Area(), 1e-12)
}

func TestROCCurveTiesAreOnePoint(t *testing.T) {
	yTrue := mat.NewVecDense(4, []float64{0, 1, 0, 1})
	yScore := mat.NewVecDense(4, []float64{0.5, 0.5, 0.5, 0.5})

	roc, err := ROCCurve(yTrue, yScore)
	require.NoError(t, err)
	assert.Len(t, roc.FPR, 2)
	assert.InDelta(t, 0.5, roc.Area(), 1e-12)
}

func TestROCCurveSingleClass(t *testing.T) {
	_, err := ROCCurve(mat.NewVecDense(2, []float64{1, 1}), mat.NewVecDense(2, []float64{0.2, 0.3}))
	assert.Error(t, err)
}

func TestAUCSingleClassWarns(t *testing.T) {
	var warned []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(func(error) {})

	got, err := AUC(mat.NewVecDense(3, []float64{1, 1, 1}), mat.NewVecDense(3, []float64{0.1, 0.2, 0.3}))
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
	require.Len(t, warned, 1)
	var umw *errors.UndefinedMetricWarning
	assert.True(t, errors.As(warned[0], &umw))
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := mat.NewVecDense(6, []float64{1, 1, 1, 0, 0, 0})
	yPred := mat.NewVecDense(6, []float64{1, 1, 0, 0, 0, 1})

	cm, err := NewConfusionMatrix(yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, ConfusionMatrix{TN: 2, FP: 1, FN: 1, TP: 2}, cm)
	assert.Equal(t, 6, cm.Total())
	assert.InDelta(t, 4.0/6.0, cm.Accuracy(), 1e-12)
	assert.InDelta(t, 2.0/3.0, cm.Sensitivity(), 1e-12)
	assert.InDelta(t, 2.0/3.0, cm.Specificity(), 1e-12)
	assert.InDelta(t, 2.0/3.0, cm.Precision(), 1e-12)

	_, err = NewConfusionMatrix(yTrue, mat.NewVecDense(6, []float64{2, 0, 0, 0, 0, 0}))
	assert.Error(t, err)
}
