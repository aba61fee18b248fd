package model

import (
	"gonum.org/v1/gonum/mat"
)

// Classifier is a binary classifier that also produces a score for the
// positive class. The pipeline ranks candidates by the AUC of those scores.
type Classifier interface {
	Estimator

	// PredictProba returns an (n, 2) matrix: column 0 holds P(y=0) and
	// column 1 holds P(y=1).
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter is the interface for models that expose their
// hyperparameters, used to label grid-search candidates in logs and reports.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// Named models report a short estimator name such as "SVC".
type Named interface {
	Name() string
}

// Importancer is implemented by models that rank their input features.
type Importancer interface {
	FeatureImportances() ([]float64, error)
}

// PositiveScores extracts the positive-class column of PredictProba.
func PositiveScores(c Classifier, X mat.Matrix) (*mat.VecDense, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, cols := proba.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, proba.At(i, cols-1))
	}
	return out, nil
}
