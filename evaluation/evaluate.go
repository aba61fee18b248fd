// Package evaluation scores the selected model of each family on the
// held-out test rows and compares it with the majority-class baseline.
package evaluation

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/metrics"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DefaultThreshold is the probability cut-off for the positive class.
const DefaultThreshold = 0.5

// FinalModel is the model a family selected by cross-validation.
type FinalModel struct {
	Family string
	Params string
	// CVAUC and CVAUCStd are the winning candidate's cross-validated scores.
	CVAUC    float64
	CVAUCStd float64
	Model    model.Classifier
}

// FamilyScore is the held-out performance of one family.
type FamilyScore struct {
	Family    string                  `json:"family"`
	Params    string                  `json:"params"`
	CVAUC     float64                 `json:"cv_auc"`
	Accuracy  float64                 `json:"accuracy"`
	TestAUC   float64                 `json:"test_auc"`
	LogLoss   float64                 `json:"log_loss"`
	Confusion metrics.ConfusionMatrix `json:"confusion"`
	// Viable is false when accuracy does not beat the majority baseline.
	Viable bool         `json:"viable"`
	ROC    *metrics.ROC `json:"-"`
}

// Baseline is the accuracy of always predicting the majority class.
type Baseline struct {
	Class    float64 `json:"class"`
	Accuracy float64 `json:"accuracy"`
}

// MajorityBaseline returns the most frequent label of y (0 on a tie) and
// the accuracy of predicting it for every row.
func MajorityBaseline(y *mat.VecDense) (Baseline, error) {
	if y == nil || y.Len() == 0 {
		return Baseline{}, errors.NewModelError("MajorityBaseline", "empty data", errors.ErrEmptyData)
	}
	pos := 0
	for i := 0; i < y.Len(); i++ {
		if y.AtVec(i) == 1 {
			pos++
		}
	}
	n := y.Len()
	if pos > n-pos {
		return Baseline{Class: 1, Accuracy: float64(pos) / float64(n)}, nil
	}
	return Baseline{Class: 0, Accuracy: float64(n-pos) / float64(n)}, nil
}

// Evaluate applies every final model to X. A row is predicted positive when
// its positive-class probability is at least threshold. Models are only
// read, never refitted.
//
// For the SVM the probability is the Platt-scaled one, so a row can be
// labelled differently here than by SVC.Predict, which uses the sign of the
// decision value.
func Evaluate(finals []FinalModel, X mat.Matrix, y *mat.VecDense, threshold float64) ([]FamilyScore, error) {
	if !(threshold > 0 && threshold < 1) {
		return nil, errors.NewConfigError("threshold", fmt.Sprintf("must be in (0, 1), got %v", threshold))
	}
	base, err := MajorityBaseline(y)
	if err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	if r != y.Len() {
		return nil, errors.NewDimensionError("evaluation.Evaluate", y.Len(), r, 0)
	}

	out := make([]FamilyScore, 0, len(finals))
	for _, f := range finals {
		scores, err := model.PositiveScores(f.Model, X)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate %s", f.Family)
		}
		pred := mat.NewVecDense(r, nil)
		for i := 0; i < r; i++ {
			if scores.AtVec(i) >= threshold {
				pred.SetVec(i, 1)
			}
		}
		cm, err := metrics.NewConfusionMatrix(y, pred)
		if err != nil {
			return nil, err
		}
		fs := FamilyScore{
			Family:    f.Family,
			Params:    f.Params,
			CVAUC:     f.CVAUC,
			Accuracy:  cm.Accuracy(),
			Confusion: cm,
		}
		fs.Viable = fs.Accuracy > base.Accuracy
		if fs.TestAUC, err = metrics.AUC(y, scores); err != nil {
			return nil, err
		}
		if fs.LogLoss, err = metrics.BinaryLogLoss(y, scores); err != nil {
			fs.LogLoss = math.NaN()
		}
		if fs.ROC, err = metrics.ROCCurve(y, scores); err != nil {
			fs.ROC = nil
		}
		out = append(out, fs)
	}
	return out, nil
}

// Best returns the index of the family with the highest accuracy. Ties go
// to the higher cross-validated AUC, then to the earlier family. It
// returns -1 for an empty slice.
func Best(scores []FamilyScore) int {
	best := -1
	for i, s := range scores {
		if best < 0 {
			best = i
			continue
		}
		b := scores[best]
		switch {
		case s.Accuracy > b.Accuracy:
			best = i
		case s.Accuracy == b.Accuracy && s.CVAUC > b.CVAUC:
			best = i
		}
	}
	return best
}
