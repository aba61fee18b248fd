// Package svm implements a binary C-support vector classifier trained by
// SMO, with linear and radial basis kernels and Platt-scaled probabilities.
package svm

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"github.com/YuminosukeSato/pimaml/sklearn/linear_model"
	"github.com/YuminosukeSato/pimaml/sklearn/model_selection"
	"gonum.org/v1/gonum/mat"
)

// SVC is a binary support vector classifier. Labels are 0 and 1; 1 is the
// positive class of DecisionFunction and PredictProba column 1.
type SVC struct {
	state *model.StateManager

	kernel      string
	C           float64
	sigma       float64
	tol         float64
	maxIter     int
	plattFolds  int
	randomState uint64

	k         Kernel
	supports  [][]float64
	dualCoef  []float64 // α_i y_i
	rho       float64
	platt     *linear_model.LogisticRegression
	nIter_    int
	converged bool
}

// Option configures an SVC.
type Option func(*SVC)

// WithKernel selects "linear" or "rbf" (default).
func WithKernel(k string) Option { return func(s *SVC) { s.kernel = k } }

// WithC sets the box constraint (default 1).
func WithC(c float64) Option { return func(s *SVC) { s.C = c } }

// WithSigma sets the inverse width of the rbf kernel (default 0.1).
func WithSigma(sigma float64) Option { return func(s *SVC) { s.sigma = sigma } }

// WithTol sets the stopping tolerance on the KKT violation (default 1e-3).
func WithTol(tol float64) Option { return func(s *SVC) { s.tol = tol } }

// WithMaxIter caps SMO iterations; 0 means max(100000, 100n).
func WithMaxIter(n int) Option { return func(s *SVC) { s.maxIter = n } }

// WithProbabilityCV sets the folds used to collect out-of-fold decision
// values for Platt scaling (default 5). 0 calibrates on the training
// decision values.
func WithProbabilityCV(k int) Option { return func(s *SVC) { s.plattFolds = k } }

// WithRandomState seeds the calibration folds.
func WithRandomState(seed uint64) Option { return func(s *SVC) { s.randomState = seed } }

// NewSVC creates a classifier.
func NewSVC(opts ...Option) *SVC {
	s := &SVC{
		state:      model.NewStateManager(),
		kernel:     "rbf",
		C:          1,
		sigma:      0.1,
		tol:        1e-3,
		plattFolds: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements model.Named.
func (s *SVC) Name() string { return "SVC" }

func (s *SVC) validate() error {
	if !(s.C > 0) {
		return errors.NewValidationError("C", "must be positive", s.C)
	}
	if !(s.tol > 0) {
		return errors.NewValidationError("tol", "must be positive", s.tol)
	}
	if s.plattFolds < 0 || s.plattFolds == 1 {
		return errors.NewValidationError("probability_cv", "must be 0 or at least 2", s.plattFolds)
	}
	switch s.kernel {
	case "linear":
		s.k = LinearKernel{}
	case "rbf":
		if !(s.sigma > 0) {
			return errors.NewValidationError("sigma", "must be positive", s.sigma)
		}
		s.k = RBFKernel{Sigma: s.sigma}
	default:
		return errors.NewValidationError("kernel", "must be linear or rbf", s.kernel)
	}
	return nil
}

// Fit solves the dual problem and calibrates probabilities.
func (s *SVC) Fit(X, y mat.Matrix) error {
	if err := s.validate(); err != nil {
		return err
	}
	n, p := X.Dims()
	ry, _ := y.Dims()
	if n == 0 {
		return errors.NewModelError("SVC.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != n {
		return errors.NewDimensionError("SVC.Fit", n, ry, 0)
	}
	rows := matrixRows(X)
	signs := make([]float64, n)
	labels := mat.NewVecDense(n, nil)
	nPos := 0
	for i := 0; i < n; i++ {
		switch y.At(i, 0) {
		case 1:
			signs[i] = 1
			labels.SetVec(i, 1)
			nPos++
		case 0:
			signs[i] = -1
		default:
			return errors.NewValueError("SVC.Fit", "labels must be 0 or 1")
		}
		for _, v := range rows[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValueError("SVC.Fit", "X contains NaN or Inf")
			}
		}
	}
	if nPos == 0 || nPos == n {
		return errors.NewValueError("SVC.Fit", "both classes must be present")
	}

	s.train(rows, signs)
	if !s.converged {
		errors.Warn(errors.NewConvergenceWarning("SVC", s.nIter_,
			fmt.Sprintf("SMO stopped before reaching tol=%g", s.tol)))
	}

	dec, err := s.calibrationScores(rows, signs, labels)
	if err != nil {
		return err
	}
	platt := linear_model.NewLogisticRegression(
		linear_model.WithLRPenalty("none"),
		linear_model.WithLRTargetSmoothing(true),
	)
	if err := platt.Fit(mat.NewDense(n, 1, dec), labels); err != nil {
		return errors.Wrap(err, "SVC: Platt scaling")
	}
	s.platt = platt

	s.state.SetDimensions(p, n)
	s.state.SetFitted()
	log.GetLoggerWithName("svm").Debug("SVC fitted",
		log.HyperParamsKey, fmt.Sprintf("{kernel=%s, C=%g, sigma=%g}", s.kernel, s.C, s.sigma),
		log.IterationKey, s.nIter_,
		"svm.n_support", len(s.supports),
	)
	return nil
}

// train runs SMO and keeps the support vectors.
func (s *SVC) train(rows [][]float64, signs []float64) {
	n := len(rows)
	maxIter := s.maxIter
	if maxIter <= 0 {
		maxIter = max(100000, 100*n)
	}
	res := solveSMO(gram(s.k, rows), signs, s.C, s.tol, maxIter)

	s.supports = s.supports[:0]
	s.dualCoef = s.dualCoef[:0]
	for i, a := range res.alpha {
		if a > 0 {
			s.supports = append(s.supports, rows[i])
			s.dualCoef = append(s.dualCoef, a*signs[i])
		}
	}
	s.rho = res.rho
	s.nIter_ = res.iter
	s.converged = res.converged
}

func (s *SVC) decision(x []float64) float64 {
	f := -s.rho
	for i, sv := range s.supports {
		f += s.dualCoef[i] * s.k.Eval(sv, x)
	}
	return f
}

// calibrationScores returns out-of-fold decision values, or the training
// decision values when cross-validation is off or a fold lacks a class.
func (s *SVC) calibrationScores(rows [][]float64, signs []float64, labels *mat.VecDense) ([]float64, error) {
	n := len(rows)
	inSample := func() []float64 {
		dec := make([]float64, n)
		for i, r := range rows {
			dec[i] = s.decision(r)
		}
		return dec
	}
	if s.plattFolds == 0 || n < 2*s.plattFolds {
		return inSample(), nil
	}
	folds, err := model_selection.NewStratifiedKFold(s.plattFolds, true, s.randomState).Split(labels)
	if err != nil {
		return nil, err
	}
	dec := make([]float64, n)
	for _, f := range folds {
		trainRows := make([][]float64, len(f.Train))
		trainSigns := make([]float64, len(f.Train))
		pos := 0
		for a, i := range f.Train {
			trainRows[a] = rows[i]
			trainSigns[a] = signs[i]
			if signs[i] > 0 {
				pos++
			}
		}
		if pos == 0 || pos == len(f.Train) {
			return inSample(), nil
		}
		sub := &SVC{kernel: s.kernel, C: s.C, sigma: s.sigma, tol: s.tol, maxIter: s.maxIter, k: s.k}
		sub.train(trainRows, trainSigns)
		for _, i := range f.Test {
			dec[i] = sub.decision(rows[i])
		}
	}
	return dec, nil
}

func (s *SVC) check(X mat.Matrix, method string) error {
	if err := s.state.RequireFitted(s.Name(), method); err != nil {
		return err
	}
	_, c := X.Dims()
	return s.state.CheckInput("SVC."+method, c)
}

// DecisionFunction returns Σ α_i y_i k(x_i, x) − ρ for each row.
func (s *SVC) DecisionFunction(X mat.Matrix) (*mat.VecDense, error) {
	if err := s.check(X, "DecisionFunction"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	out := mat.NewVecDense(r, nil)
	x := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(x, i, X)
		out.SetVec(i, s.decision(x))
	}
	return out, nil
}

// Predict returns 1 where the decision value is positive, else 0.
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	dec, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(dec.Len(), 1, nil)
	for i := 0; i < dec.Len(); i++ {
		if dec.AtVec(i) > 0 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// PredictProba maps decision values through the fitted Platt sigmoid.
func (s *SVC) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	dec, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	return s.platt.PredictProba(mat.NewDense(dec.Len(), 1, dec.RawVector().Data))
}

// NSupport returns the number of support vectors.
func (s *SVC) NSupport() int { return len(s.supports) }

// NIter returns the SMO iterations of the final fit.
func (s *SVC) NIter() int { return s.nIter_ }

// IsFitted reports whether Fit has completed.
func (s *SVC) IsFitted() bool { return s.state.IsFitted() }

// GetParams returns the classifier settings.
func (s *SVC) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"kernel":         s.kernel,
		"C":              s.C,
		"sigma":          s.sigma,
		"tol":            s.tol,
		"max_iter":       s.maxIter,
		"probability_cv": s.plattFolds,
		"random_state":   s.randomState,
	}
}
