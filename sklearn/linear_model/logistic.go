// Package linear_model provides binary logistic regression. The SVM uses it
// to calibrate decision values into probabilities (Platt scaling).
package linear_model

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// LogisticRegression implements binary logistic regression.
// Labels are 0 and 1; PredictProba column 1 is P(y=1).
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty         string  // Regularization: "l2" or "none"
	C               float64 // Inverse regularization strength (1/alpha)
	fitIntercept    bool    // Whether to fit intercept
	solver          string  // Solver: "newton" or "gd"
	maxIter         int     // Maximum iterations
	tol             float64 // Tolerance for stopping
	targetSmoothing bool    // Platt's prior-corrected targets instead of 0/1

	// Model parameters
	coef_      []float64
	intercept_ float64
	nIter_     int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		solver:       "newton",
		maxIter:      100,
		tol:          1e-6,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRSolver sets the optimization solver ("newton" or "gd").
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.solver = solver
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRTargetSmoothing replaces the 0/1 targets with
// (N₊+1)/(N₊+2) and 1/(N₋+2) as in Platt (1999).
func WithLRTargetSmoothing(on bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.targetSmoothing = on
	}
}

func (lr *LogisticRegression) validate() error {
	switch lr.penalty {
	case "l2":
		if lr.C <= 0 {
			return errors.NewValidationError("C", "must be positive", lr.C)
		}
	case "none":
	default:
		return errors.NewValidationError("penalty", "must be l2 or none", lr.penalty)
	}
	if lr.solver != "newton" && lr.solver != "gd" {
		return errors.NewValidationError("solver", "must be newton or gd", lr.solver)
	}
	if lr.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "must be positive", lr.maxIter)
	}
	return nil
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if nSamples == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LogisticRegression.Fit", "y must be a column vector")
	}

	targets, err := lr.targets(y, nSamples)
	if err != nil {
		return err
	}

	lr.coef_ = make([]float64, nFeatures)
	lr.intercept_ = 0
	if lr.solver == "newton" {
		err = lr.fitNewton(X, targets)
	} else {
		err = lr.fitGradientDescent(X, targets)
	}
	if err != nil {
		return err
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

// targets converts 0/1 labels into regression targets.
func (lr *LogisticRegression) targets(y mat.Matrix, n int) ([]float64, error) {
	t := make([]float64, n)
	var nPos, nNeg float64
	for i := 0; i < n; i++ {
		switch y.At(i, 0) {
		case 1:
			t[i] = 1
			nPos++
		case 0:
			nNeg++
		default:
			return nil, errors.NewValueError("LogisticRegression.Fit", "labels must be 0 or 1")
		}
	}
	if lr.targetSmoothing {
		hi := (nPos + 1) / (nPos + 2)
		lo := 1 / (nNeg + 2)
		for i := range t {
			if t[i] == 1 {
				t[i] = hi
			} else {
				t[i] = lo
			}
		}
	}
	return t, nil
}

func (lr *LogisticRegression) lambda() float64 {
	if lr.penalty == "l2" {
		return 1.0 / lr.C
	}
	return 0
}

// fitNewton minimises the negative log-likelihood by Newton-Raphson
// (iteratively reweighted least squares).
func (lr *LogisticRegression) fitNewton(X mat.Matrix, t []float64) error {
	n, p := X.Dims()
	offset := 0
	if lr.fitIntercept {
		offset = 1
	}
	k := p + offset
	w := make([]float64, k)
	lambda := lr.lambda()

	row := func(i, j int) float64 {
		if offset == 1 && j == 0 {
			return 1
		}
		return X.At(i, j-offset)
	}

	grad := mat.NewVecDense(k, nil)
	hess := mat.NewSymDense(k, nil)
	for iter := 0; iter < lr.maxIter; iter++ {
		grad.Zero()
		hess.Zero()
		for i := 0; i < n; i++ {
			z := 0.0
			for j := 0; j < k; j++ {
				z += row(i, j) * w[j]
			}
			pr := errors.Sigmoid(z)
			r := pr - t[i]
			s := pr * (1 - pr)
			for a := 0; a < k; a++ {
				xa := row(i, a)
				grad.SetVec(a, grad.AtVec(a)+r*xa)
				for b := a; b < k; b++ {
					hess.SetSym(a, b, hess.At(a, b)+s*xa*row(i, b))
				}
			}
		}
		for j := offset; j < k; j++ {
			grad.SetVec(j, grad.AtVec(j)+lambda*w[j])
			hess.SetSym(j, j, hess.At(j, j)+lambda)
		}
		// 分離可能なデータでもヘッセ行列を正定値に保つ
		for j := 0; j < k; j++ {
			hess.SetSym(j, j, hess.At(j, j)+1e-10)
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			return errors.NewModelError("LogisticRegression.Fit", "singular hessian", errors.ErrSingularMatrix)
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, grad); err != nil {
			return errors.NewModelError("LogisticRegression.Fit", "singular hessian", errors.ErrSingularMatrix)
		}

		maxStep := 0.0
		for j := 0; j < k; j++ {
			w[j] -= step.AtVec(j)
			maxStep = math.Max(maxStep, math.Abs(step.AtVec(j)))
		}
		if err := errors.CheckNumericalStability("LogisticRegression.newton", w, iter); err != nil {
			return err
		}
		lr.nIter_ = iter + 1
		if maxStep < lr.tol {
			break
		}
	}
	if offset == 1 {
		lr.intercept_ = w[0]
	}
	copy(lr.coef_, w[offset:])
	return nil
}

// fitGradientDescent fits by batch gradient descent with a decaying step.
func (lr *LogisticRegression) fitGradientDescent(X mat.Matrix, t []float64) error {
	nSamples, nFeatures := X.Dims()
	lambda := lr.lambda()
	const baseLearningRate = 1.0

	for iter := 0; iter < lr.maxIter; iter++ {
		gradWeights := make([]float64, nFeatures)
		gradIntercept := 0.0

		for i := 0; i < nSamples; i++ {
			z := lr.intercept_
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * lr.coef_[j]
			}
			residual := errors.Sigmoid(z) - t[i]
			gradIntercept += residual
			for j := 0; j < nFeatures; j++ {
				gradWeights[j] += residual * X.At(i, j)
			}
		}

		for j := range gradWeights {
			gradWeights[j] = gradWeights[j]/float64(nSamples) + lambda*lr.coef_[j]/float64(nSamples)
		}
		gradIntercept /= float64(nSamples)

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for j := range lr.coef_ {
			lr.coef_[j] -= learningRate * gradWeights[j]
		}
		if lr.fitIntercept {
			lr.intercept_ -= learningRate * gradIntercept
		}
		lr.nIter_ = iter + 1

		maxGrad := math.Abs(gradIntercept)
		for _, g := range gradWeights {
			maxGrad = math.Max(maxGrad, math.Abs(g))
		}
		if maxGrad < lr.tol {
			return nil
		}
	}
	errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter, "gradient descent did not reach tol"))
	return nil
}

// DecisionFunction returns the linear score w·x + b for each row.
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (*mat.VecDense, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "DecisionFunction"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := lr.state.CheckInput("LogisticRegression.DecisionFunction", nFeatures); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(nSamples, nil)
	for i := 0; i < nSamples; i++ {
		z := lr.intercept_
		for j := 0; j < nFeatures; j++ {
			z += X.At(i, j) * lr.coef_[j]
		}
		out.SetVec(i, z)
	}
	return out, nil
}

// Predict returns 1 where P(y=1) >= 0.5 and 0 elsewhere.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n := scores.Len()
	predictions := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if scores.AtVec(i) >= 0 {
			predictions.SetVec(i, 1)
		}
	}
	return predictions, nil
}

// PredictProba returns an (n, 2) matrix of class probabilities.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	n := scores.Len()
	probas := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := errors.Sigmoid(scores.AtVec(i))
		probas.Set(i, 0, 1-p)
		probas.Set(i, 1, p)
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	nSamples, _ := X.Dims()
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples), nil
}

// Coef returns the fitted coefficients.
func (lr *LogisticRegression) Coef() []float64 {
	return append([]float64(nil), lr.coef_...)
}

// Intercept returns the fitted intercept.
func (lr *LogisticRegression) Intercept() float64 { return lr.intercept_ }

// NIter returns the number of iterations run by the last Fit.
func (lr *LogisticRegression) NIter() int { return lr.nIter_ }

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":          lr.penalty,
		"C":                lr.C,
		"fit_intercept":    lr.fitIntercept,
		"solver":           lr.solver,
		"max_iter":         lr.maxIter,
		"tol":              lr.tol,
		"target_smoothing": lr.targetSmoothing,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "solver":
			lr.solver, ok = value.(string)
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "tol":
			lr.tol, ok = value.(float64)
		case "target_smoothing":
			lr.targetSmoothing, ok = value.(bool)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, fmt.Sprintf("unexpected type %T", value), value)
		}
	}
	return nil
}
