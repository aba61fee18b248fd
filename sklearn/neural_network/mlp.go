// Package neural_network implements a feed-forward multilayer perceptron
// for binary classification, trained by full-batch resilient
// backpropagation (iRprop−).
package neural_network

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// iRprop− の定数
const (
	etaPlus   = 1.2
	etaMinus  = 0.5
	stepInit  = 0.1
	stepMax   = 50.0
	stepMin   = 1e-6
	noChange  = 10
	probClipE = 1e-15
)

// layer is one affine map followed by the logistic function.
type layer struct {
	W *mat.Dense // in × out
	b []float64
}

// MLPClassifier has logistic hidden units and a single sigmoid output
// unit, and minimises mean cross-entropy plus an optional L2 penalty.
type MLPClassifier struct {
	state *model.StateManager

	hidden      []int
	alpha       float64
	maxIter     int
	tol         float64
	threshold   float64
	randomState uint64

	layers []layer
	// LossCurve_ holds the training loss after each iteration.
	LossCurve_ []float64
	nIter_     int
	converged  bool
}

// Option configures an MLPClassifier.
type Option func(*MLPClassifier)

// WithHiddenLayerSizes sets the hidden layer widths (default [4]).
func WithHiddenLayerSizes(sizes ...int) Option {
	return func(m *MLPClassifier) { m.hidden = append([]int(nil), sizes...) }
}

// WithAlpha sets the L2 penalty (default 0).
func WithAlpha(a float64) Option { return func(m *MLPClassifier) { m.alpha = a } }

// WithMaxIter sets the number of full-batch iterations (default 200).
func WithMaxIter(n int) Option { return func(m *MLPClassifier) { m.maxIter = n } }

// WithTol sets the loss change below which training counts as stalled
// (default 1e-6). Training stops after 10 stalled iterations in a row.
func WithTol(tol float64) Option { return func(m *MLPClassifier) { m.tol = tol } }

// WithThreshold sets the probability cut-off used by Predict (default 0.5).
func WithThreshold(th float64) Option { return func(m *MLPClassifier) { m.threshold = th } }

// WithRandomState seeds the weight initialisation.
func WithRandomState(seed uint64) Option { return func(m *MLPClassifier) { m.randomState = seed } }

// NewMLPClassifier creates a network.
func NewMLPClassifier(opts ...Option) *MLPClassifier {
	m := &MLPClassifier{
		state:     model.NewStateManager(),
		hidden:    []int{4},
		maxIter:   200,
		tol:       1e-6,
		threshold: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements model.Named.
func (m *MLPClassifier) Name() string { return "MLPClassifier" }

func (m *MLPClassifier) validate() error {
	if len(m.hidden) == 0 {
		return errors.NewValidationError("hidden_layer_sizes", "needs at least one layer", m.hidden)
	}
	for _, h := range m.hidden {
		if h < 1 {
			return errors.NewValidationError("hidden_layer_sizes", "widths must be positive", m.hidden)
		}
	}
	if m.alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", m.alpha)
	}
	if m.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", m.maxIter)
	}
	if !(m.threshold > 0 && m.threshold < 1) {
		return errors.NewValidationError("threshold", "must be in (0, 1)", m.threshold)
	}
	return nil
}

// init draws Glorot-uniform weights and zero biases.
func (m *MLPClassifier) init(p int) {
	rng := rand.New(rand.NewPCG(m.randomState, 0xa0761d6478bd642f))
	sizes := append(append([]int{p}, m.hidden...), 1)
	m.layers = make([]layer, len(sizes)-1)
	for l := range m.layers {
		in, out := sizes[l], sizes[l+1]
		limit := math.Sqrt(6 / float64(in+out))
		W := mat.NewDense(in, out, nil)
		raw := W.RawMatrix().Data
		for k := range raw {
			raw[k] = (2*rng.Float64() - 1) * limit
		}
		m.layers[l] = layer{W: W, b: make([]float64, out)}
	}
}

// forward returns the activations of every layer; acts[0] is X.
func (m *MLPClassifier) forward(X mat.Matrix) []*mat.Dense {
	acts := make([]*mat.Dense, len(m.layers)+1)
	acts[0] = mat.DenseCopyOf(X)
	for l, ly := range m.layers {
		var z mat.Dense
		z.Mul(acts[l], ly.W)
		z.Apply(func(_, j int, v float64) float64 {
			return errors.Sigmoid(v + ly.b[j])
		}, &z)
		acts[l+1] = &z
	}
	return acts
}

// lossAndGrad returns the penalised mean cross-entropy and its gradient
// with respect to every weight and bias.
func (m *MLPClassifier) lossAndGrad(X mat.Matrix, y []float64) (float64, []*mat.Dense, [][]float64) {
	n := float64(len(y))
	acts := m.forward(X)
	out := acts[len(acts)-1]

	loss := 0.0
	delta := mat.NewDense(len(y), 1, nil)
	for i, t := range y {
		p := errors.ClipValue(out.At(i, 0), probClipE, 1-probClipE)
		loss -= t*math.Log(p) + (1-t)*math.Log(1-p)
		delta.Set(i, 0, (out.At(i, 0)-t)/n)
	}
	loss /= n

	gW := make([]*mat.Dense, len(m.layers))
	gb := make([][]float64, len(m.layers))
	for l := len(m.layers) - 1; l >= 0; l-- {
		ly := m.layers[l]
		var g mat.Dense
		g.Mul(acts[l].T(), delta)
		if m.alpha > 0 {
			g.Add(&g, scaled(m.alpha/n, ly.W))
			loss += m.alpha / (2 * n) * sumSquares(ly.W)
		}
		gW[l] = &g
		r, c := delta.Dims()
		gb[l] = make([]float64, c)
		for j := 0; j < c; j++ {
			for i := 0; i < r; i++ {
				gb[l][j] += delta.At(i, j)
			}
		}
		if l == 0 {
			break
		}
		var next mat.Dense
		next.Mul(delta, ly.W.T())
		a := acts[l]
		next.Apply(func(i, j int, v float64) float64 {
			s := a.At(i, j)
			return v * s * (1 - s)
		}, &next)
		delta = &next
	}
	return loss, gW, gb
}

func scaled(f float64, W *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(f, W)
	return &out
}

func sumSquares(W *mat.Dense) float64 {
	raw := W.RawMatrix().Data
	return floats.Dot(raw, raw)
}

// rprop applies one iRprop− update to params in place.
func rprop(params, grad, prev, step []float64) {
	for k := range params {
		g := grad[k]
		switch s := g * prev[k]; {
		case s > 0:
			step[k] = math.Min(step[k]*etaPlus, stepMax)
		case s < 0:
			step[k] = math.Max(step[k]*etaMinus, stepMin)
			g = 0
		}
		switch {
		case g > 0:
			params[k] -= step[k]
		case g < 0:
			params[k] += step[k]
		}
		prev[k] = g
	}
}

// Fit trains the network on X and 0/1 labels y.
func (m *MLPClassifier) Fit(X, y mat.Matrix) error {
	if err := m.validate(); err != nil {
		return err
	}
	n, p := X.Dims()
	ry, _ := y.Dims()
	if n == 0 {
		return errors.NewModelError("MLPClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != n {
		return errors.NewDimensionError("MLPClassifier.Fit", n, ry, 0)
	}
	if err := errors.CheckMatrix("MLPClassifier.Fit", X, n, p, 0); err != nil {
		return err
	}
	target := make([]float64, n)
	for i := range target {
		v := y.At(i, 0)
		if v != 0 && v != 1 {
			return errors.NewValueError("MLPClassifier.Fit", "labels must be 0 or 1")
		}
		target[i] = v
	}

	m.init(p)
	type state struct{ prev, step []float64 }
	newState := func(size int) state {
		s := state{prev: make([]float64, size), step: make([]float64, size)}
		for k := range s.step {
			s.step[k] = stepInit
		}
		return s
	}
	wState := make([]state, len(m.layers))
	bState := make([]state, len(m.layers))
	for l, ly := range m.layers {
		r, c := ly.W.Dims()
		wState[l] = newState(r * c)
		bState[l] = newState(len(ly.b))
	}

	m.LossCurve_ = m.LossCurve_[:0]
	m.converged = false
	stalled := 0
	for it := 0; it < m.maxIter; it++ {
		loss, gW, gb := m.lossAndGrad(X, target)
		if err := errors.CheckScalar("MLPClassifier.Fit", loss, it); err != nil {
			return err
		}
		for l, ly := range m.layers {
			rprop(ly.W.RawMatrix().Data, gW[l].RawMatrix().Data, wState[l].prev, wState[l].step)
			rprop(ly.b, gb[l], bState[l].prev, bState[l].step)
			if err := errors.CheckNumericalStability("MLPClassifier.Fit", ly.W.RawMatrix().Data, it); err != nil {
				return err
			}
		}
		m.LossCurve_ = append(m.LossCurve_, loss)
		m.nIter_ = it + 1

		if it > 0 && math.Abs(m.LossCurve_[it-1]-loss) < m.tol {
			stalled++
		} else {
			stalled = 0
		}
		if stalled >= noChange {
			m.converged = true
			break
		}
	}
	if !m.converged {
		errors.Warn(errors.NewConvergenceWarning("MLPClassifier", m.nIter_,
			"maximum iterations reached before the loss stabilised"))
	}

	m.state.SetDimensions(p, n)
	m.state.SetFitted()
	log.GetLoggerWithName("neural_network").Debug("MLP fitted",
		log.HyperParamsKey, fmt.Sprintf("{hidden=%v, alpha=%g}", m.hidden, m.alpha),
		log.IterationKey, m.nIter_,
		log.LossKey, m.LossCurve_[len(m.LossCurve_)-1],
	)
	return nil
}

// PredictProba returns an (n, 2) matrix [1−p, p] with p the output unit.
func (m *MLPClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := m.state.RequireFitted(m.Name(), "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := m.state.CheckInput("MLPClassifier.PredictProba", c); err != nil {
		return nil, err
	}
	acts := m.forward(X)
	out := acts[len(acts)-1]
	proba := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		p := out.At(i, 0)
		proba.Set(i, 0, 1-p)
		proba.Set(i, 1, p)
	}
	return proba, nil
}

// Predict returns 1 where P(y=1) ≥ the threshold.
func (m *MLPClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		if proba.At(i, 1) >= m.threshold {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// NIter returns the iterations run by the last Fit.
func (m *MLPClassifier) NIter() int { return m.nIter_ }

// Converged reports whether the last Fit stopped on the loss criterion.
func (m *MLPClassifier) Converged() bool { return m.converged }

// IsFitted reports whether Fit has completed.
func (m *MLPClassifier) IsFitted() bool { return m.state.IsFitted() }

// GetParams returns the network settings.
func (m *MLPClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"hidden_layer_sizes": append([]int(nil), m.hidden...),
		"alpha":              m.alpha,
		"max_iter":           m.maxIter,
		"tol":                m.tol,
		"threshold":          m.threshold,
		"random_state":       m.randomState,
	}
}
