// Package linear provides the least-squares regression used by the imputer
// to predict incomplete columns from the observed ones.
package linear

import (
	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/core/parallel"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// LinearRegression は線形回帰モデル
type LinearRegression struct {
	state *model.StateManager

	fitIntercept bool
	ridge        float64

	Weights   *mat.VecDense // 重み（係数）
	Intercept float64       // 切片
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		state:        model.NewStateManager(),
		fitIntercept: true,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる。
// 正規方程式 (XᵀX) w = Xᵀy をコレスキー分解で解く。XᵀX が正定値でない
// (説明変数が線形従属している) 場合は ErrSingularMatrix を包んだ
// ModelError を返す。
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}

	offset := 0
	if lr.fitIntercept {
		offset = 1
	}
	p := c + offset
	if r < p {
		return errors.NewModelError("LinearRegression.Fit", "fewer rows than coefficients", errors.ErrSingularMatrix)
	}

	// 切片項のために X に 1 の列を追加: [1, X]
	design := mat.NewDense(r, p, nil)
	const parallelThreshold = 1000
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if offset == 1 {
				design.Set(i, 0, 1.0)
			}
			for j := 0; j < c; j++ {
				design.Set(i, j+offset, X.At(i, j))
			}
		}
	})

	yVec := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, design.T())
	for j := offset; j < p; j++ {
		xtx.SetSym(j, j, xtx.At(j, j)+lr.ridge)
	}

	var xty mat.VecDense
	xty.MulVec(design.T(), yVec)

	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}
	if cond := chol.Cond(); cond > 1e14 {
		return errors.NewModelError("LinearRegression.Fit", "ill-conditioned design", errors.ErrSingularMatrix)
	}

	var w mat.VecDense
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.Wrap(errors.ErrSingularMatrix, err.Error()))
	}

	lr.Intercept = 0
	if offset == 1 {
		lr.Intercept = w.AtVec(0)
	}
	lr.Weights = mat.NewVecDense(c, nil)
	for j := 0; j < c; j++ {
		lr.Weights.SetVec(j, w.AtVec(j+offset))
	}

	lr.state.SetDimensions(c, r)
	lr.state.SetFitted()
	return nil
}

// Predict は入力データに対する予測を (n, 1) の行列で返す
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	v, err := lr.PredictVec(X)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// PredictVec is Predict returning the predictions as a vector.
func (lr *LinearRegression) PredictVec(X mat.Matrix) (*mat.VecDense, error) {
	if err := lr.state.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lr.state.CheckInput("LinearRegression.Predict", c); err != nil {
		return nil, err
	}

	// 予測: y = X * weights + intercept
	out := mat.NewVecDense(r, nil)
	out.MulVec(X, lr.Weights)
	for i := 0; i < r; i++ {
		out.SetVec(i, out.AtVec(i)+lr.Intercept)
	}
	return out, nil
}

// IsFitted reports whether Fit has completed.
func (lr *LinearRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// GetWeights は学習された重み（係数）を返す
func (lr *LinearRegression) GetWeights() []float64 {
	if lr.Weights == nil {
		return nil
	}
	return mat.Col(nil, 0, lr.Weights)
}

// GetIntercept は学習された切片を返す
func (lr *LinearRegression) GetIntercept() float64 {
	return lr.Intercept
}

// GetParams returns the regression settings.
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.fitIntercept,
		"ridge":         lr.ridge,
	}
}
