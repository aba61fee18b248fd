// Package impute fills missing predictor values by multivariate imputation
// by chained equations (MICE) with predictive mean matching (PMM).
//
// For every incomplete column, a linear regression of the column on all
// other columns is fitted to a bootstrap sample of the rows where the column
// is observed. Each missing cell then receives the observed value of a donor
// drawn uniformly from the d observed rows whose predicted values are
// closest to the missing row's prediction. Imputed values are therefore
// always values that occur in the data.
package impute

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/linear"
	"github.com/YuminosukeSato/pimaml/metrics"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Aggregation selects how the completed datasets are combined.
type Aggregation string

const (
	// AggregateMean averages the m completed datasets cell by cell.
	AggregateMean Aggregation = "mean"
	// AggregateFirst keeps the first completed dataset.
	AggregateFirst Aggregation = "first"
)

// ColumnFit records the imputation model of one column in the final sweep
// of the first imputation.
type ColumnFit struct {
	Column   string  `json:"column"`
	Missing  int     `json:"missing"`
	Observed int     `json:"observed"`
	// R2 is NaN when the observed values are constant.
	R2   float64 `json:"r2"`
	RMSE float64 `json:"rmse"`
}

// PMMImputer implements MICE with predictive mean matching.
type PMMImputer struct {
	state *model.StateManager

	nImputations int
	maxIter      int
	donors       int
	randomState  uint64
	aggregation  Aggregation
	minObserved  int

	// ColumnNames はエラーやログに使う列名 (省略可)
	ColumnNames []string

	// Imputations holds every completed dataset of the last FitTransform.
	Imputations []*mat.Dense
	// ImputedCells is the number of cells that were missing.
	ImputedCells int
	// Fits describes the per-column imputation models.
	Fits []ColumnFit

	logger log.Logger
}

// Option configures a PMMImputer.
type Option func(*PMMImputer)

// WithNImputations sets the number of completed datasets m (default 5).
func WithNImputations(m int) Option {
	return func(p *PMMImputer) { p.nImputations = m }
}

// WithMaxIter sets the number of chained-equation sweeps (default 5).
func WithMaxIter(k int) Option {
	return func(p *PMMImputer) { p.maxIter = k }
}

// WithDonors sets the size d of the donor pool (default 5).
func WithDonors(d int) Option {
	return func(p *PMMImputer) { p.donors = d }
}

// WithRandomState sets the seed.
func WithRandomState(seed uint64) Option {
	return func(p *PMMImputer) { p.randomState = seed }
}

// WithAggregation sets how completed datasets are combined.
func WithAggregation(a Aggregation) Option {
	return func(p *PMMImputer) { p.aggregation = a }
}

// WithMinObserved raises the minimum number of observed rows a column
// needs. The effective minimum is never below max(d, p+2) where p is the
// number of covariates.
func WithMinObserved(n int) Option {
	return func(p *PMMImputer) { p.minObserved = n }
}

// NewPMMImputer creates an imputer.
func NewPMMImputer(opts ...Option) *PMMImputer {
	p := &PMMImputer{
		state:        model.NewStateManager(),
		nImputations: 5,
		maxIter:      5,
		donors:       5,
		aggregation:  AggregateMean,
		logger:       log.GetLoggerWithName("impute"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PMMImputer) validate() error {
	if p.nImputations < 1 {
		return errors.NewValidationError("n_imputations", "must be at least 1", p.nImputations)
	}
	if p.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", p.maxIter)
	}
	if p.donors < 1 {
		return errors.NewValidationError("donors", "must be at least 1", p.donors)
	}
	if p.aggregation != AggregateMean && p.aggregation != AggregateFirst {
		return errors.NewValidationError("aggregation", "must be mean or first", p.aggregation)
	}
	return nil
}

func (p *PMMImputer) columnName(j int) string {
	if j < len(p.ColumnNames) {
		return p.ColumnNames[j]
	}
	return defaultName(j)
}

func defaultName(j int) string {
	return fmt.Sprintf("x%d", j)
}

// GetParams returns the imputer settings.
func (p *PMMImputer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_imputations": p.nImputations,
		"max_iter":      p.maxIter,
		"donors":        p.donors,
		"random_state":  p.randomState,
		"aggregation":   string(p.aggregation),
		"min_observed":  p.minObserved,
	}
}

// FitTransform returns a completed copy of X; NaN marks a missing cell.
// X itself is not modified. The result depends only on X and the seed.
func (p *PMMImputer) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	n, c := X.Dims()
	if n == 0 || c == 0 {
		return nil, errors.NewModelError("PMMImputer.FitTransform", "empty data", errors.ErrEmptyData)
	}

	base := mat.DenseCopyOf(X)
	missing := make([][]int, c)
	total := 0
	for j := 0; j < c; j++ {
		for i := 0; i < n; i++ {
			v := base.At(i, j)
			if math.IsInf(v, 0) {
				return nil, errors.NewValueError("PMMImputer.FitTransform", "Inf in input")
			}
			if math.IsNaN(v) {
				missing[j] = append(missing[j], i)
			}
		}
		total += len(missing[j])
	}

	p.ImputedCells = total
	p.Fits = nil
	if total == 0 {
		p.Imputations = []*mat.Dense{base}
		p.state.SetDimensions(c, n)
		p.state.SetFitted()
		return base, nil
	}

	need := max(p.donors, c+1, p.minObserved)
	if c == 1 {
		return nil, errors.NewImputationError(p.columnName(0), "no covariates to condition on", nil)
	}
	for j := 0; j < c; j++ {
		if len(missing[j]) == 0 {
			continue
		}
		if obs := n - len(missing[j]); obs < need {
			return nil, errors.NewImputationError(p.columnName(j),
				fmt.Sprintf("only %d observed rows, need at least %d", obs, need), nil)
		}
	}

	p.logger.Info("Imputation started",
		log.MissingKey, total,
		log.SamplesKey, n,
		log.HyperParamsKey, fmt.Sprint(p.GetParams()),
	)

	p.Imputations = make([]*mat.Dense, p.nImputations)
	for m := 0; m < p.nImputations; m++ {
		rng := rand.New(rand.NewPCG(p.randomState, uint64(m)))
		completed, fits, err := p.impute(base, missing, rng)
		if err != nil {
			return nil, err
		}
		if m == 0 {
			p.Fits = fits
		}
		p.Imputations[m] = completed
	}

	var out *mat.Dense
	switch p.aggregation {
	case AggregateFirst:
		out = mat.DenseCopyOf(p.Imputations[0])
	default:
		out = mat.NewDense(n, c, nil)
		for _, imp := range p.Imputations {
			out.Add(out, imp)
		}
		out.Scale(1/float64(len(p.Imputations)), out)
		// 観測値は平均による丸め誤差を受けないよう元の値に戻す
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				if v := base.At(i, j); !math.IsNaN(v) {
					out.Set(i, j, v)
				}
			}
		}
	}

	for _, f := range p.Fits {
		p.logger.Debug("Column imputed",
			log.ColumnKey, f.Column,
			log.MissingKey, f.Missing,
			"model.r2", f.R2,
			"model.rmse", f.RMSE,
		)
	}
	p.state.SetDimensions(c, n)
	p.state.SetFitted()
	return out, nil
}

// impute produces one completed dataset.
func (p *PMMImputer) impute(base *mat.Dense, missing [][]int, rng *rand.Rand) (*mat.Dense, []ColumnFit, error) {
	n, c := base.Dims()
	work := mat.DenseCopyOf(base)

	observed := make([][]int, c)
	for j := 0; j < c; j++ {
		if len(missing[j]) == 0 {
			continue
		}
		isMissing := make([]bool, n)
		for _, i := range missing[j] {
			isMissing[i] = true
		}
		for i := 0; i < n; i++ {
			if !isMissing[i] {
				observed[j] = append(observed[j], i)
			}
		}
		// 初期値: 観測値からの無作為抽出
		for _, i := range missing[j] {
			donor := observed[j][rng.IntN(len(observed[j]))]
			work.Set(i, j, base.At(donor, j))
		}
	}

	var fits []ColumnFit
	for sweep := 0; sweep < p.maxIter; sweep++ {
		last := sweep == p.maxIter-1
		for j := 0; j < c; j++ {
			if len(missing[j]) == 0 {
				continue
			}
			r2, rmse, err := p.imputeColumn(work, base, j, observed[j], missing[j], rng)
			if err != nil {
				return nil, nil, err
			}
			if last {
				fits = append(fits, ColumnFit{
					Column:   p.columnName(j),
					Missing:  len(missing[j]),
					Observed: len(observed[j]),
					R2:       r2,
					RMSE:     rmse,
				})
			}
		}
	}
	return work, fits, nil
}

// imputeColumn refits the model for column j and redraws its missing cells.
// It returns the R² and RMSE of the bootstrap model on the observed rows.
func (p *PMMImputer) imputeColumn(work, base *mat.Dense, j int, obs, mis []int, rng *rand.Rand) (r2, rmse float64, err error) {
	_, c := work.Dims()
	covariates := make([]int, 0, c-1)
	for k := 0; k < c; k++ {
		if k != j {
			covariates = append(covariates, k)
		}
	}
	design := func(rows []int) *mat.Dense {
		d := mat.NewDense(len(rows), len(covariates), nil)
		for a, i := range rows {
			for b, k := range covariates {
				d.Set(a, b, work.At(i, k))
			}
		}
		return d
	}
	target := func(rows []int) *mat.VecDense {
		v := mat.NewVecDense(len(rows), nil)
		for a, i := range rows {
			v.SetVec(a, base.At(i, j))
		}
		return v
	}

	boot := make([]int, len(obs))
	for a := range boot {
		boot[a] = obs[rng.IntN(len(obs))]
	}

	lr := linear.NewLinearRegression()
	if err := lr.Fit(design(boot), target(boot)); err != nil {
		return 0, 0, errors.NewImputationError(p.columnName(j), "regression on observed covariates failed", err)
	}

	yObs := target(obs)
	predObs, err := lr.PredictVec(design(obs))
	if err != nil {
		return 0, 0, errors.NewImputationError(p.columnName(j), "prediction failed", err)
	}
	predMis, err := lr.PredictVec(design(mis))
	if err != nil {
		return 0, 0, errors.NewImputationError(p.columnName(j), "prediction failed", err)
	}

	// 予測値の昇順に並べた観測行から、近い順に d 個のドナーを選ぶ
	order := make([]int, len(obs))
	for a := range order {
		order[a] = a
	}
	sort.SliceStable(order, func(a, b int) bool {
		return predObs.AtVec(order[a]) < predObs.AtVec(order[b])
	})
	sortedPred := make([]float64, len(order))
	for a, o := range order {
		sortedPred[a] = predObs.AtVec(o)
	}

	d := min(p.donors, len(obs))
	pool := make([]int, 0, d)
	for a, i := range mis {
		pool = nearest(pool[:0], sortedPred, predMis.AtVec(a), d)
		donor := order[pool[rng.IntN(len(pool))]]
		work.Set(i, j, yObs.AtVec(donor))
	}

	rmse, err = metrics.RMSE(yObs, predObs)
	if err != nil {
		return 0, 0, errors.NewImputationError(p.columnName(j), "fit diagnostics failed", err)
	}
	r2, err = metrics.R2Score(yObs, predObs)
	if err != nil {
		// 観測値が定数の列: 当てはまりは定義されない
		r2 = math.NaN()
	}
	return r2, rmse, nil
}

// nearest appends to dst the positions of the d values in sorted closest to
// target. Ties prefer the lower position.
func nearest(dst []int, sorted []float64, target float64, d int) []int {
	hi := sort.SearchFloat64s(sorted, target)
	lo := hi - 1
	for len(dst) < d && (lo >= 0 || hi < len(sorted)) {
		switch {
		case lo < 0:
			dst = append(dst, hi)
			hi++
		case hi >= len(sorted):
			dst = append(dst, lo)
			lo--
		case target-sorted[lo] <= sorted[hi]-target:
			dst = append(dst, lo)
			lo--
		default:
			dst = append(dst, hi)
			hi++
		}
	}
	return dst
}

// IsFitted reports whether FitTransform has completed.
func (p *PMMImputer) IsFitted() bool {
	return p.state.IsFitted()
}
