package model_selection

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/metrics"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// tieTolerance is the AUC difference below which two candidates are tied.
const tieTolerance = 1e-12

// ScoreFunc scores positive-class scores against 0/1 labels; higher is
// better.
type ScoreFunc func(yTrue, scores *mat.VecDense) (float64, error)

// CandidateResult is the cross-validated score of one grid point.
type CandidateResult struct {
	Index      int       `json:"index"`
	Params     Params    `json:"params"`
	MeanScore  float64   `json:"mean_auc"`
	StdScore   float64   `json:"std_auc"`
	FoldScores []float64 `json:"fold_scores,omitempty"`
	// Err is set when the candidate failed on any fold. Failed candidates
	// never win.
	Err error `json:"-"`
}

// Failed reports whether the candidate is excluded from selection.
func (c CandidateResult) Failed() bool { return c.Err != nil }

// SearchResult is the outcome of a grid search.
type SearchResult struct {
	Name       string
	Candidates []CandidateResult
	BestIndex  int
	// BestEstimator is the best candidate refitted on all rows.
	BestEstimator model.Classifier
}

// Best returns the winning candidate.
func (r *SearchResult) Best() CandidateResult {
	return r.Candidates[r.BestIndex]
}

// Failures returns the candidates that were excluded.
func (r *SearchResult) Failures() []CandidateResult {
	var out []CandidateResult
	for _, c := range r.Candidates {
		if c.Failed() {
			out = append(out, c)
		}
	}
	return out
}

// GridSearchCV scores every grid point by cross-validation and refits the
// best one on all rows.
//
// Every (candidate, fold) fit is an independent task. Tasks share the
// read-only training data and each writes only its own result slot, so the
// result does not depend on NJobs or on scheduling.
type GridSearchCV struct {
	// Name labels the search in logs and errors, e.g. "svm_radial".
	Name    string
	Factory Factory
	Grid    ParamGrid
	// Candidates overrides Grid when set.
	Candidates []Params
	CV         Splitter
	// Scoring defaults to metrics.AUC.
	Scoring ScoreFunc
	// NJobs bounds concurrent fits; defaults to runtime.NumCPU().
	NJobs  int
	Logger log.Logger
}

func (g *GridSearchCV) logger() log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.GetLoggerWithName("model_selection")
}

func (g *GridSearchCV) candidates() ([]Params, error) {
	if len(g.Candidates) > 0 {
		return g.Candidates, nil
	}
	return g.Grid.Expand()
}

type foldData struct {
	fold   Fold
	xTrain *mat.Dense
	yTrain *mat.VecDense
	xTest  *mat.Dense
	yTest  *mat.VecDense
}

// Fit runs the search. Candidates that fail are recorded with Err and
// logged; Fit itself fails only on a configuration problem, context
// cancellation, when every candidate fails, or when the refit fails.
func (g *GridSearchCV) Fit(ctx context.Context, X mat.Matrix, y *mat.VecDense) (*SearchResult, error) {
	if g.Factory == nil {
		return nil, errors.NewConfigError("search.factory", "not set")
	}
	if g.CV == nil {
		return nil, errors.NewConfigError("search.cv", "not set")
	}
	r, _ := X.Dims()
	if r != y.Len() {
		return nil, errors.NewDimensionError("GridSearchCV.Fit", r, y.Len(), 0)
	}
	cands, err := g.candidates()
	if err != nil {
		return nil, err
	}
	folds, err := g.CV.Split(y)
	if err != nil {
		return nil, err
	}
	score := g.Scoring
	if score == nil {
		score = metrics.AUC
	}
	jobs := g.NJobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	logger := g.logger().With(log.ModelFamilyKey, g.Name)

	data := make([]foldData, len(folds))
	for i, f := range folds {
		data[i] = foldData{
			fold:   f,
			xTrain: TakeRows(X, f.Train),
			yTrain: TakeVec(y, f.Train),
			xTest:  TakeRows(X, f.Test),
			yTest:  TakeVec(y, f.Test),
		}
	}

	logger.Info("Grid search started",
		log.CandidatesKey, len(cands),
		"cv.folds", len(folds),
		log.SamplesKey, r,
	)
	start := time.Now()

	scores := make([][]float64, len(cands))
	errs := make([][]error, len(cands))
	for c := range cands {
		scores[c] = make([]float64, len(folds))
		errs[c] = make([]error, len(folds))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(jobs)
	for c := range cands {
		for f := range data {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				s, err := g.scoreFold(cands[c], &data[f], score)
				if err != nil {
					errs[c][f] = errors.NewFitError(g.Name, cands[c].String(), f, err)
					return nil
				}
				scores[c][f] = s
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.Wrapf(err, "grid search %s", g.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "grid search %s", g.Name)
	}

	res := &SearchResult{Name: g.Name, Candidates: make([]CandidateResult, len(cands)), BestIndex: -1}
	for c, p := range cands {
		cr := CandidateResult{Index: c, Params: p}
		for _, e := range errs[c] {
			if e != nil {
				cr.Err = e
				break
			}
		}
		if cr.Err != nil {
			logger.Warn("Candidate excluded",
				log.HyperParamsKey, p.String(),
				log.ErrorCodeKey, log.ErrorFitFailed,
				log.ErrAttrKey, cr.Err,
			)
		} else {
			cr.FoldScores = scores[c]
			cr.MeanScore, cr.StdScore = stat.MeanStdDev(scores[c], nil)
			if len(scores[c]) < 2 {
				cr.StdScore = 0
			}
			logger.Debug("Candidate scored",
				log.HyperParamsKey, p.String(),
				log.AUCKey, cr.MeanScore,
				log.AUCStdKey, cr.StdScore,
			)
		}
		res.Candidates[c] = cr
	}

	res.BestIndex = selectBest(res.Candidates)
	if res.BestIndex < 0 {
		return nil, errors.Wrapf(errors.ErrNoViableCandidate, "%s: all %d candidates failed", g.Name, len(cands))
	}

	best := res.Best()
	est, err := g.fitOne(best.Params, X, y)
	if err != nil {
		return nil, errors.NewFitError(g.Name, best.Params.String(), -1, err)
	}
	res.BestEstimator = est
	if pg, ok := est.(model.ParameterGetter); ok && logger.Enabled(ctx, log.LevelDebug) {
		logger.Debug("Refitted best candidate", "estimator.params", fmt.Sprint(pg.GetParams()))
	}

	logger.Info("Grid search finished",
		log.HyperParamsKey, best.Params.String(),
		log.AUCKey, best.MeanScore,
		log.AUCStdKey, best.StdScore,
		"search.failed", len(res.Failures()),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (g *GridSearchCV) fitOne(p Params, X mat.Matrix, y *mat.VecDense) (model.Classifier, error) {
	var est model.Classifier
	err := errors.SafeExecute(g.Name+".Fit", func() error {
		m, err := g.Factory(p)
		if err != nil {
			return err
		}
		if err := m.Fit(X, y); err != nil {
			return err
		}
		est = m
		return nil
	})
	return est, err
}

func (g *GridSearchCV) scoreFold(p Params, d *foldData, score ScoreFunc) (float64, error) {
	var s float64
	err := errors.SafeExecute(g.Name+".Score", func() error {
		est, err := g.fitOne(p, d.xTrain, d.yTrain)
		if err != nil {
			return err
		}
		proba, err := model.PositiveScores(est, d.xTest)
		if err != nil {
			return err
		}
		for i := 0; i < proba.Len(); i++ {
			if v := proba.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewNumericalInstabilityError(g.Name+".PredictProba", []float64{v}, 0)
			}
		}
		s, err = score(d.yTest, proba)
		if err != nil {
			return err
		}
		if math.IsNaN(s) {
			return errors.NewValueError(g.Name+".Score", "score is NaN")
		}
		return nil
	})
	return s, err
}

// selectBest returns the index of the highest mean score among candidates
// that did not fail, or -1. Ties within tieTolerance go to the lower
// standard deviation, then to the earlier candidate.
func selectBest(cands []CandidateResult) int {
	best := -1
	for i, c := range cands {
		if c.Failed() {
			continue
		}
		if best < 0 || better(c, cands[best]) {
			best = i
		}
	}
	return best
}

func better(a, b CandidateResult) bool {
	if d := a.MeanScore - b.MeanScore; math.Abs(d) > tieTolerance {
		return d > 0
	}
	if d := a.StdScore - b.StdScore; math.Abs(d) > tieTolerance {
		return d < 0
	}
	return a.Index < b.Index
}

// String summarises a candidate for reports.
func (c CandidateResult) String() string {
	if c.Failed() {
		return fmt.Sprintf("%s failed: %v", c.Params, c.Err)
	}
	return fmt.Sprintf("%s auc=%.4f±%.4f", c.Params, c.MeanScore, c.StdScore)
}
