// Package pipeline runs the analysis end to end: missingness
// normalisation, imputation, correlation check, standardisation, split,
// per-family tuning and held-out evaluation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/dataset"
	"github.com/YuminosukeSato/pimaml/evaluation"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"github.com/YuminosukeSato/pimaml/preprocessing"
	"github.com/YuminosukeSato/pimaml/sklearn/impute"
	ms "github.com/YuminosukeSato/pimaml/sklearn/model_selection"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Stage names used in StageError and logs.
const (
	StageConfig      = "config"
	StageNormalize   = "normalize"
	StageImpute      = "impute"
	StageSelect      = "select"
	StageStandardize = "standardize"
	StageSplit       = "split"
	StageTrain       = "train"
	StageEvaluate    = "evaluate"
)

// FamilyFailure records a family whose search failed entirely.
type FamilyFailure struct {
	Family string
	Err    error
}

// Report is everything a run produces.
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Config   *Config

	Rows               int
	Negative, Positive int
	// ZerosReplaced counts designated-column zeros turned into missing.
	ZerosReplaced int
	Missing       dataset.MissingnessReport
	MAR           []impute.MARTest
	ImputedCells  int
	ImputeFits    []impute.ColumnFit

	Correlated []preprocessing.CorrelatedPair
	Dropped    []string
	// Features are the predictors the models were trained on.
	Features []string

	TrainSize, TestSize int

	Families []*FamilyResult
	Failures []FamilyFailure

	Baseline evaluation.Baseline
	Scores   []evaluation.FamilyScore
	// Best is the family with the highest test accuracy, "" when none.
	Best string
}

// BestScore returns the score of the best family.
func (r *Report) BestScore() (evaluation.FamilyScore, bool) {
	for _, s := range r.Scores {
		if s.Family == r.Best {
			return s, true
		}
	}
	return evaluation.FamilyScore{}, false
}

type runner struct {
	cfg    *Config
	rep    *Report
	logger log.Logger
}

// stage runs fn and wraps its error with the stage name.
func (r *runner) stage(name string, fn func() error) error {
	start := time.Now()
	r.logger.Debug("Stage started", log.StageKey, name)
	if err := fn(); err != nil {
		r.logger.Error("Stage failed", log.StageKey, name, log.ErrAttrKey, err)
		return errors.NewStageError(name, err)
	}
	r.logger.Info("Stage finished", log.StageKey, name, log.DurationMsKey, time.Since(start).Milliseconds())
	return nil
}

// Run executes every stage on a copy of tbl; tbl is not modified.
//
// The returned report is non-nil once the configuration is valid, so the
// caller can print partial results next to a stage error. A family whose
// search fails is recorded in Report.Failures and the remaining families
// still run; the train stage fails only when no family succeeds.
func Run(ctx context.Context, cfg *Config, tbl *dataset.Table) (*Report, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewStageError(StageConfig, err)
	}
	if tbl == nil || tbl.Rows() == 0 {
		return nil, errors.NewStageError(StageConfig, errors.Wrap(errors.ErrEmptyData, "no rows"))
	}

	rep := &Report{RunID: uuid.NewString(), Started: time.Now(), Config: cfg}
	r := &runner{
		cfg:    cfg,
		rep:    rep,
		logger: log.GetLoggerWithName("pipeline").With(log.RunIDKey, rep.RunID),
	}
	defer func() { rep.Duration = time.Since(rep.Started) }()

	t := tbl.Clone()
	rep.Rows = t.Rows()
	rep.Negative, rep.Positive = t.ClassCounts()
	r.logger.Info("Run started",
		log.SamplesKey, rep.Rows,
		log.FeaturesKey, len(t.Columns),
		log.RandomSeedKey, cfg.Seeds.Split,
	)

	if err := r.stage(StageNormalize, func() error {
		n, err := dataset.NormalizeMissing(t, dataset.DesignatedZeroColumns)
		if err != nil {
			return err
		}
		rep.ZerosReplaced = n
		rep.Missing = dataset.Missingness(t)
		r.logger.Info("Zeros marked missing", log.MissingKey, n)
		return nil
	}); err != nil {
		return rep, err
	}

	if err := r.stage(StageImpute, func() error { return r.impute(t) }); err != nil {
		return rep, err
	}

	if err := r.stage(StageSelect, func() error { return r.selectFeatures(t) }); err != nil {
		return rep, err
	}

	if err := r.stage(StageStandardize, func() error {
		sc := preprocessing.NewStandardScalerDefault()
		sc.ColumnNames = t.Columns
		Z, err := sc.FitTransform(t.X)
		if err != nil {
			return err
		}
		t, err = t.WithX(mat.DenseCopyOf(Z))
		return err
	}); err != nil {
		return rep, err
	}

	var train, test *dataset.Table
	if err := r.stage(StageSplit, func() error {
		var trIdx, teIdx []int
		var err error
		if cfg.StratifySplit {
			trIdx, teIdx, err = ms.StratifiedTrainTestSplit(t.LabelVector(), cfg.TrainFraction, cfg.Seeds.Split)
		} else {
			trIdx, teIdx, err = ms.TrainTestSplit(t.Rows(), cfg.TrainFraction, cfg.Seeds.Split)
		}
		if err != nil {
			return err
		}
		train, test = t.Subset(trIdx), t.Subset(teIdx)
		rep.TrainSize, rep.TestSize = len(trIdx), len(teIdx)
		r.logger.Info("Split", log.TrainSizeKey, rep.TrainSize, log.TestSizeKey, rep.TestSize)
		return nil
	}); err != nil {
		return rep, err
	}

	if err := r.stage(StageTrain, func() error { return r.train(ctx, train) }); err != nil {
		return rep, err
	}

	if err := r.stage(StageEvaluate, func() error { return r.evaluate(test) }); err != nil {
		return rep, err
	}
	return rep, nil
}

func (r *runner) impute(t *dataset.Table) error {
	cfg := r.cfg.Impute
	tests, err := impute.MARDiagnostics(t.X, t.Columns)
	if err != nil {
		return err
	}
	r.rep.MAR = tests
	if n := impute.WarnMAR(tests, cfg.MARAlpha); n > 0 {
		r.logger.Warn("Missingness depends on observed values; imputation assumes MAR",
			"mar.flagged", n,
		)
	}

	imp := impute.NewPMMImputer(
		impute.WithNImputations(cfg.NImputations),
		impute.WithMaxIter(cfg.MaxIter),
		impute.WithDonors(cfg.Donors),
		impute.WithAggregation(impute.Aggregation(cfg.Aggregation)),
		impute.WithRandomState(r.cfg.Seeds.Impute),
	)
	imp.ColumnNames = t.Columns
	out, err := imp.FitTransform(t.X)
	if err != nil {
		return err
	}
	r.rep.ImputedCells = imp.ImputedCells
	r.rep.ImputeFits = imp.Fits
	t.X = mat.DenseCopyOf(out)

	if left := dataset.Missingness(t).TotalMissing; left > 0 {
		return errors.NewImputationError("", "cells still missing after imputation", errors.Newf("%d cells", left))
	}
	return nil
}

func (r *runner) selectFeatures(t *dataset.Table) error {
	pairs, err := preprocessing.HighCorrelationPairs(t.X, t.Columns, r.cfg.CorrelationThreshold)
	if err != nil {
		return err
	}
	r.rep.Correlated = pairs
	for _, p := range pairs {
		r.logger.Warn("Highly correlated predictors", "pair", p.String())
	}
	if r.cfg.DropCorrelated && len(pairs) > 0 {
		r.rep.Dropped = preprocessing.DropCorrelated(pairs)
		t.X, t.Columns = preprocessing.SelectColumns(t.X, t.Columns, r.rep.Dropped)
	}
	r.rep.Features = append([]string(nil), t.Columns...)
	return nil
}

func (r *runner) train(ctx context.Context, train *dataset.Table) error {
	y := train.LabelVector()
	for _, name := range r.cfg.Families {
		logger := r.logger.With(log.ModelFamilyKey, name)
		start := time.Now()
		res, err := trainers[name](ctx, r.cfg, train.X, y)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Error("Family failed", log.ErrAttrKey, err)
			r.rep.Failures = append(r.rep.Failures, FamilyFailure{Family: name, Err: err})
			continue
		}
		for _, w := range res.Warnings {
			logger.Warn("Family search partially failed", "detail", w)
		}
		if err := describeFinal(res, r.rep.Features); err != nil {
			logger.Warn("Feature importances unavailable", log.ErrAttrKey, err)
		}
		logger.Info("Family tuned",
			log.ModelNameKey, estimatorName(res.Final.Model),
			log.HyperParamsKey, res.Final.Params,
			log.AUCKey, res.Final.CVAUC,
			log.AUCStdKey, res.Final.CVAUCStd,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
		r.rep.Families = append(r.rep.Families, res)
	}
	if len(r.rep.Families) == 0 {
		return errors.Wrapf(errors.ErrNoViableCandidate, "all %d families failed", len(r.cfg.Families))
	}
	return nil
}

func (r *runner) evaluate(test *dataset.Table) error {
	y := test.LabelVector()
	base, err := evaluation.MajorityBaseline(y)
	if err != nil {
		return err
	}
	r.rep.Baseline = base

	finals := make([]evaluation.FinalModel, len(r.rep.Families))
	for i, f := range r.rep.Families {
		finals[i] = f.Final
	}
	scores, err := evaluation.Evaluate(finals, test.X, y, r.cfg.Threshold)
	if err != nil {
		return err
	}
	r.rep.Scores = scores
	for _, s := range scores {
		fields := []any{
			log.ModelFamilyKey, s.Family,
			log.AccuracyKey, s.Accuracy,
			log.AUCKey, s.TestAUC,
			log.ThresholdKey, r.cfg.Threshold,
		}
		if s.Viable {
			r.logger.Info("Family evaluated", fields...)
		} else {
			r.logger.Warn("Family does not beat the majority baseline", append(fields, "baseline", base.Accuracy)...)
		}
	}
	if i := evaluation.Best(scores); i >= 0 {
		r.rep.Best = scores[i].Family
	}
	return nil
}

func estimatorName(c model.Classifier) string {
	if n, ok := c.(model.Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", c)
}
