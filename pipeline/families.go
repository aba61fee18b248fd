package pipeline

import (
	"context"
	"math"
	"sort"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/evaluation"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"github.com/YuminosukeSato/pimaml/sklearn/ensemble"
	ms "github.com/YuminosukeSato/pimaml/sklearn/model_selection"
	"github.com/YuminosukeSato/pimaml/sklearn/neural_network"
	"github.com/YuminosukeSato/pimaml/sklearn/svm"
	"gonum.org/v1/gonum/mat"
)

// FamilyResult is the tuning outcome of one model family.
type FamilyResult struct {
	Family string
	// Searches holds every grid search run for the family, in order. The
	// SVM family has one entry per coarse-to-fine stage plus the radial
	// search.
	Searches []*ms.SearchResult
	// Final is the selected model, refitted on the whole training set.
	Final evaluation.FinalModel
	// Warnings lists sub-searches that failed without failing the family.
	Warnings []string
	// Importances ranks the predictors, highest first, for final models
	// that implement model.Importancer.
	Importances []FeatureImportance
	// OOBAccuracy is the out-of-bag accuracy of a final forest; nil when
	// not computed.
	OOBAccuracy *float64
}

// FeatureImportance is one predictor's share of the model's importance.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

type oobScorer interface {
	OOBScore() (float64, bool)
}

// describeFinal fills the importance view of res from its final model.
func describeFinal(res *FamilyResult, features []string) error {
	if o, ok := res.Final.Model.(oobScorer); ok {
		if v, ok := o.OOBScore(); ok {
			res.OOBAccuracy = &v
		}
	}
	imp, ok := res.Final.Model.(model.Importancer)
	if !ok {
		return nil
	}
	vals, err := imp.FeatureImportances()
	if err != nil {
		return err
	}
	if len(vals) != len(features) {
		return errors.NewDimensionError("FeatureImportances", len(features), len(vals), 1)
	}
	out := make([]FeatureImportance, len(vals))
	for j, v := range vals {
		out[j] = FeatureImportance{Feature: features[j], Importance: v}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Importance > out[b].Importance })
	res.Importances = out
	return nil
}

type trainFunc func(ctx context.Context, cfg *Config, X *mat.Dense, y *mat.VecDense) (*FamilyResult, error)

var trainers = map[string]trainFunc{
	RandomForest: trainRandomForest,
	SVM:          trainSVM,
	MLP:          trainMLP,
}

func newSearch(cfg *Config, name string, factory ms.Factory, grid ms.ParamGrid) *ms.GridSearchCV {
	return &ms.GridSearchCV{
		Name:    name,
		Factory: factory,
		Grid:    grid,
		CV:      ms.NewRepeatedStratifiedKFold(cfg.CV.Folds, cfg.CV.Repeats, cfg.Seeds.CV),
		NJobs:   cfg.Jobs(),
		Logger:  log.GetLoggerWithName("model_selection"),
	}
}

func finalFrom(family string, res *ms.SearchResult) evaluation.FinalModel {
	best := res.Best()
	return evaluation.FinalModel{
		Family:   family,
		Params:   best.Params.String(),
		CVAUC:    best.MeanScore,
		CVAUCStd: best.StdScore,
		Model:    res.BestEstimator,
	}
}

// RandomForestFactory builds forests from {mtry}. Trees are grown serially
// inside each forest since the grid search already fans out.
func RandomForestFactory(cfg RandomForestConfig, seed uint64) ms.Factory {
	return func(p ms.Params) (model.Classifier, error) {
		mtry, err := p.Int("mtry")
		if err != nil {
			return nil, err
		}
		return ensemble.NewRandomForestClassifier(
			ensemble.WithNTrees(cfg.NTrees),
			ensemble.WithMtry(mtry),
			ensemble.WithMinSamplesLeaf(cfg.MinSamplesLeaf),
			ensemble.WithRandomState(seed),
			ensemble.WithNJobs(1),
			ensemble.WithOOBScore(cfg.OOBScore),
		), nil
	}
}

func trainRandomForest(ctx context.Context, cfg *Config, X *mat.Dense, y *mat.VecDense) (*FamilyResult, error) {
	grid := ms.ParamGrid{"mtry": ints(cfg.RandomForest.Mtry)}
	search := newSearch(cfg, RandomForest, RandomForestFactory(cfg.RandomForest, cfg.Seeds.Model), grid)
	res, err := search.Fit(ctx, X, y)
	if err != nil {
		return nil, err
	}
	return &FamilyResult{
		Family:   RandomForest,
		Searches: []*ms.SearchResult{res},
		Final:    finalFrom(RandomForest, res),
	}, nil
}

// SVMFactory builds support vector classifiers with the given kernel from
// {C} (linear) or {C, sigma} (rbf).
func SVMFactory(kernel string, cfg SVMConfig, seed uint64) ms.Factory {
	return func(p ms.Params) (model.Classifier, error) {
		c, err := p.Float("C")
		if err != nil {
			return nil, err
		}
		opts := []svm.Option{
			svm.WithKernel(kernel),
			svm.WithC(c),
			svm.WithTol(cfg.Tol),
			svm.WithMaxIter(cfg.MaxIter),
			svm.WithProbabilityCV(cfg.ProbabilityCV),
			svm.WithRandomState(seed),
		}
		if kernel == "rbf" {
			sigma, err := p.Float("sigma")
			if err != nil {
				return nil, err
			}
			opts = append(opts, svm.WithSigma(sigma))
		}
		return svm.NewSVC(opts...), nil
	}
}

// trainSVM tunes the linear kernel coarse-to-fine over C and the radial
// kernel over (sigma, C). The kernel with the higher CV AUC is kept; the
// linear kernel wins ties. One kernel failing is only a warning.
func trainSVM(ctx context.Context, cfg *Config, X *mat.Dense, y *mat.VecDense) (*FamilyResult, error) {
	out := &FamilyResult{Family: SVM}
	var linear, radial *ms.SearchResult
	var linErr, radErr error

	if len(cfg.SVM.LinearC) > 0 {
		cf := &ms.CoarseToFine{
			Search: newSearch(cfg, "svm_linear", SVMFactory("linear", cfg.SVM, cfg.Seeds.Model),
				ms.ParamGrid{"C": floatsAny(cfg.SVM.LinearC)}),
			Stages: cfg.SVM.Stages,
			Param:  "C",
			Points: cfg.SVM.FinePoints,
			Log:    true,
		}
		var res *ms.CoarseToFineResult
		if res, linErr = cf.Run(ctx, X, y); linErr == nil {
			out.Searches = append(out.Searches, res.Stages...)
			linear = res.Best
		}
	} else {
		linErr = errors.NewConfigError("svm.linear_c", "empty grid")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(cfg.SVM.Sigma) > 0 && len(cfg.SVM.RadialC) > 0 {
		search := newSearch(cfg, "svm_radial", SVMFactory("rbf", cfg.SVM, cfg.Seeds.Model),
			ms.ParamGrid{"sigma": floatsAny(cfg.SVM.Sigma), "C": floatsAny(cfg.SVM.RadialC)})
		if radial, radErr = search.Fit(ctx, X, y); radErr == nil {
			out.Searches = append(out.Searches, radial)
		}
	} else {
		radErr = errors.NewConfigError("svm.sigma", "empty grid")
	}

	switch {
	case linErr != nil && radErr != nil:
		return nil, errors.Wrapf(radErr, "linear kernel: %v; radial kernel", linErr)
	case linErr != nil:
		out.Warnings = append(out.Warnings, "linear kernel: "+linErr.Error())
		out.Final = finalFrom(SVM, radial)
	case radErr != nil:
		out.Warnings = append(out.Warnings, "radial kernel: "+radErr.Error())
		out.Final = finalFrom(SVM, linear)
	case radial.Best().MeanScore > linear.Best().MeanScore+1e-12:
		out.Final = finalFrom(SVM, radial)
	default:
		out.Final = finalFrom(SVM, linear)
	}
	if out.Final.Model == nil {
		return nil, errors.Wrap(errors.ErrNoViableCandidate, "svm")
	}
	return out, nil
}

// MLPFactory builds networks from {hidden_layer_sizes}.
func MLPFactory(cfg MLPConfig, threshold float64, seed uint64) ms.Factory {
	return func(p ms.Params) (model.Classifier, error) {
		sizes, err := p.Ints("hidden_layer_sizes")
		if err != nil {
			return nil, err
		}
		return neural_network.NewMLPClassifier(
			neural_network.WithHiddenLayerSizes(sizes...),
			neural_network.WithAlpha(cfg.Alpha),
			neural_network.WithMaxIter(cfg.MaxIter),
			neural_network.WithTol(cfg.Tol),
			neural_network.WithThreshold(threshold),
			neural_network.WithRandomState(seed),
		), nil
	}
}

func trainMLP(ctx context.Context, cfg *Config, X *mat.Dense, y *mat.VecDense) (*FamilyResult, error) {
	sizes := make([]any, len(cfg.MLP.HiddenLayerSizes))
	for i, s := range cfg.MLP.HiddenLayerSizes {
		sizes[i] = append([]int(nil), s...)
	}
	search := newSearch(cfg, MLP, MLPFactory(cfg.MLP, cfg.Threshold, cfg.Seeds.Model),
		ms.ParamGrid{"hidden_layer_sizes": sizes})
	res, err := search.Fit(ctx, X, y)
	if err != nil {
		return nil, err
	}
	return &FamilyResult{
		Family:   MLP,
		Searches: []*ms.SearchResult{res},
		Final:    finalFrom(MLP, res),
	}, nil
}

func ints(v []int) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func floatsAny(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

// BestAUC returns the highest mean CV AUC over the searches of a family,
// or NaN when none succeeded.
func (f *FamilyResult) BestAUC() float64 {
	best := math.NaN()
	for _, s := range f.Searches {
		if v := s.Best().MeanScore; math.IsNaN(best) || v > best {
			best = v
		}
	}
	return best
}
