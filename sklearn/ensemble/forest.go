// Package ensemble implements the random forest classifier.
package ensemble

import (
	"fmt"
	"math/rand/v2"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/core/parallel"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"github.com/YuminosukeSato/pimaml/sklearn/tree"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RandomForestClassifier averages CART trees, each grown on a bootstrap
// sample of the rows with mtry random candidate features per node.
//
// Tree t is seeded from (randomState, t), so the fitted forest does not
// depend on how trees are scheduled across goroutines.
type RandomForestClassifier struct {
	state *model.StateManager

	nTrees         int
	mtry           int
	minSamplesLeaf int
	maxDepth       int
	randomState    uint64
	nJobs          int
	oob            bool

	Trees     []*tree.DecisionTreeClassifier
	oobScore_ float64
	hasOOB    bool
	nClasses_ int
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNTrees sets the number of trees (default 500).
func WithNTrees(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nTrees = n }
}

// WithMtry sets the number of features examined per split; 0 means
// floor(sqrt(p)).
func WithMtry(m int) Option {
	return func(rf *RandomForestClassifier) { rf.mtry = m }
}

// WithMinSamplesLeaf sets the minimum leaf size (default 1).
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxDepth limits tree depth; 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithRandomState sets the seed.
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs bounds the goroutines used to grow trees; 0 means one per CPU.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// WithOOBScore enables the out-of-bag accuracy estimate.
func WithOOBScore(on bool) Option {
	return func(rf *RandomForestClassifier) { rf.oob = on }
}

// NewRandomForestClassifier creates a forest.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:          model.NewStateManager(),
		nTrees:         500,
		minSamplesLeaf: 1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Name implements model.Named.
func (rf *RandomForestClassifier) Name() string { return "RandomForestClassifier" }

func (rf *RandomForestClassifier) validate(p int) error {
	if rf.nTrees < 1 {
		return errors.NewValidationError("n_trees", "must be at least 1", rf.nTrees)
	}
	if rf.mtry < 0 || rf.mtry > p {
		return errors.NewValidationError("mtry", fmt.Sprintf("must be in [1, %d]", p), rf.mtry)
	}
	if rf.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", rf.minSamplesLeaf)
	}
	if rf.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be non-negative", rf.maxDepth)
	}
	return nil
}

func (rf *RandomForestClassifier) effectiveMtry(p int) int {
	if rf.mtry > 0 {
		return rf.mtry
	}
	m := 1
	for (m+1)*(m+1) <= p {
		m++
	}
	return m
}

// Fit grows the forest.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	d, err := tree.NewDataset(X, y)
	if err != nil {
		return err
	}
	n, p := len(d.Labels), len(d.Columns)
	if err := rf.validate(p); err != nil {
		return err
	}
	mtry := rf.effectiveMtry(p)
	logger := log.GetLoggerWithName("ensemble")

	trees := make([]*tree.DecisionTreeClassifier, rf.nTrees)
	inBag := make([][]bool, rf.nTrees)
	treeErrs := make([]error, rf.nTrees)

	parallel.ParallelizeWithWorkers(rf.nTrees, rf.nJobs, func(start, end int) {
		for t := start; t < end; t++ {
			treeErrs[t] = errors.SafeExecute("RandomForestClassifier.Fit", func() error {
				rng := rand.New(rand.NewPCG(rf.randomState, uint64(t)))
				rows := make([]int, n)
				bag := make([]bool, n)
				for i := range rows {
					rows[i] = rng.IntN(n)
					bag[rows[i]] = true
				}
				dt := tree.NewDecisionTreeClassifier(
					tree.WithMaxFeatures(mtry),
					tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
					tree.WithMaxDepth(rf.maxDepth),
					tree.WithRandomState(rng.Uint64()),
				)
				if err := dt.FitRows(d, rows); err != nil {
					return err
				}
				trees[t] = dt
				inBag[t] = bag
				return nil
			})
		}
	})
	for t, err := range treeErrs {
		if err != nil {
			return errors.Wrapf(err, "tree %d", t)
		}
	}

	rf.Trees = trees
	rf.nClasses_ = max(d.NClasses, 2)
	rf.state.SetDimensions(p, n)
	rf.state.SetFitted()

	rf.oobScore_, rf.hasOOB = 0, false
	if rf.oob {
		rf.oobScore_, rf.hasOOB = rf.computeOOB(X, d, inBag)
	}
	logger.Debug("Forest grown",
		log.ModelNameKey, rf.Name(),
		log.SamplesKey, n,
		log.FeaturesKey, p,
		log.HyperParamsKey, fmt.Sprintf("{n_trees=%d, mtry=%d}", rf.nTrees, mtry),
	)
	return nil
}

// OOBScore returns the out-of-bag accuracy of the last fit. ok is false
// when WithOOBScore was not set or no row was ever left out of a bag.
func (rf *RandomForestClassifier) OOBScore() (score float64, ok bool) {
	return rf.oobScore_, rf.hasOOB
}

func (rf *RandomForestClassifier) computeOOB(X mat.Matrix, d *tree.Dataset, inBag [][]bool) (float64, bool) {
	n := len(d.Labels)
	correct, counted := 0, 0
	votes := make([]float64, rf.nClasses_)
	for i := 0; i < n; i++ {
		for c := range votes {
			votes[c] = 0
		}
		seen := false
		for t, dt := range rf.Trees {
			if inBag[t][i] {
				continue
			}
			floats.Add(votes[:dt.NClasses()], dt.LeafValues(X, i))
			seen = true
		}
		if !seen {
			continue
		}
		counted++
		if floats.MaxIdx(votes) == d.Labels[i] {
			correct++
		}
	}
	if counted == 0 {
		return 0, false
	}
	return float64(correct) / float64(counted), true
}

// PredictProba returns the mean of the trees' leaf class proportions as an
// (n, K) matrix, K >= 2.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted(rf.Name(), "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.state.CheckInput("RandomForestClassifier.PredictProba", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, rf.nClasses_, nil)
	row := make([]float64, rf.nClasses_)
	scale := 1 / float64(len(rf.Trees))
	for i := 0; i < r; i++ {
		for k := range row {
			row[k] = 0
		}
		for _, dt := range rf.Trees {
			floats.Add(row[:dt.NClasses()], dt.LeafValues(X, i))
		}
		floats.Scale(scale, row)
		out.SetRow(i, row)
	}
	return out, nil
}

// Predict returns the class with the largest mean proportion.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, float64(floats.MaxIdx(mat.Row(nil, i, proba))))
	}
	return out, nil
}

// FeatureImportances returns the mean decrease in Gini impurity per
// feature: each tree's size-weighted impurity decrease, averaged over trees
// and normalised to sum to 1.
func (rf *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted(rf.Name(), "FeatureImportances"); err != nil {
		return nil, err
	}
	p, _ := rf.state.GetDimensions()
	out := make([]float64, p)
	for _, dt := range rf.Trees {
		floats.Add(out, dt.GetFeatureImportances())
	}
	if s := floats.Sum(out); s > 0 {
		floats.Scale(1/s, out)
	}
	return out, nil
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool { return rf.state.IsFitted() }

// GetParams returns the forest settings.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_trees":          rf.nTrees,
		"mtry":             rf.mtry,
		"min_samples_leaf": rf.minSamplesLeaf,
		"max_depth":        rf.maxDepth,
		"random_state":     rf.randomState,
		"oob_score":        rf.oob,
	}
}
