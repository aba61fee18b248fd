// Package tree implements CART classification trees.
//
// Trees split on a single feature at the midpoint between two consecutive
// distinct values, choosing the split that minimises the weighted impurity
// of the children (Gini or entropy). With WithMaxFeatures only a random
// subset of features is examined at each node, which is how the random
// forest in package ensemble decorrelates its trees.
package tree

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	leaf      bool
	depth     int
	nSamples  int
	// value はクラスごとの割合
	value []float64
}

// DecisionTreeClassifier is a CART classifier. Labels must be the integers
// 0..K-1.
type DecisionTreeClassifier struct {
	state *model.StateManager

	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	randomState     uint64

	nodes       []node
	nClasses_   int
	importances []float64
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets "gini" (default) or "entropy".
func WithCriterion(c string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = c }
}

// WithMaxDepth limits the depth; 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = d }
}

// WithMinSamplesSplit sets the minimum node size that may be split (default 2).
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum size of each child (default 1).
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets the number of features drawn at each node; 0 means
// all features.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState seeds the feature sampling.
func WithRandomState(seed uint64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

// NewDecisionTreeClassifier creates a tree.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

func (dt *DecisionTreeClassifier) validate() error {
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	}
	if dt.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be non-negative", dt.maxDepth)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	if dt.maxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be non-negative", dt.maxFeatures)
	}
	return nil
}

// Dataset is a feature-major copy of a training matrix with integer class
// labels. It is read-only once built and may be shared between trees.
type Dataset struct {
	Columns  [][]float64
	Labels   []int
	NClasses int
}

// NewDataset converts X and y. Labels must be whole numbers in [0, K).
func NewDataset(X, y mat.Matrix) (*Dataset, error) {
	r, c := X.Dims()
	ry, _ := y.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError("tree.NewDataset", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return nil, errors.NewDimensionError("tree.NewDataset", r, ry, 0)
	}
	d := &Dataset{Columns: make([][]float64, c), Labels: make([]int, r)}
	for j := 0; j < c; j++ {
		col := make([]float64, r)
		for i := 0; i < r; i++ {
			v := X.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewValueError("tree.NewDataset", "X contains NaN or Inf")
			}
			col[i] = v
		}
		d.Columns[j] = col
	}
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if v < 0 || v != math.Trunc(v) {
			return nil, errors.NewValidationError("y", "labels must be non-negative integers", v)
		}
		d.Labels[i] = int(v)
		if d.Labels[i]+1 > d.NClasses {
			d.NClasses = d.Labels[i] + 1
		}
	}
	return d, nil
}

// Fit grows the tree on all rows of X.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	d, err := NewDataset(X, y)
	if err != nil {
		return err
	}
	idx := make([]int, len(d.Labels))
	for i := range idx {
		idx[i] = i
	}
	return dt.FitRows(d, idx)
}

// FitRows grows the tree on the given rows of d. Rows may repeat, as in a
// bootstrap sample.
func (dt *DecisionTreeClassifier) FitRows(d *Dataset, rows []int) error {
	if err := dt.validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	p := len(d.Columns)
	b := &builder{
		dt:   dt,
		d:    d,
		rng:  rand.New(rand.NewPCG(dt.randomState, 0x5bd1e995)),
		perm: make([]int, p),
	}
	for j := range b.perm {
		b.perm[j] = j
	}
	dt.nodes = dt.nodes[:0]
	dt.nClasses_ = d.NClasses
	dt.importances = make([]float64, p)

	b.build(append([]int(nil), rows...), 0)

	dt.state.SetDimensions(p, len(rows))
	dt.state.SetFitted()
	return nil
}

type builder struct {
	dt   *DecisionTreeClassifier
	d    *Dataset
	rng  *rand.Rand
	perm []int
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	switch b.dt.criterion {
	case "entropy":
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				q := c / n
				h -= q * math.Log2(q)
			}
		}
		return h
	default:
		g := 1.0
		for _, c := range counts {
			q := c / n
			g -= q * q
		}
		return g
	}
}

// build grows the subtree for rows and returns its node index.
func (b *builder) build(rows []int, depth int) int {
	dt := b.dt
	k := b.d.NClasses
	counts := make([]float64, k)
	for _, i := range rows {
		counts[b.d.Labels[i]]++
	}
	n := float64(len(rows))
	value := make([]float64, k)
	floats.ScaleTo(value, 1/n, counts)

	id := len(dt.nodes)
	dt.nodes = append(dt.nodes, node{leaf: true, depth: depth, nSamples: len(rows), value: value})

	parent := b.impurity(counts, n)
	if parent <= 1e-12 ||
		len(rows) < dt.minSamplesSplit ||
		len(rows) < 2*dt.minSamplesLeaf ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth) {
		return id
	}

	feature, threshold, child, ok := b.bestSplit(rows, k)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range rows {
		if b.d.Columns[feature][i] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return id
	}
	dt.importances[feature] += n*parent - child

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	nd := &dt.nodes[id]
	nd.leaf = false
	nd.feature = feature
	nd.threshold = threshold
	nd.left = l
	nd.right = r
	return id
}

// bestSplit returns the split with the lowest sample-weighted child
// impurity (n_l·I_l + n_r·I_r). Ties keep the first feature examined and
// the lowest threshold.
func (b *builder) bestSplit(rows []int, k int) (feature int, threshold, child float64, ok bool) {
	dt := b.dt
	p := len(b.d.Columns)
	m := p
	if dt.maxFeatures > 0 && dt.maxFeatures < p {
		m = dt.maxFeatures
		// 部分的な Fisher-Yates で m 個の特徴量を非復元抽出
		for j := 0; j < m; j++ {
			s := j + b.rng.IntN(p-j)
			b.perm[j], b.perm[s] = b.perm[s], b.perm[j]
		}
	}

	sorted := make([]int, len(rows))
	left := make([]float64, k)
	right := make([]float64, k)
	total := make([]float64, k)
	for _, i := range rows {
		total[b.d.Labels[i]]++
	}
	n := len(rows)
	minLeaf := dt.minSamplesLeaf
	child = math.Inf(1)

	for _, f := range b.perm[:m] {
		col := b.d.Columns[f]
		copy(sorted, rows)
		sort.Slice(sorted, func(a, c int) bool { return col[sorted[a]] < col[sorted[c]] })

		for c := range left {
			left[c] = 0
		}
		copy(right, total)
		for pos := 0; pos < n-1; pos++ {
			lbl := b.d.Labels[sorted[pos]]
			left[lbl]++
			right[lbl]--
			nl := pos + 1
			if nl < minLeaf || n-nl < minLeaf {
				continue
			}
			v, next := col[sorted[pos]], col[sorted[pos+1]]
			if v == next {
				continue
			}
			imp := float64(nl)*b.impurity(left, float64(nl)) + float64(n-nl)*b.impurity(right, float64(n-nl))
			if imp < child-1e-12 {
				child = imp
				feature = f
				threshold = v + (next-v)/2
				// 隣接する float64 では中点が next に丸められる
				if threshold >= next {
					threshold = v
				}
				ok = true
			}
		}
	}
	return feature, threshold, child, ok
}

func (dt *DecisionTreeClassifier) leafFor(x func(j int) float64) *node {
	nd := &dt.nodes[0]
	for !nd.leaf {
		if x(nd.feature) <= nd.threshold {
			nd = &dt.nodes[nd.left]
		} else {
			nd = &dt.nodes[nd.right]
		}
	}
	return nd
}

// LeafValues returns the class proportions of the leaf reached by row i of
// X. It does not check the input; callers validate once per matrix.
func (dt *DecisionTreeClassifier) LeafValues(X mat.Matrix, i int) []float64 {
	return dt.leafFor(func(j int) float64 { return X.At(i, j) }).value
}

func (dt *DecisionTreeClassifier) checkPredict(X mat.Matrix, method string) error {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", method); err != nil {
		return err
	}
	_, c := X.Dims()
	return dt.state.CheckInput("DecisionTreeClassifier."+method, c)
}

// PredictProba returns an (n, K) matrix of leaf class proportions.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "PredictProba"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, dt.nClasses_, nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, dt.LeafValues(X, i))
	}
	return out, nil
}

// Predict returns the majority class of each row's leaf; ties go to the
// lower class.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "Predict"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, float64(floats.MaxIdx(dt.LeafValues(X, i))))
	}
	return out, nil
}

// Score returns the accuracy on X, y.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := X.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r), nil
}

// RawImportances returns the total impurity decrease per feature, weighted
// by node size and not normalised.
func (dt *DecisionTreeClassifier) RawImportances() []float64 {
	return append([]float64(nil), dt.importances...)
}

// GetFeatureImportances returns the impurity decrease per feature
// normalised to sum to 1 (all zeros for a single-leaf tree).
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	out := dt.RawImportances()
	if s := floats.Sum(out); s > 0 {
		floats.Scale(1/s, out)
	}
	return out
}

// FeatureImportances implements model.Importancer.
func (dt *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.GetFeatureImportances(), nil
}

// GetDepth returns the depth of the deepest leaf (root has depth 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	d := 0
	for _, nd := range dt.nodes {
		if nd.leaf && nd.depth > d {
			d = nd.depth
		}
	}
	return d
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	n := 0
	for _, nd := range dt.nodes {
		if nd.leaf {
			n++
		}
	}
	return n
}

// NClasses returns the number of classes seen in Fit.
func (dt *DecisionTreeClassifier) NClasses() int { return dt.nClasses_ }

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool { return dt.state.IsFitted() }

// GetParams returns the tree settings.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams updates settings by name.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "criterion":
			s, ok := v.(string)
			if !ok {
				return errors.NewValidationError(k, "must be a string", v)
			}
			dt.criterion = s
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			n, ok := v.(int)
			if !ok {
				return errors.NewValidationError(k, "must be an int", v)
			}
			switch k {
			case "max_depth":
				dt.maxDepth = n
			case "min_samples_split":
				dt.minSamplesSplit = n
			case "min_samples_leaf":
				dt.minSamplesLeaf = n
			default:
				dt.maxFeatures = n
			}
		case "random_state":
			s, ok := v.(uint64)
			if !ok {
				return errors.NewValidationError(k, "must be a uint64", v)
			}
			dt.randomState = s
		default:
			return errors.NewValidationError(k, "unknown parameter", v)
		}
	}
	return dt.validate()
}
