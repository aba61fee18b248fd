package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultCorrelationThreshold は高相関とみなす |r| の既定値
const DefaultCorrelationThreshold = 0.7

// CorrelatedPair is a pair of predictor columns whose absolute Pearson
// correlation exceeds the threshold. First precedes Second in column order.
type CorrelatedPair struct {
	First  string  `json:"first"`
	Second string  `json:"second"`
	R      float64 `json:"r"`
}

func (p CorrelatedPair) String() string {
	return fmt.Sprintf("%s~%s (r=%.3f)", p.First, p.Second, p.R)
}

// CorrelationMatrix computes the Pearson correlation matrix of the columns
// of X. NaN or Inf cells are rejected.
func CorrelationMatrix(X mat.Matrix) (*mat.SymDense, error) {
	r, c := X.Dims()
	if r < 2 || c == 0 {
		return nil, errors.NewValueError("CorrelationMatrix", "need at least 2 rows and 1 column")
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewValueError("CorrelationMatrix",
					fmt.Sprintf("NaN or Inf at row %d column %d", i, j))
			}
		}
	}
	var corr mat.SymDense
	stat.CorrelationMatrix(&corr, X, nil)
	return &corr, nil
}

// HighCorrelationPairs returns every column pair with |r| > threshold,
// sorted by |r| descending and then by column order. Fewer than two columns
// yields an empty result. A constant column has undefined correlation and
// never forms a pair.
func HighCorrelationPairs(X mat.Matrix, names []string, threshold float64) ([]CorrelatedPair, error) {
	_, c := X.Dims()
	if len(names) != c {
		return nil, errors.NewDimensionError("HighCorrelationPairs", c, len(names), 1)
	}
	if threshold < 0 || threshold > 1 {
		return nil, errors.NewValidationError("threshold", "must be within [0, 1]", threshold)
	}
	if c < 2 {
		return nil, nil
	}

	corr, err := CorrelationMatrix(X)
	if err != nil {
		return nil, err
	}

	type indexed struct {
		pair CorrelatedPair
		i, j int
	}
	var found []indexed
	for i := 0; i < c; i++ {
		for j := i + 1; j < c; j++ {
			r := corr.At(i, j)
			if math.IsNaN(r) || math.Abs(r) <= threshold {
				continue
			}
			found = append(found, indexed{CorrelatedPair{First: names[i], Second: names[j], R: r}, i, j})
		}
	}
	sort.SliceStable(found, func(a, b int) bool {
		ra, rb := math.Abs(found[a].pair.R), math.Abs(found[b].pair.R)
		if ra != rb {
			return ra > rb
		}
		if found[a].i != found[b].i {
			return found[a].i < found[b].i
		}
		return found[a].j < found[b].j
	})

	pairs := make([]CorrelatedPair, len(found))
	for k, f := range found {
		pairs[k] = f.pair
	}
	return pairs, nil
}

// DropCorrelated suggests one column to drop per flagged pair: the second
// column of the pair, unless it is already dropped or the first column is.
// The result keeps the order in which the pairs were given.
func DropCorrelated(pairs []CorrelatedPair) []string {
	dropped := make(map[string]bool)
	var out []string
	for _, p := range pairs {
		if dropped[p.First] || dropped[p.Second] {
			continue
		}
		dropped[p.Second] = true
		out = append(out, p.Second)
	}
	return out
}

// SelectColumns returns the columns of X whose names are not in drop,
// together with the surviving names.
func SelectColumns(X mat.Matrix, names []string, drop []string) (*mat.Dense, []string) {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	var keep []int
	var kept []string
	for j, n := range names {
		if !skip[n] {
			keep = append(keep, j)
			kept = append(kept, n)
		}
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, len(keep), nil)
	for k, j := range keep {
		for i := 0; i < r; i++ {
			out.Set(i, k, X.At(i, j))
		}
	}
	return out, kept
}
