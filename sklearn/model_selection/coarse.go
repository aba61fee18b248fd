package model_selection

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// CoarseToFine repeats a grid search over one numeric parameter, each time
// on a finer grid spanning the neighbours of the previous best value. The
// other parameters are held at the previous best.
type CoarseToFine struct {
	Search *GridSearchCV
	// Stages is the total number of searches, including the first.
	Stages int
	Param  string
	// Points is the number of values in each refined grid.
	Points int
	// Log spaces refined values geometrically.
	Log bool
}

// CoarseToFineResult holds every stage and the overall winner.
type CoarseToFineResult struct {
	Stages []*SearchResult
	// Best is the stage whose best candidate scored highest; an earlier
	// stage wins ties.
	Best *SearchResult
}

// Run executes the stages.
func (cf *CoarseToFine) Run(ctx context.Context, X mat.Matrix, y *mat.VecDense) (*CoarseToFineResult, error) {
	if cf.Search == nil {
		return nil, errors.NewConfigError("coarse_to_fine.search", "not set")
	}
	if cf.Stages < 1 {
		return nil, errors.NewConfigError("coarse_to_fine.stages", fmt.Sprintf("must be at least 1, got %d", cf.Stages))
	}
	if cf.Stages > 1 && cf.Points < 2 {
		return nil, errors.NewConfigError("coarse_to_fine.points", fmt.Sprintf("must be at least 2, got %d", cf.Points))
	}

	search := *cf.Search
	cands, err := search.candidates()
	if err != nil {
		return nil, err
	}
	values, err := paramValues(cands, cf.Param)
	if err != nil {
		return nil, err
	}

	out := &CoarseToFineResult{}
	logger := search.logger().With(log.ModelFamilyKey, search.Name)
	for stage := 0; stage < cf.Stages; stage++ {
		res, err := search.Fit(ctx, X, y)
		if err != nil {
			return nil, errors.Wrapf(err, "coarse-to-fine stage %d", stage)
		}
		out.Stages = append(out.Stages, res)
		if out.Best == nil || res.Best().MeanScore > out.Best.Best().MeanScore+tieTolerance {
			out.Best = res
		}

		if stage == cf.Stages-1 {
			break
		}
		bestParams := res.Best().Params
		v, err := bestParams.Float(cf.Param)
		if err != nil {
			return nil, err
		}
		lo, hi := neighbours(values, v)
		if lo == hi {
			break
		}
		if cf.Log && lo > 0 {
			values = geomSpace(lo, hi, cf.Points)
		} else {
			values = make([]float64, cf.Points)
			floats.Span(values, lo, hi)
		}

		refined := make([]Params, len(values))
		for i, val := range values {
			p := bestParams.Clone()
			p[cf.Param] = val
			refined[i] = p
		}
		search.Candidates = refined
		logger.Info("Refining grid",
			log.SearchStageKey, stage+1,
			log.HyperParamsKey, fmt.Sprintf("%s in [%g, %g]", cf.Param, lo, hi),
			log.CandidatesKey, len(refined),
		)
	}
	return out, nil
}

func paramValues(cands []Params, key string) ([]float64, error) {
	seen := map[float64]bool{}
	var out []float64
	for _, p := range cands {
		v, err := p.Float(key)
		if err != nil {
			return nil, err
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out, nil
}

// neighbours returns the grid values on either side of v; at an edge of
// the grid v itself is used.
func neighbours(sorted []float64, v float64) (lo, hi float64) {
	i := sort.SearchFloat64s(sorted, v)
	lo, hi = v, v
	if i > 0 {
		lo = sorted[i-1]
	}
	if i < len(sorted) && sorted[i] == v {
		i++
	}
	if i < len(sorted) {
		hi = sorted[i]
	}
	return lo, hi
}

func geomSpace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	floats.LogSpan(out, lo, hi)
	for i := range out {
		out[i] = roundSig(out[i])
	}
	// LogSpan は端点を厳密には再現しないので揃える
	out[0], out[n-1] = lo, hi
	return out
}

func roundSig(v float64) float64 {
	if v == 0 {
		return 0
	}
	scale := math.Pow(10, 10-math.Floor(math.Log10(math.Abs(v))))
	return math.Round(v*scale) / scale
}
