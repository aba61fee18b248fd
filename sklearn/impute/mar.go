package impute

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultMARAlpha is the significance level of the missingness checks.
const DefaultMARAlpha = 0.05

// MARTest compares a covariate between rows where Column is missing and
// rows where it is observed (Welch two-sample t-test).
type MARTest struct {
	Column       string  `json:"column"`
	Covariate    string  `json:"covariate"`
	MeanMissing  float64 `json:"mean_missing"`
	MeanObserved float64 `json:"mean_observed"`
	T            float64 `json:"t"`
	DF           float64 `json:"df"`
	PValue       float64 `json:"p_value"`
}

// MARDiagnostics runs a Welch t-test for every pair of an incomplete column
// and another column. Rows where the covariate itself is missing are left
// out of that pair. Pairs where either group has fewer than two values are
// skipped. The result is sorted by p-value.
//
// The checks are advisory. Missing-at-random cannot be proven from the data,
// but a small p-value shows that missingness depends on an observed value.
func MARDiagnostics(X mat.Matrix, names []string) ([]MARTest, error) {
	n, c := X.Dims()
	if n == 0 || c == 0 {
		return nil, errors.NewModelError("MARDiagnostics", "empty data", errors.ErrEmptyData)
	}
	if names != nil && len(names) != c {
		return nil, errors.NewDimensionError("MARDiagnostics", c, len(names), 1)
	}
	name := func(j int) string {
		if names == nil {
			return defaultName(j)
		}
		return names[j]
	}

	var tests []MARTest
	for j := 0; j < c; j++ {
		anyMissing := false
		for i := 0; i < n; i++ {
			if math.IsNaN(X.At(i, j)) {
				anyMissing = true
				break
			}
		}
		if !anyMissing {
			continue
		}
		for k := 0; k < c; k++ {
			if k == j {
				continue
			}
			var mis, obs []float64
			for i := 0; i < n; i++ {
				v := X.At(i, k)
				if math.IsNaN(v) {
					continue
				}
				if math.IsNaN(X.At(i, j)) {
					mis = append(mis, v)
				} else {
					obs = append(obs, v)
				}
			}
			t, ok := welch(mis, obs)
			if !ok {
				continue
			}
			t.Column = name(j)
			t.Covariate = name(k)
			tests = append(tests, t)
		}
	}
	sort.SliceStable(tests, func(a, b int) bool {
		return tests[a].PValue < tests[b].PValue
	})
	return tests, nil
}

// WarnMAR emits a MissingnessWarning for each test with p < alpha and
// returns how many were emitted.
func WarnMAR(tests []MARTest, alpha float64) int {
	count := 0
	for _, t := range tests {
		if t.PValue < alpha {
			errors.Warn(&errors.MissingnessWarning{
				Column:    t.Column,
				Covariate: t.Covariate,
				PValue:    t.PValue,
				Alpha:     alpha,
			})
			count++
		}
	}
	return count
}

func welch(a, b []float64) (MARTest, bool) {
	if len(a) < 2 || len(b) < 2 {
		return MARTest{}, false
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))
	sa, sb := va/na, vb/nb
	se := sa + sb
	res := MARTest{MeanMissing: ma, MeanObserved: mb}
	if se == 0 {
		// 両群とも定数
		res.DF = na + nb - 2
		if ma == mb {
			res.PValue = 1
		} else {
			res.T = math.Copysign(math.Inf(1), ma-mb)
			res.PValue = 0
		}
		return res, true
	}
	res.T = (ma - mb) / math.Sqrt(se)
	res.DF = se * se / (sa*sa/(na-1) + sb*sb/(nb-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DF}
	res.PValue = 2 * dist.Survival(math.Abs(res.T))
	if res.PValue > 1 {
		res.PValue = 1
	}
	return res, true
}
