package dataset

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnSummary holds descriptive statistics of one predictor over its
// observed (non-missing) values.
type ColumnSummary struct {
	Column   string  `json:"column"`
	Observed int     `json:"observed"`
	Missing  int     `json:"missing"`
	Zeros    int     `json:"zeros"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Median   float64 `json:"median"`
	Max      float64 `json:"max"`
}

// Describe summarises every predictor column. Statistics of a column with
// no observed values are NaN.
func Describe(t *Table) []ColumnSummary {
	out := make([]ColumnSummary, len(t.Columns))
	for j, name := range t.Columns {
		s := ColumnSummary{Column: name}
		var obs []float64
		for i := 0; i < t.Rows(); i++ {
			v := t.X.At(i, j)
			switch {
			case IsMissing(v):
				s.Missing++
			default:
				if v == 0 {
					s.Zeros++
				}
				obs = append(obs, v)
			}
		}
		s.Observed = len(obs)
		if len(obs) == 0 {
			nan := math.NaN()
			s.Mean, s.StdDev, s.Min, s.Median, s.Max = nan, nan, nan, nan, nan
		} else {
			s.Mean, s.StdDev = stat.MeanStdDev(obs, nil)
			s.Min = floats.Min(obs)
			s.Max = floats.Max(obs)
			sorted := append([]float64(nil), obs...)
			floats.Argsort(sorted, make([]int, len(sorted)))
			s.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		}
		out[j] = s
	}
	return out
}
