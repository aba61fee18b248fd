package dataset

import (
	"github.com/YuminosukeSato/pimaml/pkg/log"
)

// NormalizeMissing replaces every exact zero in the named columns with the
// missing marker and returns how many cells it replaced. No other cell is
// touched. An unknown column name is an error and leaves t unchanged.
func NormalizeMissing(t *Table, columns []string) (int, error) {
	idx := make([]int, len(columns))
	for k, name := range columns {
		j, err := t.ColumnIndex(name)
		if err != nil {
			return 0, err
		}
		idx[k] = j
	}

	logger := log.GetLoggerWithName("dataset")
	total := 0
	for k, j := range idx {
		replaced := 0
		for i := 0; i < t.Rows(); i++ {
			if t.X.At(i, j) == 0 {
				t.X.Set(i, j, Missing)
				replaced++
			}
		}
		if replaced > 0 {
			logger.Debug("Zeros recoded as missing", log.ColumnKey, columns[k], log.MissingKey, replaced)
		}
		total += replaced
	}
	return total, nil
}

// MissingCounts returns the number of missing cells per column, in column
// order.
func (t *Table) MissingCounts() []int {
	_, c := t.X.Dims()
	counts := make([]int, c)
	for i := 0; i < t.Rows(); i++ {
		for j := 0; j < c; j++ {
			if IsMissing(t.X.At(i, j)) {
				counts[j]++
			}
		}
	}
	return counts
}

// ColumnMissing is one entry of a MissingnessReport.
type ColumnMissing struct {
	Column  string  `json:"column"`
	Missing int     `json:"missing"`
	Percent float64 `json:"percent"`
}

// MissingnessReport summarises where values are missing.
type MissingnessReport struct {
	Columns      []ColumnMissing `json:"columns"`
	TotalMissing int             `json:"total_missing"`
	CompleteRows int             `json:"complete_rows"`
}

// Missingness builds a MissingnessReport for t.
func Missingness(t *Table) MissingnessReport {
	counts := t.MissingCounts()
	rep := MissingnessReport{Columns: make([]ColumnMissing, len(counts))}
	n := t.Rows()
	for j, m := range counts {
		pct := 0.0
		if n > 0 {
			pct = 100 * float64(m) / float64(n)
		}
		rep.Columns[j] = ColumnMissing{Column: t.Columns[j], Missing: m, Percent: pct}
		rep.TotalMissing += m
	}
	_, c := t.X.Dims()
	for i := 0; i < n; i++ {
		complete := true
		for j := 0; j < c; j++ {
			if IsMissing(t.X.At(i, j)) {
				complete = false
				break
			}
		}
		if complete {
			rep.CompleteRows++
		}
	}
	return rep
}
