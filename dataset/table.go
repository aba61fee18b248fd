// Package dataset holds the observation table: eight numeric predictors per
// row plus the binary diabetes label. It covers the first three pipeline
// stages: loading, label encoding and missingness normalisation.
package dataset

import (
	"math"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Canonical predictor names, in file order.
const (
	TimesPregnant     = "timesPregnant"
	PlasmaGlucose     = "plasmaGlucose"
	DiastolicPressure = "diastolicPressure"
	TricepThickness   = "tricepThickness"
	SerumInsulin      = "serumInsulin"
	BMI               = "bmi"
	PedigreeFunction  = "pedigreeFunction"
	Age               = "age"

	// LabelColumn is the name given to the ninth (outcome) column.
	LabelColumn = "diabetes"
)

// Columns lists the predictor columns in canonical order.
var Columns = []string{
	TimesPregnant, PlasmaGlucose, DiastolicPressure, TricepThickness,
	SerumInsulin, BMI, PedigreeFunction, Age,
}

// DesignatedZeroColumns are the predictors in which a zero is biologically
// impossible and therefore encodes a missing measurement.
var DesignatedZeroColumns = []string{
	PlasmaGlucose, DiastolicPressure, TricepThickness, SerumInsulin, BMI,
}

// Missing is the in-memory missing marker.
var Missing = math.NaN()

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Table is the observation table. X has one row per observation and one
// column per entry of Columns; Labels is parallel to the rows of X.
type Table struct {
	Columns []string
	X       *mat.Dense
	Labels  []Label
}

// NewTable builds a table, checking that the shapes agree.
func NewTable(columns []string, X *mat.Dense, labels []Label) (*Table, error) {
	r, c := X.Dims()
	if c != len(columns) {
		return nil, errors.NewDimensionError("dataset.NewTable", len(columns), c, 1)
	}
	if r != len(labels) {
		return nil, errors.NewDimensionError("dataset.NewTable", r, len(labels), 0)
	}
	return &Table{Columns: append([]string(nil), columns...), X: X, Labels: labels}, nil
}

// Rows returns the number of observations.
func (t *Table) Rows() int { return len(t.Labels) }

// ColumnIndex returns the position of name in t.Columns.
func (t *Table) ColumnIndex(name string) (int, error) {
	for j, c := range t.Columns {
		if c == name {
			return j, nil
		}
	}
	return -1, errors.NewValidationError("column", "unknown column", name)
}

// Column returns a copy of the named predictor column.
func (t *Table) Column(name string) ([]float64, error) {
	j, err := t.ColumnIndex(name)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, j, t.X), nil
}

// LabelVector encodes the labels as 1 (Diabetic) and 0 (notDiabetic).
func (t *Table) LabelVector() *mat.VecDense {
	v := mat.NewVecDense(len(t.Labels), nil)
	for i, l := range t.Labels {
		v.SetVec(i, l.Float())
	}
	return v
}

// ClassCounts returns the number of notDiabetic and Diabetic rows.
func (t *Table) ClassCounts() (negative, positive int) {
	for _, l := range t.Labels {
		if l == Diabetic {
			positive++
		} else {
			negative++
		}
	}
	return negative, positive
}

// Subset returns a new table with the given rows, in the given order.
func (t *Table) Subset(idx []int) *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		X:       &mat.Dense{},
		Labels:  make([]Label, len(idx)),
	}
	if len(idx) == 0 {
		return out
	}
	_, c := t.X.Dims()
	out.X = mat.NewDense(len(idx), c, nil)
	for k, i := range idx {
		out.X.SetRow(k, t.X.RawRowView(i))
		out.Labels[k] = t.Labels[i]
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	return &Table{
		Columns: append([]string(nil), t.Columns...),
		X:       mat.DenseCopyOf(t.X),
		Labels:  append([]Label(nil), t.Labels...),
	}
}

// WithX returns a table sharing labels and column names but holding X.
// Stages that transform the predictors use it to hand the next stage a new
// matrix instead of mutating the previous one.
func (t *Table) WithX(X *mat.Dense) (*Table, error) {
	return NewTable(t.Columns, X, t.Labels)
}
