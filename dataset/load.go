package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// fieldsPerRecord is eight predictors plus the outcome.
const fieldsPerRecord = 9

type loadConfig struct {
	header bool
	comma  rune
}

// LoadOption configures Load.
type LoadOption func(*loadConfig)

// WithHeader sets whether the first record is a header row (default true).
// Header names are not interpreted; columns are renamed positionally.
func WithHeader(header bool) LoadOption {
	return func(c *loadConfig) { c.header = header }
}

// WithComma sets the field delimiter (default ',').
func WithComma(comma rune) LoadOption {
	return func(c *loadConfig) { c.comma = comma }
}

// LoadFile opens path and calls Load. Failures carry the path.
func LoadFile(path string, opts ...LoadOption) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, withPath(errors.NewLoadError(0, "", "cannot open input", err), path)
	}
	defer f.Close()

	t, err := Load(f, opts...)
	if err != nil {
		return nil, withPath(err, path)
	}
	return t, nil
}

func withPath(err error, path string) error {
	var le *errors.LoadError
	if errors.As(err, &le) {
		le.Path = path
	}
	return err
}

// Load reads a 9-column delimited file: 8 numeric predictors followed by the
// outcome. A record with the wrong field count, a non-numeric or non-finite
// predictor, an unrecognised outcome, or an input without data rows is a
// LoadError carrying the 1-based line number.
func Load(r io.Reader, opts ...LoadOption) (*Table, error) {
	cfg := loadConfig{header: true, comma: ','}
	for _, opt := range opts {
		opt(&cfg)
	}

	rd := csv.NewReader(r)
	rd.Comma = cfg.comma
	rd.FieldsPerRecord = -1
	rd.TrimLeadingSpace = true
	rd.ReuseRecord = true

	var (
		values []float64
		labels []Label
		first  = true
	)
	for {
		record, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, errors.NewLoadError(pe.Line, "", "malformed record", pe.Err)
			}
			return nil, errors.NewLoadError(0, "", "read failed", err)
		}
		line, _ := rd.FieldPos(0)

		if first && cfg.header {
			first = false
			if len(record) != fieldsPerRecord {
				return nil, errors.NewLoadError(line, "", "header must have 9 columns, got "+strconv.Itoa(len(record)), nil)
			}
			continue
		}
		first = false

		if len(record) != fieldsPerRecord {
			return nil, errors.NewLoadError(line, "", "expected 9 fields, got "+strconv.Itoa(len(record)), nil)
		}
		for j := 0; j < len(Columns); j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64)
			if err != nil {
				return nil, errors.NewLoadError(line, Columns[j], "non-numeric value "+strconv.Quote(record[j]), err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewLoadError(line, Columns[j], "non-finite value "+strconv.Quote(record[j]), nil)
			}
			values = append(values, v)
		}
		label, err := EncodeLabel(record[len(Columns)])
		if err != nil {
			return nil, errors.NewLoadError(line, LabelColumn, "invalid class", err)
		}
		labels = append(labels, label)
	}

	if len(labels) == 0 {
		return nil, errors.NewLoadError(0, "", "no data rows", errors.ErrEmptyData)
	}

	t, err := NewTable(Columns, mat.NewDense(len(labels), len(Columns), values), labels)
	if err != nil {
		return nil, err
	}
	neg, pos := t.ClassCounts()
	log.GetLoggerWithName("dataset").Info("Loaded observation table",
		log.SamplesKey, t.Rows(),
		log.FeaturesKey, len(Columns),
		"class.diabetic", pos,
		"class.not_diabetic", neg,
	)
	return t, nil
}
