package dataset

import (
	"strings"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
)

// Label is the two-level outcome.
type Label int

const (
	NotDiabetic Label = iota
	Diabetic
)

// String returns "Diabetic" or "notDiabetic".
func (l Label) String() string {
	if l == Diabetic {
		return "Diabetic"
	}
	return "notDiabetic"
}

// Float encodes the label as 1 (positive class) or 0.
func (l Label) Float() float64 {
	if l == Diabetic {
		return 1
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// EncodeLabel maps a raw outcome value to a Label. Accepted spellings,
// compared case-insensitively after trimming: 1/0, diabetic/notdiabetic,
// pos/neg, tested_positive/tested_negative.
func EncodeLabel(raw string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "1.0", "diabetic", "pos", "tested_positive":
		return Diabetic, nil
	case "0", "0.0", "notdiabetic", "neg", "tested_negative":
		return NotDiabetic, nil
	default:
		return NotDiabetic, errors.NewValidationError(LabelColumn, "unrecognised class value", raw)
	}
}
