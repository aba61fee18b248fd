package model_selection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
)

// Params is one hyper-parameter assignment.
type Params map[string]any

// Factory builds an unfitted classifier for a hyper-parameter assignment.
type Factory func(Params) (model.Classifier, error)

// Float returns a numeric parameter as float64.
func (p Params) Float(key string) (float64, error) {
	switch v := p[key].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, errors.NewValidationError(key, "parameter not set", nil)
	default:
		return 0, errors.NewValidationError(key, "must be numeric", v)
	}
}

// Int returns an integer parameter. Whole-valued floats are accepted since
// YAML and coarse-to-fine grids produce them.
func (p Params) Int(key string) (int, error) {
	switch v := p[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, errors.NewValidationError(key, "must be an integer", v)
		}
		return int(v), nil
	case nil:
		return 0, errors.NewValidationError(key, "parameter not set", nil)
	default:
		return 0, errors.NewValidationError(key, "must be an integer", v)
	}
}

// Ints returns an integer list parameter such as hidden layer sizes.
func (p Params) Ints(key string) ([]int, error) {
	switch v := p[key].(type) {
	case []int:
		return append([]int(nil), v...), nil
	case []any:
		out := make([]int, len(v))
		for i, e := range v {
			n, err := Params{key: e}.Int(key)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case nil:
		return nil, errors.NewValidationError(key, "parameter not set", nil)
	default:
		return nil, errors.NewValidationError(key, "must be a list of integers", v)
	}
}

// String returns "{a=1, b=x}" with keys sorted.
func (p Params) String() string {
	keys := p.keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Params) keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParamGrid maps each parameter name to its candidate values.
type ParamGrid map[string][]any

// Expand returns the Cartesian product of the grid. Keys are taken in
// sorted order with the last key varying fastest; values keep their given
// order. An empty grid, or a key without values, is a ConfigError.
func (g ParamGrid) Expand() ([]Params, error) {
	if len(g) == 0 {
		return nil, errors.NewConfigError("grid", "no parameters to search")
	}
	keys := make([]string, 0, len(g))
	for k, vals := range g {
		if len(vals) == 0 {
			return nil, errors.NewConfigError("grid."+k, "no candidate values")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []Params{{}}
	for _, k := range keys {
		next := make([]Params, 0, len(out)*len(g[k]))
		for _, base := range out {
			for _, v := range g[k] {
				p := base.Clone()
				p[k] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out, nil
}

// Size returns the number of candidates Expand would produce.
func (g ParamGrid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, vals := range g {
		n *= len(vals)
	}
	return n
}
