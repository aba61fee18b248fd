package model_selection

import (
	"testing"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamGridExpand(t *testing.T) {
	grid := ParamGrid{
		"sigma": {0.01, 0.05},
		"C":     {0.25, 0.5, 1.0},
	}
	got, err := grid.Expand()
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.Equal(t, 6, grid.Size())

	// keys sorted ("C" < "sigma"), last key varies fastest
	assert.Equal(t, Params{"C": 0.25, "sigma": 0.01}, got[0])
	assert.Equal(t, Params{"C": 0.25, "sigma": 0.05}, got[1])
	assert.Equal(t, Params{"C": 1.0, "sigma": 0.05}, got[5])
}

func TestParamGridExpandErrors(t *testing.T) {
	var ce *errors.ConfigError

	_, err := ParamGrid{}.Expand()
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "grid", ce.Field)

	_, err = ParamGrid{"mtry": {}}.Expand()
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "grid.mtry", ce.Field)
}

func TestParamsGetters(t *testing.T) {
	p := Params{
		"C":       1,
		"sigma":   0.05,
		"mtry":    3.0,
		"frac":    2.5,
		"hidden":  []any{4, 2.0},
		"layers":  []int{6, 3},
		"kernel":  "rbf",
		"badlist": "4,2",
	}

	c, err := p.Float("C")
	require.NoError(t, err)
	assert.Equal(t, 1.0, c)

	m, err := p.Int("mtry")
	require.NoError(t, err)
	assert.Equal(t, 3, m)

	_, err = p.Int("frac")
	assert.Error(t, err)

	h, err := p.Ints("hidden")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, h)

	l, err := p.Ints("layers")
	require.NoError(t, err)
	assert.Equal(t, []int{6, 3}, l)

	_, err = p.Float("kernel")
	assert.Error(t, err)
	_, err = p.Float("missing")
	assert.Error(t, err)
	_, err = p.Ints("badlist")
	assert.Error(t, err)

	assert.Equal(t, "{C=1, sigma=0.05}", Params{"sigma": 0.05, "C": 1}.String())
}
