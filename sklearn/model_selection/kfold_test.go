package model_selection

import (
	"testing"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func imbalanced(n, positives int) *mat.VecDense {
	y := mat.NewVecDense(n, nil)
	for i := 0; i < positives; i++ {
		y.SetVec(i, 1)
	}
	return y
}

func checkPartition(t *testing.T, folds []Fold, n int) {
	t.Helper()
	var tests []int
	for _, f := range folds {
		if diff := cmp.Diff(seq(n), union(f.Train, f.Test)); diff != "" {
			t.Errorf("fold %d/%d is not a partition:\n%s", f.Repeat, f.Index, diff)
		}
		tests = append(tests, f.Test...)
	}
	if diff := cmp.Diff(seq(n), union(tests, nil)); diff != "" {
		t.Errorf("test folds do not cover every row once:\n%s", diff)
	}
}

func TestKFold(t *testing.T) {
	y := imbalanced(23, 5)
	folds, err := NewKFold(5, true, 3).Split(y)
	require.NoError(t, err)
	require.Len(t, folds, 5)
	checkPartition(t, folds, 23)

	sizes := []int{}
	for _, f := range folds {
		sizes = append(sizes, len(f.Test))
	}
	assert.Equal(t, []int{5, 5, 5, 4, 4}, sizes)

	plain, err := NewKFold(3, false, 0).Split(imbalanced(6, 0))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, plain[0].Test)
	assert.Equal(t, []int{4, 5}, plain[2].Test)
}

func TestStratifiedKFoldKeepsProportions(t *testing.T) {
	y := imbalanced(100, 30)
	folds, err := NewStratifiedKFold(10, true, 1).Split(y)
	require.NoError(t, err)
	require.Len(t, folds, 10)
	checkPartition(t, folds, 100)

	for _, f := range folds {
		pos := 0
		for _, i := range f.Test {
			pos += int(y.AtVec(i))
		}
		assert.Len(t, f.Test, 10)
		assert.Equal(t, 3, pos, "fold %d", f.Index)
	}
}

func TestRepeatedStratifiedKFold(t *testing.T) {
	y := imbalanced(60, 20)
	rs := NewRepeatedStratifiedKFold(5, 3, 9)
	folds, err := rs.Split(y)
	require.NoError(t, err)
	require.Len(t, folds, 15)
	assert.Equal(t, 15, rs.GetNSplits())

	for r := 0; r < 3; r++ {
		checkPartition(t, folds[r*5:(r+1)*5], 60)
		assert.Equal(t, r, folds[r*5].Repeat)
	}
	assert.NotEqual(t, folds[0].Test, folds[5].Test)

	again, err := rs.Split(y)
	require.NoError(t, err)
	assert.Equal(t, folds, again)

	// repetition r uses seed+r
	single, err := NewStratifiedKFold(5, true, 10).Split(y)
	require.NoError(t, err)
	assert.Equal(t, single[0].Test, folds[5].Test)
}

func TestSplitterErrors(t *testing.T) {
	y := imbalanced(4, 2)
	var ce *errors.ConfigError

	_, err := NewKFold(1, false, 0).Split(y)
	assert.True(t, errors.As(err, &ce))

	_, err = NewStratifiedKFold(5, false, 0).Split(y)
	assert.True(t, errors.As(err, &ce))

	_, err = NewRepeatedStratifiedKFold(2, 0, 0).Split(y)
	assert.True(t, errors.As(err, &ce))
}
