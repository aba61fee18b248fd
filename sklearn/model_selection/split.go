// Package model_selection provides train/test splitting, k-fold
// cross-validation splitters and hyper-parameter search.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TrainTestSplit permutes [0, n) with a seeded generator and returns the
// first floor(trainFrac·n) indices as the training set and the rest as the
// test set, both sorted ascending.
func TrainTestSplit(n int, trainFrac float64, seed uint64) (train, test []int, err error) {
	nTrain, err := trainSize(n, trainFrac)
	if err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	train = append([]int(nil), perm[:nTrain]...)
	test = append([]int(nil), perm[nTrain:]...)
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// StratifiedTrainTestSplit is TrainTestSplit that keeps the class
// proportions of y in both partitions. The training set has the same size
// floor(trainFrac·n); leftover slots go to the classes with the largest
// fractional share.
func StratifiedTrainTestSplit(y mat.Vector, trainFrac float64, seed uint64) (train, test []int, err error) {
	n := y.Len()
	nTrain, err := trainSize(n, trainFrac)
	if err != nil {
		return nil, nil, err
	}
	classes, members := groupByClass(y)
	rng := rand.New(rand.NewPCG(seed, seed))

	take := make([]int, len(classes))
	frac := make([]float64, len(classes))
	assigned := 0
	for c, label := range classes {
		exact := trainFrac * float64(len(members[label]))
		take[c] = int(math.Floor(exact))
		frac[c] = exact - float64(take[c])
		assigned += take[c]
	}
	order := make([]int, len(classes))
	for c := range order {
		order[c] = c
	}
	sort.SliceStable(order, func(a, b int) bool { return frac[order[a]] > frac[order[b]] })
	for k := 0; assigned < nTrain; k++ {
		take[order[k%len(order)]]++
		assigned++
	}

	for c, label := range classes {
		idx := append([]int(nil), members[label]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		train = append(train, idx[:take[c]]...)
		test = append(test, idx[take[c]:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

func trainSize(n int, trainFrac float64) (int, error) {
	if math.IsNaN(trainFrac) || trainFrac <= 0 || trainFrac >= 1 {
		return 0, errors.NewConfigError("train_fraction", fmt.Sprintf("must be in (0, 1), got %v", trainFrac))
	}
	nTrain := int(math.Floor(trainFrac * float64(n)))
	if nTrain == 0 || nTrain == n {
		return 0, errors.NewConfigError("train_fraction",
			fmt.Sprintf("%v of %d rows leaves an empty partition", trainFrac, n))
	}
	return nTrain, nil
}

// groupByClass returns the distinct labels in ascending order and the row
// indices of each, in row order.
func groupByClass(y mat.Vector) ([]float64, map[float64][]int) {
	members := make(map[float64][]int)
	for i := 0; i < y.Len(); i++ {
		v := y.AtVec(i)
		members[v] = append(members[v], i)
	}
	classes := make([]float64, 0, len(members))
	for label := range members {
		classes = append(classes, label)
	}
	sort.Float64s(classes)
	return classes, members
}

// TakeRows copies the given rows of X into a new matrix.
func TakeRows(X mat.Matrix, idx []int) *mat.Dense {
	_, c := X.Dims()
	if len(idx) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(idx), c, nil)
	for a, i := range idx {
		for j := 0; j < c; j++ {
			out.Set(a, j, X.At(i, j))
		}
	}
	return out
}

// TakeVec copies the given elements of y into a new vector.
func TakeVec(y mat.Vector, idx []int) *mat.VecDense {
	if len(idx) == 0 {
		return &mat.VecDense{}
	}
	out := mat.NewVecDense(len(idx), nil)
	for a, i := range idx {
		out.SetVec(a, y.AtVec(i))
	}
	return out
}
