package model_selection

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Fold is one train/validation partition. Repeat is the repetition of a
// repeated splitter (0 otherwise) and Index the fold within it.
type Fold struct {
	Repeat int
	Index  int
	Train  []int
	Test   []int
}

// Splitter generates cross-validation folds for the rows of y.
type Splitter interface {
	Split(y mat.Vector) ([]Fold, error)
	GetNSplits() int
}

// KFold splits rows into NSplits consecutive folds, optionally after a
// seeded shuffle.
type KFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewKFold creates a k-fold splitter.
func NewKFold(nSplits int, shuffle bool, seed uint64) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, Seed: seed}
}

// GetNSplits returns the number of folds.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold.
func (kf *KFold) Split(y mat.Vector) ([]Fold, error) {
	n := y.Len()
	if err := checkSplits(kf.NSplits, n); err != nil {
		return nil, err
	}
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.Seed, kf.Seed))
		r.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}

	assign := make([]int, n)
	foldSize, remainder := n/kf.NSplits, n%kf.NSplits
	pos := 0
	for f := 0; f < kf.NSplits; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		for _, i := range indices[pos : pos+size] {
			assign[i] = f
		}
		pos += size
	}
	return buildFolds(assign, kf.NSplits, 0), nil
}

// StratifiedKFold keeps the class proportions of y in every fold. Rows of
// each class are shuffled (when Shuffle is set) and dealt to folds in turn.
type StratifiedKFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewStratifiedKFold creates a stratified k-fold splitter.
func NewStratifiedKFold(nSplits int, shuffle bool, seed uint64) *StratifiedKFold {
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, Seed: seed}
}

// GetNSplits returns the number of folds.
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
func (skf *StratifiedKFold) Split(y mat.Vector) ([]Fold, error) {
	return skf.split(y, 0)
}

func (skf *StratifiedKFold) split(y mat.Vector, repeat int) ([]Fold, error) {
	n := y.Len()
	if err := checkSplits(skf.NSplits, n); err != nil {
		return nil, err
	}
	classes, members := groupByClass(y)
	r := rand.New(rand.NewPCG(skf.Seed, skf.Seed))

	assign := make([]int, n)
	next := 0
	for _, label := range classes {
		idx := members[label]
		if len(idx) < skf.NSplits {
			log.GetLoggerWithName("model_selection").Warn("Class has fewer members than folds",
				"cv.class", label,
				"cv.members", len(idx),
				"cv.n_splits", skf.NSplits,
			)
		}
		if skf.Shuffle {
			idx = append([]int(nil), idx...)
			r.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		// クラスをまたいで配り続けることで各 fold のサイズ差を 1 以内に保つ
		for _, i := range idx {
			assign[i] = next % skf.NSplits
			next++
		}
	}
	return buildFolds(assign, skf.NSplits, repeat), nil
}

// RepeatedStratifiedKFold runs StratifiedKFold NRepeats times; repetition r
// shuffles with Seed+r.
type RepeatedStratifiedKFold struct {
	NSplits  int
	NRepeats int
	Seed     uint64
}

// NewRepeatedStratifiedKFold creates a repeated stratified splitter.
func NewRepeatedStratifiedKFold(nSplits, nRepeats int, seed uint64) *RepeatedStratifiedKFold {
	return &RepeatedStratifiedKFold{NSplits: nSplits, NRepeats: nRepeats, Seed: seed}
}

// GetNSplits returns the total number of folds, NSplits·NRepeats.
func (rs *RepeatedStratifiedKFold) GetNSplits() int {
	return rs.NSplits * rs.NRepeats
}

// Split returns NSplits·NRepeats folds ordered by repetition.
func (rs *RepeatedStratifiedKFold) Split(y mat.Vector) ([]Fold, error) {
	if rs.NRepeats < 1 {
		return nil, errors.NewConfigError("cv.repeats", fmt.Sprintf("must be at least 1, got %d", rs.NRepeats))
	}
	folds := make([]Fold, 0, rs.GetNSplits())
	for r := 0; r < rs.NRepeats; r++ {
		skf := &StratifiedKFold{NSplits: rs.NSplits, Shuffle: true, Seed: rs.Seed + uint64(r)}
		f, err := skf.split(y, r)
		if err != nil {
			return nil, err
		}
		folds = append(folds, f...)
	}
	return folds, nil
}

func checkSplits(nSplits, n int) error {
	if nSplits < 2 {
		return errors.NewConfigError("cv.folds", fmt.Sprintf("must be at least 2, got %d", nSplits))
	}
	if n < nSplits {
		return errors.NewConfigError("cv.folds", fmt.Sprintf("%d folds for only %d rows", nSplits, n))
	}
	return nil
}

// buildFolds turns a row→fold assignment into folds with sorted indices.
func buildFolds(assign []int, nSplits, repeat int) []Fold {
	folds := make([]Fold, nSplits)
	for f := range folds {
		folds[f] = Fold{Repeat: repeat, Index: f}
	}
	for i, f := range assign {
		for g := range folds {
			if g == f {
				folds[g].Test = append(folds[g].Test, i)
			} else {
				folds[g].Train = append(folds[g].Train, i)
			}
		}
	}
	for f := range folds {
		sort.Ints(folds[f].Test)
		sort.Ints(folds[f].Train)
	}
	return folds
}
