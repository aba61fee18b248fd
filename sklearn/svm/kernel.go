package svm

import (
	"math"

	"github.com/YuminosukeSato/pimaml/core/parallel"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kernel computes k(a, b).
type Kernel interface {
	Eval(a, b []float64) float64
	Name() string
}

// LinearKernel is k(a, b) = a·b.
type LinearKernel struct{}

func (LinearKernel) Eval(a, b []float64) float64 { return floats.Dot(a, b) }
func (LinearKernel) Name() string                { return "linear" }

// RBFKernel is k(a, b) = exp(-Sigma·‖a−b‖²).
type RBFKernel struct {
	Sigma float64
}

func (k RBFKernel) Eval(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		t := a[i] - b[i]
		d += t * t
	}
	return math.Exp(-k.Sigma * d)
}

func (RBFKernel) Name() string { return "rbf" }

// gram returns the symmetric kernel matrix of rows.
func gram(k Kernel, rows [][]float64) *mat.SymDense {
	n := len(rows)
	K := mat.NewSymDense(n, nil)
	parallel.ParallelizeWithThreshold(n, 256, func(start, end int) {
		for i := start; i < end; i++ {
			for j := i; j < n; j++ {
				K.SetSym(i, j, k.Eval(rows[i], rows[j]))
			}
		}
	})
	return K
}

func matrixRows(X mat.Matrix) [][]float64 {
	r, c := X.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = make([]float64, c)
		for j := range rows[i] {
			rows[i][j] = X.At(i, j)
		}
	}
	return rows
}
