package svm

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// tau replaces a non-positive curvature in working-set selection.
const tau = 1e-12

// smoResult holds the dual solution of the C-SVM problem.
type smoResult struct {
	alpha     []float64
	rho       float64
	iter      int
	converged bool
}

// solveSMO solves
//
//	min ½ αᵀQα − eᵀα  s.t. yᵀα = 0, 0 ≤ α ≤ C,  Q_ij = y_i y_j K_ij
//
// by sequential minimal optimisation with second-order working-set
// selection (Fan, Chen and Lin, 2005). y holds ±1.
func solveSMO(K *mat.SymDense, y []float64, C, eps float64, maxIter int) smoResult {
	n := len(y)
	alpha := make([]float64, n)
	G := make([]float64, n)
	for t := range G {
		G[t] = -1
	}
	upper := func(t int) bool { return alpha[t] >= C }
	lower := func(t int) bool { return alpha[t] <= 0 }

	res := smoResult{alpha: alpha}
	for res.iter = 0; res.iter < maxIter; res.iter++ {
		// i: 違反度最大の変数
		i, gmax := -1, math.Inf(-1)
		for t := 0; t < n; t++ {
			if y[t] > 0 {
				if !upper(t) && -G[t] >= gmax {
					gmax, i = -G[t], t
				}
			} else if !lower(t) && G[t] >= gmax {
				gmax, i = G[t], t
			}
		}

		j, gmax2, objMin := -1, math.Inf(-1), math.Inf(1)
		for t := 0; t < n; t++ {
			var gradDiff float64
			if y[t] > 0 {
				if lower(t) {
					continue
				}
				if G[t] >= gmax2 {
					gmax2 = G[t]
				}
				gradDiff = gmax + G[t]
			} else {
				if upper(t) {
					continue
				}
				if -G[t] >= gmax2 {
					gmax2 = -G[t]
				}
				gradDiff = gmax - G[t]
			}
			if i < 0 || gradDiff <= 0 {
				continue
			}
			quad := K.At(i, i) + K.At(t, t) - 2*K.At(i, t)
			if quad <= 0 {
				quad = tau
			}
			if obj := -gradDiff * gradDiff / quad; obj <= objMin {
				objMin, j = obj, t
			}
		}

		if gmax+gmax2 < eps || j < 0 {
			res.converged = true
			break
		}

		oldI, oldJ := alpha[i], alpha[j]
		kij := K.At(i, j)
		quad := K.At(i, i) + K.At(j, j) - 2*kij
		if quad <= 0 {
			quad = tau
		}
		if y[i] != y[j] {
			delta := (-G[i] - G[j]) / quad
			diff := alpha[i] - alpha[j]
			alpha[i] += delta
			alpha[j] += delta
			if diff > 0 {
				if alpha[j] < 0 {
					alpha[j], alpha[i] = 0, diff
				}
			} else if alpha[i] < 0 {
				alpha[i], alpha[j] = 0, -diff
			}
			if diff > 0 {
				if alpha[i] > C {
					alpha[i], alpha[j] = C, C-diff
				}
			} else if alpha[j] > C {
				alpha[j], alpha[i] = C, C+diff
			}
		} else {
			delta := (G[i] - G[j]) / quad
			sum := alpha[i] + alpha[j]
			alpha[i] -= delta
			alpha[j] += delta
			if sum > C {
				if alpha[i] > C {
					alpha[i], alpha[j] = C, sum-C
				}
			} else if alpha[j] < 0 {
				alpha[j], alpha[i] = 0, sum
			}
			if sum > C {
				if alpha[j] > C {
					alpha[j], alpha[i] = C, sum-C
				}
			} else if alpha[i] < 0 {
				alpha[i], alpha[j] = 0, sum
			}
		}

		dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
		for t := 0; t < n; t++ {
			G[t] += y[t] * (y[i]*K.At(t, i)*dI + y[j]*K.At(t, j)*dJ)
		}
	}

	res.rho = computeRho(alpha, G, y, C)
	return res
}

// computeRho averages y_t·G_t over free variables; without free variables
// it takes the midpoint of the feasible interval.
func computeRho(alpha, G, y []float64, C float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	nFree, sumFree := 0, 0.0
	for t := range alpha {
		yG := y[t] * G[t]
		switch {
		case alpha[t] >= C:
			if y[t] < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case alpha[t] <= 0:
			if y[t] > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			nFree++
			sumFree += yG
		}
	}
	if nFree > 0 {
		return sumFree / float64(nFree)
	}
	return (ub + lb) / 2
}
