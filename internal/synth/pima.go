// Package synth generates seeded synthetic data for tests: Pima-like
// observation tables and simple two-class problems.
package synth

import (
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/pimaml/dataset"
	"gonum.org/v1/gonum/mat"
)

// PimaConfig controls Pima.
type PimaConfig struct {
	Rows int
	Seed uint64
	// ZeroRate is the base rate of zero-coded missing values in the
	// designated columns. serumInsulin and tricepThickness get a higher
	// rate, and serumInsulin is more often missing when glucose is low.
	ZeroRate float64
}

// Pima returns a table with the same schema and rough marginals as the
// Pima Indians diabetes data. Rows are independent given the seed.
func Pima(cfg PimaConfig) *dataset.Table {
	rng := rand.New(rand.NewPCG(cfg.Seed, 0x9e3779b97f4a7c15))
	n := cfg.Rows
	X := mat.NewDense(n, len(dataset.Columns), nil)
	labels := make([]dataset.Label, n)

	for i := 0; i < n; i++ {
		age := 21 + math.Floor(rng.ExpFloat64()*12)
		preg := math.Floor(math.Min(17, rng.ExpFloat64()*(age-18)/6))
		// 潜在的な代謝リスク
		risk := rng.NormFloat64()
		glucose := clamp(120+25*risk+0.3*(age-33)+8*rng.NormFloat64(), 50, 199)
		bmi := clamp(32+4*risk+5*rng.NormFloat64(), 18, 67)
		triceps := clamp(0.9*bmi-0.5+6*rng.NormFloat64(), 7, 99)
		insulin := clamp(1.3*glucose-30+40*rng.NormFloat64(), 14, 846)
		pressure := clamp(62+0.25*bmi+0.1*age+10*rng.NormFloat64(), 24, 122)
		pedigree := clamp(math.Exp(-1.1+0.6*rng.NormFloat64()), 0.078, 2.42)

		z := -0.9 + 1.4*risk + 0.03*(age-33) + 0.8*(pedigree-0.47) + 0.5*rng.NormFloat64()
		if rng.Float64() < 1/(1+math.Exp(-2*z)) {
			labels[i] = dataset.Diabetic
		}

		row := []float64{
			preg,
			math.Round(glucose),
			math.Round(pressure),
			math.Round(triceps),
			math.Round(insulin),
			math.Round(bmi*10) / 10,
			math.Round(pedigree*1000) / 1000,
			age,
		}
		if cfg.ZeroRate > 0 {
			rate := map[int]float64{
				1: cfg.ZeroRate / 4,
				2: cfg.ZeroRate / 2,
				3: cfg.ZeroRate * 3,
				4: cfg.ZeroRate * 4 * (1.5 - clamp((glucose-80)/120, 0, 1)),
				5: cfg.ZeroRate / 4,
			}
			for j := 1; j <= 5; j++ {
				if rng.Float64() < rate[j] {
					row[j] = 0
				}
			}
		}
		X.SetRow(i, row)
	}

	cols := make([]string, len(dataset.Columns))
	copy(cols, dataset.Columns)
	t, err := dataset.NewTable(cols, X, labels)
	if err != nil {
		panic(err)
	}
	return t
}

// Blobs returns n rows of p features drawn from two Gaussian clouds whose
// means differ by sep along every feature. Labels alternate 0, 1 so that
// classes are balanced; the first informative features carry the signal.
func Blobs(n, p int, sep float64, seed uint64) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewPCG(seed, 1))
	X := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		y.SetVec(i, label)
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64()+sep*(label-0.5))
		}
	}
	return X, y
}

// Rings returns a problem that is not linearly separable: class 1 lies on
// an outer ring and class 0 in an inner disc (first two features).
func Rings(n int, seed uint64) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewPCG(seed, 2))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		r := 0.2 + 0.6*rng.Float64()
		if label == 1 {
			r = 1.6 + 0.6*rng.Float64()
		}
		theta := 2 * math.Pi * rng.Float64()
		X.Set(i, 0, r*math.Cos(theta))
		X.Set(i, 1, r*math.Sin(theta))
		y.SetVec(i, label)
	}
	return X, y
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
