package metrics

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func vec(v []float64) *mat.VecDense {
	if len(v) == 0 {
		return nil
	}
	return mat.NewVecDense(len(v), v)
}

// pairwiseAUC は正例と負例の全ペアを数える素朴な AUC (同点は 0.5)
func pairwiseAUC(yTrue, score []float64) float64 {
	var hit, pairs float64
	for i := range yTrue {
		if yTrue[i] != 1 {
			continue
		}
		for j := range yTrue {
			if yTrue[j] != 0 {
				continue
			}
			pairs++
			switch {
			case score[i] > score[j]:
				hit++
			case score[i] == score[j]:
				hit += 0.5
			}
		}
	}
	return hit / pairs
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "separated scores",
			yTrue: []float64{0, 0, 0, 1, 1, 1},
			yPred: []float64{0.1, 0.2, 0.3, 0.7, 0.8, 0.9},
			want:  1,
		},
		{
			name:  "reversed scores",
			yTrue: []float64{0, 0, 0, 1, 1, 1},
			yPred: []float64{0.9, 0.8, 0.7, 0.3, 0.2, 0.1},
			want:  0,
		},
		{
			// 森の票の割合のように同点が多いスコア
			name:  "vote shares with ties",
			yTrue: []float64{0, 0, 0, 1, 1, 1},
			yPred: []float64{0.1, 0.4, 0.4, 0.4, 0.8, 1.0},
			want:  8.0 / 9.0,
		},
		{
			name:  "tie across classes counts half",
			yTrue: []float64{0, 1, 0, 1},
			yPred: []float64{0.2, 0.2, 0.6, 0.9},
			want:  0.625,
		},
		{
			name:  "constant scores",
			yTrue: []float64{1, 0, 1, 0, 0},
			yPred: []float64{0.5, 0.5, 0.5, 0.5, 0.5},
			want:  0.5,
		},
		{
			// 層化されていない小さな fold では片方のクラスしか出ないことがある
			name:  "fold without positives",
			yTrue: []float64{0, 0, 0},
			yPred: []float64{0.3, 0.6, 0.9},
			want:  0.5,
		},
		{
			name:    "probability labels",
			yTrue:   []float64{0, 0.5, 1},
			yPred:   []float64{0.1, 0.5, 0.9},
			wantErr: true,
		},
		{
			name:    "length mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0.5},
			wantErr: true,
		},
		{
			name:    "empty",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(vec(tt.yTrue), vec(tt.yPred))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAUCMatchesPairwiseCount(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	for trial := 0; trial < 20; trial++ {
		n := 20 + rng.IntN(40)
		yTrue := make([]float64, n)
		score := make([]float64, n)
		yTrue[0], yTrue[1] = 0, 1
		for i := range yTrue {
			if i > 1 {
				yTrue[i] = float64(rng.IntN(2))
			}
			// 11 段階に丸めて同点を多く作る
			score[i] = math.Round(10*(0.3*yTrue[i]+0.7*rng.Float64())) / 10
		}
		got, err := AUC(vec(yTrue), vec(score))
		require.NoError(t, err)
		assert.InDelta(t, pairwiseAUC(yTrue, score), got, 1e-12, "trial %d", trial)
	}
}

func TestAUCInvariantToMonotoneTransform(t *testing.T) {
	yTrue := vec([]float64{0, 1, 1, 0, 1, 0, 0, 1})
	score := []float64{-1.2, 0.3, 2.5, 0.3, -0.4, -2.0, 0.9, 1.1}
	// 決定関数の値と Platt 確率は同じ順序なので AUC も同じ
	proba := make([]float64, len(score))
	for i, s := range score {
		proba[i] = 1 / (1 + math.Exp(-2*s+0.5))
	}

	a, err := AUC(yTrue, vec(score))
	require.NoError(t, err)
	b, err := AUC(yTrue, vec(proba))
	require.NoError(t, err)
	assert.InDelta(t, a, b, 1e-12)
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{
			name:  "coin flip",
			yTrue: []float64{0, 1, 1, 0},
			yPred: []float64{0.5, 0.5, 0.5, 0.5},
			want:  math.Ln2,
		},
		{
			name:  "mixed",
			yTrue: []float64{1, 0},
			yPred: []float64{0.8, 0.4},
			want:  -(math.Log(0.8) + math.Log(0.6)) / 2,
		},
		{
			name:  "confident and wrong is clipped",
			yTrue: []float64{1},
			yPred: []float64{0},
			want:  -math.Log(1e-15),
		},
		{
			name:    "non-binary labels",
			yTrue:   []float64{2},
			yPred:   []float64{0.5},
			wantErr: true,
		},
		{
			name:    "length mismatch",
			yTrue:   []float64{0, 1},
			yPred:   []float64{0.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinaryLogLoss(vec(tt.yTrue), vec(tt.yPred))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, math.IsInf(got, 0))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{"all correct", []float64{0, 1, 1}, []float64{0, 1, 1}, 1, false},
		{"two of three", []float64{0, 1, 1}, []float64{0, 0, 1}, 2.0 / 3.0, false},
		{"majority guess", []float64{0, 0, 0, 1}, []float64{0, 0, 0, 0}, 0.75, false},
		{"length mismatch", []float64{0, 1}, []float64{0}, 0, true},
		{"empty", nil, nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(vec(tt.yTrue), vec(tt.yPred))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)

			cm, err := NewConfusionMatrix(vec(tt.yTrue), vec(tt.yPred))
			require.NoError(t, err)
			assert.InDelta(t, got, cm.Accuracy(), 1e-12)
		})
	}
}
