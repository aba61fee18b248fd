package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// validatePair は2つのベクトルが空でなく同じ長さであることを検証する
func validatePair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// checkBinary はラベルが 0 または 1 のみであることを検証する
func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		v := y.AtVec(i)
		if v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// AUC はROC曲線下面積を計算する。yPred は正例(1)のスコア。
//
// Mann-Whitney の U 統計量として順位から求める。同点のスコアは平均順位を
// 使うため、正例と負例の同点ペアは 0.5 として数えられる。
// yTrue が片方のクラスしか含まない場合 AUC は定義されないため、
// UndefinedMetricWarning を出して 0.5 を返す。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validatePair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yPred.AtVec(idx[a]) < yPred.AtVec(idx[b])
	})

	var nPos, nNeg, rankSumPos float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && yPred.AtVec(idx[j+1]) == yPred.AtVec(idx[i]) {
			j++
		}
		// 順位は1始まり、同点区間 [i, j] の平均順位
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				nPos++
				rankSumPos += avgRank
			} else {
				nNeg++
			}
		}
		i = j + 1
	}

	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	return (rankSumPos - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// ROC はROC曲線の点列。Thresholds は降順で、先頭は +Inf (全て負例と判定)。
type ROC struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64
}

// ROCCurve はスコアの各しきい値における偽陽性率と真陽性率を計算する。
// スコアが threshold 以上のサンプルを正例と判定する。
func ROCCurve(yTrue, yScore *mat.VecDense) (*ROC, error) {
	n, err := validatePair("ROCCurve", yTrue, yScore)
	if err != nil {
		return nil, err
	}
	if err := checkBinary("ROCCurve", yTrue); err != nil {
		return nil, err
	}

	idx := make([]int, n)
	var nPos, nNeg float64
	for i := range idx {
		idx[i] = i
		if yTrue.AtVec(i) == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return nil, errors.NewValueError("ROCCurve", "y_true must contain both classes")
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) > yScore.AtVec(idx[b])
	})

	roc := &ROC{
		FPR:        []float64{0},
		TPR:        []float64{0},
		Thresholds: []float64{math.Inf(1)},
	}
	var tp, fp float64
	for i := 0; i < n; {
		thr := yScore.AtVec(idx[i])
		for i < n && yScore.AtVec(idx[i]) == thr {
			if yTrue.AtVec(idx[i]) == 1 {
				tp++
			} else {
				fp++
			}
			i++
		}
		roc.FPR = append(roc.FPR, fp/nNeg)
		roc.TPR = append(roc.TPR, tp/nPos)
		roc.Thresholds = append(roc.Thresholds, thr)
	}
	return roc, nil
}

// Area は台形則でROC曲線下面積を返す。AUC と一致する。
func (r *ROC) Area() float64 {
	var area float64
	for i := 1; i < len(r.FPR); i++ {
		area += (r.FPR[i] - r.FPR[i-1]) * (r.TPR[i] + r.TPR[i-1]) / 2
	}
	return area
}

// BinaryLogLoss は二値分類の交差エントロピー損失を計算する。
// 予測確率は log(0) を避けるため [eps, 1-eps] にクリップされる。
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validatePair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	const eps = 1e-15
	var loss float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yPred.AtVec(i), eps, 1-eps)
		if yTrue.AtVec(i) == 1 {
			loss -= math.Log(p)
		} else {
			loss -= math.Log(1 - p)
		}
	}
	return loss / float64(n), nil
}

// Accuracy は正解率を計算する。ラベルは任意の値でよく、完全一致で比較する。
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := validatePair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ConfusionMatrix は二値分類の混同行列。正例は 1。
type ConfusionMatrix struct {
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TP int `json:"tp"`
}

// NewConfusionMatrix は 0/1 のラベルと予測から混同行列を作る。
func NewConfusionMatrix(yTrue, yPred *mat.VecDense) (ConfusionMatrix, error) {
	n, err := validatePair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return ConfusionMatrix{}, err
	}
	if err := checkBinary("ConfusionMatrix", yTrue); err != nil {
		return ConfusionMatrix{}, err
	}
	if err := checkBinary("ConfusionMatrix", yPred); err != nil {
		return ConfusionMatrix{}, err
	}

	var cm ConfusionMatrix
	for i := 0; i < n; i++ {
		switch t, p := yTrue.AtVec(i), yPred.AtVec(i); {
		case t == 1 && p == 1:
			cm.TP++
		case t == 1:
			cm.FN++
		case p == 1:
			cm.FP++
		default:
			cm.TN++
		}
	}
	return cm, nil
}

// Total returns the number of samples.
func (c ConfusionMatrix) Total() int { return c.TN + c.FP + c.FN + c.TP }

// Accuracy returns (TP+TN)/Total.
func (c ConfusionMatrix) Accuracy() float64 {
	return ratio(c.TP+c.TN, c.Total())
}

// Sensitivity is the true positive rate.
func (c ConfusionMatrix) Sensitivity() float64 { return ratio(c.TP, c.TP+c.FN) }

// Specificity is the true negative rate.
func (c ConfusionMatrix) Specificity() float64 { return ratio(c.TN, c.TN+c.FP) }

// Precision is the positive predictive value.
func (c ConfusionMatrix) Precision() float64 { return ratio(c.TP, c.TP+c.FP) }

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
