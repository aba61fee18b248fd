package report

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/YuminosukeSato/pimaml/dataset"
	"github.com/YuminosukeSato/pimaml/evaluation"
	"github.com/YuminosukeSato/pimaml/internal/synth"
	"github.com/YuminosukeSato/pimaml/metrics"
	"github.com/YuminosukeSato/pimaml/pipeline"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/sklearn/impute"
	ms "github.com/YuminosukeSato/pimaml/sklearn/model_selection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sampleReport(t *testing.T) *pipeline.Report {
	t.Helper()
	y := mat.NewVecDense(6, []float64{0, 0, 0, 0, 1, 1})
	s := mat.NewVecDense(6, []float64{0.1, 0.2, 0.3, 0.6, 0.7, 0.9})
	roc, err := metrics.ROCCurve(y, s)
	require.NoError(t, err)
	oob := 0.75

	rf := &ms.SearchResult{
		Name: pipeline.RandomForest,
		Candidates: []ms.CandidateResult{
			{Index: 0, Params: ms.Params{"mtry": 2}, MeanScore: 0.81, StdScore: 0.02},
			{Index: 1, Params: ms.Params{"mtry": 3}, Err: errors.New("fit failed")},
			{Index: 2, Params: ms.Params{"mtry": 4}, MeanScore: 0.80, StdScore: 0.03},
		},
		BestIndex: 0,
	}
	linear := &ms.SearchResult{
		Name: "svm_linear",
		Candidates: []ms.CandidateResult{
			{Index: 0, Params: ms.Params{"C": 0.1}, MeanScore: 0.82},
			{Index: 1, Params: ms.Params{"C": 1.0}, MeanScore: 0.83},
		},
		BestIndex: 1,
	}
	radial := &ms.SearchResult{
		Name: "svm_radial",
		Candidates: []ms.CandidateResult{
			{Index: 0, Params: ms.Params{"C": 1.0, "sigma": 0.01}, MeanScore: 0.80},
			{Index: 1, Params: ms.Params{"C": 1.0, "sigma": 0.1}, MeanScore: 0.79},
			{Index: 2, Params: ms.Params{"C": 2.0, "sigma": 0.01}, MeanScore: 0.81},
		},
		BestIndex: 2,
	}

	return &pipeline.Report{
		RunID:         "run-1",
		Started:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:      1500 * time.Millisecond,
		Config:        pipeline.DefaultConfig(),
		Rows:          6,
		Negative:      4,
		Positive:      2,
		ZerosReplaced: 3,
		Missing: dataset.MissingnessReport{
			Columns:      []dataset.ColumnMissing{{Column: dataset.SerumInsulin, Missing: 3, Percent: 50}},
			TotalMissing: 3,
			CompleteRows: 3,
		},
		MAR: []impute.MARTest{
			{Column: dataset.SerumInsulin, Covariate: dataset.PlasmaGlucose, PValue: 0.001},
			{Column: dataset.SerumInsulin, Covariate: dataset.Age, T: math.Inf(1), PValue: 0},
		},
		ImputedCells: 3,
		ImputeFits: []impute.ColumnFit{
			{Column: dataset.SerumInsulin, Missing: 3, Observed: 3, R2: math.NaN(), RMSE: 0.5},
		},
		Features:     dataset.Columns,
		TrainSize:    4,
		TestSize:     2,
		Families: []*pipeline.FamilyResult{
			{
				Family:   pipeline.RandomForest,
				Searches: []*ms.SearchResult{rf},
				Final:    evaluation.FinalModel{Family: pipeline.RandomForest, Params: "{mtry=2}", CVAUC: 0.81, CVAUCStd: 0.02},
				Importances: []pipeline.FeatureImportance{
					{Feature: dataset.PlasmaGlucose, Importance: 0.6},
					{Feature: dataset.BMI, Importance: 0.4},
				},
				OOBAccuracy: &oob,
			},
			{
				Family:   pipeline.SVM,
				Searches: []*ms.SearchResult{linear, radial},
				Final:    evaluation.FinalModel{Family: pipeline.SVM, Params: "{C=1}", CVAUC: 0.83},
			},
		},
		Failures: []pipeline.FamilyFailure{{Family: pipeline.MLP, Err: errors.New("boom")}},
		Baseline: evaluation.Baseline{Class: 0, Accuracy: 4.0 / 6},
		Scores: []evaluation.FamilyScore{
			{Family: pipeline.RandomForest, Params: "{mtry=2}", CVAUC: 0.81, Accuracy: 5.0 / 6, TestAUC: 1, Viable: true,
				Confusion: metrics.ConfusionMatrix{TN: 3, FP: 1, TP: 2}, ROC: roc},
			{Family: pipeline.SVM, Params: "{C=1}", CVAUC: 0.83, Accuracy: 4.0 / 6, TestAUC: 0.9, LogLoss: math.NaN(),
				Confusion: metrics.ConfusionMatrix{TN: 4, FN: 2}},
		},
		Best: pipeline.RandomForest,
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleReport(t)))
	out := buf.String()

	for _, want := range []string{
		"Run run-1",
		"zeros marked missing: 3",
		dataset.SerumInsulin,
		"no pair above the threshold",
		"split: train 4, test 2",
		"Tuning random_forest",
		"{mtry=3}",
		"failed",
		"svm_radial",
		"mlp failed: boom",
		"missingness depends on observed values in 2 checks",
		"imputation model",
		"out-of-bag accuracy: 0.7500",
		"variable",
		"0.6000",
		"majority baseline 0.6667",
		"best: random_forest (accuracy 0.8333)",
	} {
		assert.Contains(t, out, want)
	}
	// a buffer is not a terminal
	assert.NotContains(t, out, "\x1b[")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport(t)))

	var got struct {
		RunID    string `json:"run_id"`
		Started  string `json:"started"`
		Best     string `json:"best"`
		Families []struct {
			Family      string   `json:"family"`
			OOBAccuracy *float64 `json:"oob_accuracy"`
			Importances []struct {
				Feature string `json:"feature"`
			} `json:"importances"`
			Searches []struct {
				Candidates []struct {
					Params  string   `json:"params"`
					MeanAUC *float64 `json:"mean_auc"`
					Error   string   `json:"error"`
				} `json:"candidates"`
			} `json:"searches"`
		} `json:"families"`
		Failures []struct {
			Family string `json:"family"`
			Error  string `json:"error"`
		} `json:"failures"`
		Scores []map[string]any `json:"scores"`
		MAR    []struct {
			T *float64 `json:"t"`
		} `json:"mar_tests"`
		ImputeFits []struct {
			R2   *float64 `json:"r2"`
			RMSE *float64 `json:"rmse"`
		} `json:"impute_fits"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "2026-01-02T03:04:05Z", got.Started)
	assert.Equal(t, pipeline.RandomForest, got.Best)
	require.Len(t, got.Families, 2)
	cands := got.Families[0].Searches[0].Candidates
	require.Len(t, cands, 3)
	require.NotNil(t, cands[0].MeanAUC)
	assert.Equal(t, 0.81, *cands[0].MeanAUC)
	assert.Nil(t, cands[1].MeanAUC)
	assert.Equal(t, "fit failed", cands[1].Error)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "boom", got.Failures[0].Error)
	require.Len(t, got.Scores, 2)
	assert.NotContains(t, got.Scores[0], "ROC")
	// NaN log loss is null, not a perfect 0
	assert.Contains(t, got.Scores[1], "log_loss")
	assert.Nil(t, got.Scores[1]["log_loss"])

	require.Len(t, got.MAR, 2)
	assert.Nil(t, got.MAR[1].T)
	require.Len(t, got.ImputeFits, 1)
	assert.Nil(t, got.ImputeFits[0].R2)
	require.NotNil(t, got.ImputeFits[0].RMSE)
	assert.Equal(t, 0.5, *got.ImputeFits[0].RMSE)

	require.NotNil(t, got.Families[0].OOBAccuracy)
	assert.Equal(t, 0.75, *got.Families[0].OOBAccuracy)
	require.Len(t, got.Families[0].Importances, 2)
	assert.Equal(t, dataset.PlasmaGlucose, got.Families[0].Importances[0].Feature)
	assert.Nil(t, got.Families[1].OOBAccuracy)
}

func TestWriteJSONPartialReportWithConstantColumn(t *testing.T) {
	tbl := synth.Pima(synth.PimaConfig{Rows: 120, Seed: 4})
	j, err := tbl.ColumnIndex(dataset.SerumInsulin)
	require.NoError(t, err)
	for i := 0; i < tbl.Rows(); i++ {
		v := 100.0
		if i%4 == 0 {
			v = 0
		}
		tbl.X.Set(i, j, v)
	}

	rep, err := pipeline.Run(context.Background(), pipeline.DefaultConfig(), tbl)
	require.Error(t, err)
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, pipeline.StageStandardize, se.Stage)
	require.NotNil(t, rep)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, rep))
	var got struct {
		ImputeFits []struct {
			Column string   `json:"column"`
			R2     *float64 `json:"r2"`
		} `json:"impute_fits"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.NotEmpty(t, got.ImputeFits)
	for _, f := range got.ImputeFits {
		assert.Equal(t, dataset.SerumInsulin, f.Column)
		assert.Nil(t, f.R2)
	}

	buf.Reset()
	require.NoError(t, WriteText(&buf, rep))
	assert.Contains(t, buf.String(), "imputed cells: 30")
}

func TestWritePlots(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	paths, err := WritePlots(dir, sampleReport(t))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "roc.png"),
		filepath.Join(dir, "tuning_random_forest.png"),
		filepath.Join(dir, "tuning_svm.png"),
	}, paths)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), p)
	}
}

func TestNilReport(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteText(&buf, nil))
	assert.Error(t, WriteJSON(&buf, nil))
	_, err := WritePlots(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestCurve(t *testing.T) {
	rep := sampleReport(t)
	radial := rep.Families[1].Searches[1]
	assert.Equal(t, []float64{0.01, 0.1}, sigmas(radial))

	keep := func(p ms.Params) bool {
		v, _ := p.Float("sigma")
		return v == 0.01
	}
	xys := curve([]*ms.SearchResult{radial}, keep, "C")
	require.Len(t, xys, 2)
	assert.Equal(t, 1.0, xys[0].X)
	assert.Equal(t, 2.0, xys[1].X)
	assert.Equal(t, 0.81, xys[1].Y)

	// failed candidates are left out
	assert.Len(t, curve(rep.Families[0].Searches, nil, "mtry"), 2)
}
