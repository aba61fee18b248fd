// Package report renders a pipeline.Report as text, JSON or PNG plots.
package report

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/YuminosukeSato/pimaml/dataset"
	"github.com/YuminosukeSato/pimaml/evaluation"
	"github.com/YuminosukeSato/pimaml/metrics"
	"github.com/YuminosukeSato/pimaml/pipeline"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/preprocessing"
	"github.com/YuminosukeSato/pimaml/sklearn/impute"
	ms "github.com/YuminosukeSato/pimaml/sklearn/model_selection"
)

type jsonReport struct {
	RunID         string                         `json:"run_id"`
	Started       string                         `json:"started"`
	DurationMs    int64                          `json:"duration_ms"`
	Rows          int                            `json:"rows"`
	Negative      int                            `json:"negative"`
	Positive      int                            `json:"positive"`
	ZerosReplaced int                            `json:"zeros_replaced"`
	Missing       dataset.MissingnessReport      `json:"missing"`
	MAR           []jsonMAR                      `json:"mar_tests,omitempty"`
	ImputedCells  int                            `json:"imputed_cells"`
	ImputeFits    []jsonColumnFit                `json:"impute_fits,omitempty"`
	Correlated    []preprocessing.CorrelatedPair `json:"correlated_pairs"`
	Dropped       []string                       `json:"dropped,omitempty"`
	Features      []string                       `json:"features"`
	TrainSize     int                            `json:"train_size"`
	TestSize      int                            `json:"test_size"`
	Threshold     float64                        `json:"threshold"`
	Families      []jsonFamily                   `json:"families"`
	Failures      []jsonFailure                  `json:"failures,omitempty"`
	Baseline      evaluation.Baseline            `json:"baseline"`
	Scores        []jsonScore                    `json:"scores"`
	Best          string                         `json:"best"`
}

type jsonFamily struct {
	Family      string                       `json:"family"`
	Params      string                       `json:"params"`
	CVAUC       *float64                     `json:"cv_auc"`
	CVAUCStd    *float64                     `json:"cv_auc_std"`
	OOBAccuracy *float64                     `json:"oob_accuracy,omitempty"`
	Importances []pipeline.FeatureImportance `json:"importances,omitempty"`
	Searches    []jsonSearch                 `json:"searches"`
	Warnings    []string                     `json:"warnings,omitempty"`
}

// Non-finite values are written as null.
type jsonMAR struct {
	Column       string   `json:"column"`
	Covariate    string   `json:"covariate"`
	MeanMissing  *float64 `json:"mean_missing"`
	MeanObserved *float64 `json:"mean_observed"`
	T            *float64 `json:"t"`
	DF           *float64 `json:"df"`
	PValue       *float64 `json:"p_value"`
}

type jsonColumnFit struct {
	Column   string   `json:"column"`
	Missing  int      `json:"missing"`
	Observed int      `json:"observed"`
	R2       *float64 `json:"r2"`
	RMSE     *float64 `json:"rmse"`
}

type jsonScore struct {
	Family    string                  `json:"family"`
	Params    string                  `json:"params"`
	CVAUC     *float64                `json:"cv_auc"`
	Accuracy  *float64                `json:"accuracy"`
	TestAUC   *float64                `json:"test_auc"`
	LogLoss   *float64                `json:"log_loss"`
	Confusion metrics.ConfusionMatrix `json:"confusion"`
	Viable    bool                    `json:"viable"`
}

type jsonSearch struct {
	Name       string          `json:"name"`
	Best       int             `json:"best"`
	Candidates []jsonCandidate `json:"candidates"`
}

type jsonCandidate struct {
	Params  string   `json:"params"`
	MeanAUC *float64 `json:"mean_auc,omitempty"`
	StdAUC  *float64 `json:"std_auc,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type jsonFailure struct {
	Family string `json:"family"`
	Error  string `json:"error"`
}

// finite maps NaN and ±Inf to nil, which encoding/json writes as null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func candidateView(c ms.CandidateResult) jsonCandidate {
	v := jsonCandidate{Params: c.Params.String()}
	if c.Failed() {
		v.Error = c.Err.Error()
		return v
	}
	v.MeanAUC, v.StdAUC = finite(c.MeanScore), finite(c.StdScore)
	return v
}

func marView(m impute.MARTest) jsonMAR {
	return jsonMAR{
		Column:       m.Column,
		Covariate:    m.Covariate,
		MeanMissing:  finite(m.MeanMissing),
		MeanObserved: finite(m.MeanObserved),
		T:            finite(m.T),
		DF:           finite(m.DF),
		PValue:       finite(m.PValue),
	}
}

func scoreView(s evaluation.FamilyScore) jsonScore {
	return jsonScore{
		Family:    s.Family,
		Params:    s.Params,
		CVAUC:     finite(s.CVAUC),
		Accuracy:  finite(s.Accuracy),
		TestAUC:   finite(s.TestAUC),
		LogLoss:   finite(s.LogLoss),
		Confusion: s.Confusion,
		Viable:    s.Viable,
	}
}

func view(rep *pipeline.Report) jsonReport {
	out := jsonReport{
		RunID:         rep.RunID,
		Started:       rep.Started.UTC().Format(time.RFC3339),
		DurationMs:    rep.Duration.Milliseconds(),
		Rows:          rep.Rows,
		Negative:      rep.Negative,
		Positive:      rep.Positive,
		ZerosReplaced: rep.ZerosReplaced,
		Missing:       rep.Missing,
		ImputedCells:  rep.ImputedCells,
		Correlated:    rep.Correlated,
		Dropped:       rep.Dropped,
		Features:      rep.Features,
		TrainSize:     rep.TrainSize,
		TestSize:      rep.TestSize,
		Baseline:      rep.Baseline,
		Scores:        make([]jsonScore, len(rep.Scores)),
		Best:          rep.Best,
	}
	if out.Correlated == nil {
		out.Correlated = []preprocessing.CorrelatedPair{}
	}
	if rep.Config != nil {
		out.Threshold = rep.Config.Threshold
	}
	for _, m := range rep.MAR {
		out.MAR = append(out.MAR, marView(m))
	}
	for _, f := range rep.ImputeFits {
		out.ImputeFits = append(out.ImputeFits, jsonColumnFit{
			Column:   f.Column,
			Missing:  f.Missing,
			Observed: f.Observed,
			R2:       finite(f.R2),
			RMSE:     finite(f.RMSE),
		})
	}
	for _, f := range rep.Families {
		jf := jsonFamily{
			Family:      f.Family,
			Params:      f.Final.Params,
			CVAUC:       finite(f.Final.CVAUC),
			CVAUCStd:    finite(f.Final.CVAUCStd),
			Importances: f.Importances,
			Warnings:    f.Warnings,
		}
		if f.OOBAccuracy != nil {
			jf.OOBAccuracy = finite(*f.OOBAccuracy)
		}
		for _, s := range f.Searches {
			js := jsonSearch{Name: s.Name, Best: s.BestIndex}
			for _, c := range s.Candidates {
				js.Candidates = append(js.Candidates, candidateView(c))
			}
			jf.Searches = append(jf.Searches, js)
		}
		out.Families = append(out.Families, jf)
	}
	for _, f := range rep.Failures {
		out.Failures = append(out.Failures, jsonFailure{Family: f.Family, Error: f.Err.Error()})
	}
	for i, s := range rep.Scores {
		out.Scores[i] = scoreView(s)
	}
	return out
}

// WriteJSON writes rep as indented JSON.
func WriteJSON(w io.Writer, rep *pipeline.Report) error {
	if rep == nil {
		return errors.NewValueError("report.WriteJSON", "nil report")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view(rep)); err != nil {
		return errors.Wrap(err, "encode report")
	}
	return nil
}
