package model_selection

import (
	"context"
	"math"
	"testing"

	"github.com/YuminosukeSato/pimaml/core/model"
	"github.com/YuminosukeSato/pimaml/internal/synth"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"github.com/YuminosukeSato/pimaml/sklearn/linear_model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stub scores rows by their first feature; behaviour selects a failure.
type stub struct {
	behaviour string
}

func (s *stub) Fit(X, y mat.Matrix) error {
	switch s.behaviour {
	case "error":
		return errors.New("fit exploded")
	case "panic":
		panic("index out of range")
	}
	return nil
}

func (s *stub) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	return mat.NewDense(r, 1, nil), nil
}

func (s *stub) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	out := mat.NewDense(r, 2, nil)
	for i := 0; i < r; i++ {
		p := X.At(i, 0)
		if s.behaviour == "nan" {
			p = math.NaN()
		}
		out.Set(i, 0, 1-p)
		out.Set(i, 1, p)
	}
	return out, nil
}

func stubFactory(p Params) (model.Classifier, error) {
	if p["mode"] == "factory" {
		return nil, errors.New("bad parameters")
	}
	return &stub{behaviour: p["mode"].(string)}, nil
}

func logisticFactory(p Params) (model.Classifier, error) {
	c, err := p.Float("C")
	if err != nil {
		return nil, err
	}
	return linear_model.NewLogisticRegression(linear_model.WithLRC(c)), nil
}

func TestGridSearchCVIsolatesFailures(t *testing.T) {
	X, y := synth.Blobs(60, 2, 3, 1)
	logger, _ := log.NewTestLogger(log.LevelDebug)

	gs := &GridSearchCV{
		Name:    "stub",
		Factory: stubFactory,
		Grid:    ParamGrid{"mode": {"ok", "error", "panic", "nan", "factory"}},
		CV:      NewStratifiedKFold(3, true, 1),
		NJobs:   4,
		Logger:  logger,
	}
	res, err := gs.Fit(context.Background(), X, y)
	require.NoError(t, err)

	require.Len(t, res.Candidates, 5)
	assert.Equal(t, 0, res.BestIndex)
	assert.Equal(t, "ok", res.Best().Params["mode"])
	assert.NotNil(t, res.BestEstimator)
	assert.Len(t, res.Failures(), 4)

	for _, c := range res.Failures() {
		var fe *errors.FitError
		require.True(t, errors.As(c.Err, &fe), "candidate %s", c.Params)
		assert.Equal(t, "stub", fe.Estimator)
	}
	var pe *errors.PanicError
	assert.True(t, errors.As(res.Candidates[2].Err, &pe))

	assert.Equal(t, 4, logger.CountLevel("WARN"))
	assert.True(t, logger.ContainsField(log.ErrorCodeKey, log.ErrorFitFailed))
}

func TestGridSearchCVAllFail(t *testing.T) {
	X, y := synth.Blobs(30, 2, 3, 1)
	gs := &GridSearchCV{
		Name:    "stub",
		Factory: stubFactory,
		Grid:    ParamGrid{"mode": {"error", "panic"}},
		CV:      NewKFold(3, false, 0),
		Logger:  log.Nop(),
	}
	_, err := gs.Fit(context.Background(), X, y)
	assert.True(t, errors.Is(err, errors.ErrNoViableCandidate))
}

func TestGridSearchCVConfigErrors(t *testing.T) {
	X, y := synth.Blobs(30, 2, 3, 1)
	var ce *errors.ConfigError

	_, err := (&GridSearchCV{Factory: stubFactory, Grid: ParamGrid{}, CV: NewKFold(3, false, 0)}).Fit(context.Background(), X, y)
	assert.True(t, errors.As(err, &ce))

	_, err = (&GridSearchCV{Grid: ParamGrid{"mode": {"ok"}}, CV: NewKFold(3, false, 0)}).Fit(context.Background(), X, y)
	assert.True(t, errors.As(err, &ce))
}

func TestGridSearchCVCancelled(t *testing.T) {
	X, y := synth.Blobs(30, 2, 3, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gs := &GridSearchCV{
		Name:    "stub",
		Factory: stubFactory,
		Grid:    ParamGrid{"mode": {"ok"}},
		CV:      NewKFold(3, false, 0),
		Logger:  log.Nop(),
	}
	_, err := gs.Fit(ctx, X, y)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGridSearchCVReproducibleAcrossJobs(t *testing.T) {
	X, y := synth.Blobs(80, 3, 1, 5)
	run := func(jobs int) *SearchResult {
		gs := &GridSearchCV{
			Name:    "logistic",
			Factory: logisticFactory,
			Grid:    ParamGrid{"C": {0.01, 0.1, 1.0}},
			CV:      NewRepeatedStratifiedKFold(4, 2, 3),
			NJobs:   jobs,
			Logger:  log.Nop(),
		}
		res, err := gs.Fit(context.Background(), X, y)
		require.NoError(t, err)
		return res
	}

	a, b := run(1), run(8)
	assert.Equal(t, a.BestIndex, b.BestIndex)
	for i := range a.Candidates {
		assert.Equal(t, a.Candidates[i].FoldScores, b.Candidates[i].FoldScores)
		assert.Len(t, a.Candidates[i].FoldScores, 8)
		assert.Greater(t, a.Candidates[i].MeanScore, 0.5)
	}
}

func TestSelectBestTieBreak(t *testing.T) {
	cands := []CandidateResult{
		{Index: 0, MeanScore: 0.80, StdScore: 0.05},
		{Index: 1, MeanScore: 0.82, StdScore: 0.06},
		{Index: 2, MeanScore: 0.82, StdScore: 0.03},
		{Index: 3, MeanScore: 0.82, StdScore: 0.03},
		{Index: 4, MeanScore: 0.90, Err: errors.New("failed")},
	}
	assert.Equal(t, 2, selectBest(cands))
	assert.Equal(t, -1, selectBest(cands[4:]))
}
