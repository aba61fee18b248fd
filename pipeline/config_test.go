package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.7, cfg.TrainFraction)
	assert.Equal(t, 0.5, cfg.Threshold)
	assert.Equal(t, CVConfig{Folds: 10, Repeats: 10}, cfg.CV)
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8}, cfg.RandomForest.Mtry)
	assert.Equal(t, Families, cfg.Families)
	assert.Positive(t, cfg.Jobs())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
train_fraction: 0.8
cv:
  folds: 5
random_forest:
  mtry: [2, 4]
mlp:
  hidden_layer_sizes: [[3], [5, 2]]
families: [random_forest, mlp]
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.TrainFraction)
	assert.Equal(t, 5, cfg.CV.Folds)
	// untouched keys keep their defaults
	assert.Equal(t, 10, cfg.CV.Repeats)
	assert.Equal(t, 500, cfg.RandomForest.NTrees)
	assert.Equal(t, []int{2, 4}, cfg.RandomForest.Mtry)
	assert.Equal(t, [][]int{{3}, {5, 2}}, cfg.MLP.HiddenLayerSizes)
	assert.Equal(t, []string{RandomForest, MLP}, cfg.Families)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cv: [1, 2"), 0o644))
	_, err = LoadConfig(bad)
	var ce *errors.ConfigError
	assert.True(t, errors.As(err, &ce))

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{"train fraction zero", func(c *Config) { c.TrainFraction = 0 }, "train_fraction"},
		{"threshold one", func(c *Config) { c.Threshold = 1 }, "threshold"},
		{"correlation threshold", func(c *Config) { c.CorrelationThreshold = 1.5 }, "correlation_threshold"},
		{"negative jobs", func(c *Config) { c.NJobs = -1 }, "n_jobs"},
		{"one fold", func(c *Config) { c.CV.Folds = 1 }, "cv.folds"},
		{"no repeats", func(c *Config) { c.CV.Repeats = 0 }, "cv.repeats"},
		{"aggregation", func(c *Config) { c.Impute.Aggregation = "median" }, "impute.aggregation"},
		{"no families", func(c *Config) { c.Families = nil }, "families"},
		{"unknown family", func(c *Config) { c.Families = []string{"knn"} }, "families"},
		{"duplicate family", func(c *Config) { c.Families = []string{MLP, MLP} }, "families"},
		{"empty forest grid", func(c *Config) { c.RandomForest.Mtry = nil }, "random_forest.mtry"},
		{"empty svm grid", func(c *Config) { c.SVM.LinearC, c.SVM.Sigma = nil, nil }, "svm"},
		{"empty mlp grid", func(c *Config) { c.MLP.HiddenLayerSizes = nil }, "mlp.hidden_layer_sizes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(cfg)
			err := cfg.Validate()
			var ce *errors.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	// a family that is not selected may have an empty grid
	cfg := DefaultConfig()
	cfg.Families = []string{MLP}
	cfg.RandomForest.Mtry = nil
	assert.NoError(t, cfg.Validate())
}
