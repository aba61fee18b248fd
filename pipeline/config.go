package pipeline

import (
	"fmt"
	"os"
	"runtime"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/preprocessing"
	"github.com/YuminosukeSato/pimaml/sklearn/impute"
	"gopkg.in/yaml.v3"
)

// Family names.
const (
	RandomForest = "random_forest"
	SVM          = "svm"
	MLP          = "mlp"
)

// Families lists every model family in comparison order.
var Families = []string{RandomForest, SVM, MLP}

// Config holds every tunable of a run. Zero values are not defaults; start
// from DefaultConfig.
type Config struct {
	Seeds SeedConfig `yaml:"seeds"`

	// TrainFraction is the share of rows in the training partition.
	TrainFraction float64 `yaml:"train_fraction"`
	// StratifySplit keeps the class ratio in both partitions.
	StratifySplit bool `yaml:"stratify_split"`

	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	// DropCorrelated removes one column of every flagged pair.
	DropCorrelated bool `yaml:"drop_correlated"`

	Impute ImputeConfig `yaml:"impute"`
	CV     CVConfig     `yaml:"cv"`

	// NJobs bounds concurrent fits; 0 means runtime.NumCPU().
	NJobs int `yaml:"n_jobs"`
	// Threshold converts a positive-class probability to a label.
	Threshold float64 `yaml:"threshold"`

	// Families selects which families run, in order.
	Families     []string           `yaml:"families"`
	RandomForest RandomForestConfig `yaml:"random_forest"`
	SVM          SVMConfig          `yaml:"svm"`
	MLP          MLPConfig          `yaml:"mlp"`
}

// SeedConfig gives every random stage its own seed.
type SeedConfig struct {
	Split  uint64 `yaml:"split"`
	Impute uint64 `yaml:"impute"`
	CV     uint64 `yaml:"cv"`
	Model  uint64 `yaml:"model"`
}

// ImputeConfig configures the PMM imputer and the MAR check.
type ImputeConfig struct {
	NImputations int     `yaml:"n_imputations"`
	MaxIter      int     `yaml:"max_iter"`
	Donors       int     `yaml:"donors"`
	Aggregation  string  `yaml:"aggregation"`
	MARAlpha     float64 `yaml:"mar_alpha"`
}

// CVConfig is repeated stratified k-fold.
type CVConfig struct {
	Folds   int `yaml:"folds"`
	Repeats int `yaml:"repeats"`
}

type RandomForestConfig struct {
	NTrees         int   `yaml:"n_trees"`
	MinSamplesLeaf int   `yaml:"min_samples_leaf"`
	Mtry           []int `yaml:"mtry"`
	// OOBScore records the out-of-bag accuracy of every fitted forest.
	OOBScore bool `yaml:"oob_score"`
}

type SVMConfig struct {
	LinearC []float64 `yaml:"linear_c"`
	// CoarseToFine stages over LinearC; 1 disables refinement.
	Stages     int       `yaml:"stages"`
	FinePoints int       `yaml:"fine_points"`
	Sigma      []float64 `yaml:"sigma"`
	RadialC    []float64 `yaml:"radial_c"`
	Tol        float64   `yaml:"tol"`
	MaxIter    int       `yaml:"max_iter"`
	// ProbabilityCV is the fold count for Platt calibration.
	ProbabilityCV int `yaml:"probability_cv"`
}

type MLPConfig struct {
	HiddenLayerSizes [][]int `yaml:"hidden_layer_sizes"`
	Alpha            float64 `yaml:"alpha"`
	MaxIter          int     `yaml:"max_iter"`
	Tol              float64 `yaml:"tol"`
}

// DefaultConfig returns the reference settings: 70/30 split, 5 PMM
// imputations, 10×10 repeated stratified CV and the grids of the three
// families.
func DefaultConfig() *Config {
	return &Config{
		Seeds:                SeedConfig{Split: 1, Impute: 1, CV: 1, Model: 1},
		TrainFraction:        0.7,
		CorrelationThreshold: preprocessing.DefaultCorrelationThreshold,
		Impute: ImputeConfig{
			NImputations: 5,
			MaxIter:      5,
			Donors:       5,
			Aggregation:  string(impute.AggregateMean),
			MARAlpha:     impute.DefaultMARAlpha,
		},
		CV:        CVConfig{Folds: 10, Repeats: 10},
		Threshold: 0.5,
		Families:  append([]string(nil), Families...),
		RandomForest: RandomForestConfig{
			NTrees:         500,
			MinSamplesLeaf: 1,
			Mtry:           []int{2, 3, 4, 5, 6, 7, 8},
			OOBScore:       true,
		},
		SVM: SVMConfig{
			LinearC:       []float64{0.001, 0.01, 0.1, 1, 10, 100},
			Stages:        2,
			FinePoints:    5,
			Sigma:         []float64{0.01, 0.05, 0.1},
			RadialC:       []float64{0.25, 0.5, 1, 2, 4},
			Tol:           1e-3,
			ProbabilityCV: 5,
		},
		MLP: MLPConfig{
			HiddenLayerSizes: [][]int{{2}, {4}, {6}, {4, 2}, {6, 3}},
			Alpha:            0,
			MaxIter:          200,
			Tol:              1e-6,
		},
	}
}

// LoadConfig reads a YAML file over DefaultConfig, so a file only needs
// the keys it changes.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.NewConfigError("file", err.Error()), path)
	}
	return cfg, nil
}

// Jobs returns the effective worker count.
func (c *Config) Jobs() int {
	if c.NJobs > 0 {
		return c.NJobs
	}
	return runtime.NumCPU()
}

// Validate checks the configuration. The first problem found is returned
// as a ConfigError.
func (c *Config) Validate() error {
	switch {
	case !(c.TrainFraction > 0 && c.TrainFraction < 1):
		return errors.NewConfigError("train_fraction", fmt.Sprintf("must be in (0, 1), got %v", c.TrainFraction))
	case c.CorrelationThreshold < 0 || c.CorrelationThreshold > 1:
		return errors.NewConfigError("correlation_threshold", fmt.Sprintf("must be in [0, 1], got %v", c.CorrelationThreshold))
	case !(c.Threshold > 0 && c.Threshold < 1):
		return errors.NewConfigError("threshold", fmt.Sprintf("must be in (0, 1), got %v", c.Threshold))
	case c.NJobs < 0:
		return errors.NewConfigError("n_jobs", "must not be negative")
	case c.CV.Folds < 2:
		return errors.NewConfigError("cv.folds", fmt.Sprintf("must be at least 2, got %d", c.CV.Folds))
	case c.CV.Repeats < 1:
		return errors.NewConfigError("cv.repeats", fmt.Sprintf("must be at least 1, got %d", c.CV.Repeats))
	case c.Impute.NImputations < 1:
		return errors.NewConfigError("impute.n_imputations", "must be at least 1")
	case c.Impute.Donors < 1:
		return errors.NewConfigError("impute.donors", "must be at least 1")
	case c.Impute.MaxIter < 1:
		return errors.NewConfigError("impute.max_iter", "must be at least 1")
	case c.Impute.Aggregation != string(impute.AggregateMean) && c.Impute.Aggregation != string(impute.AggregateFirst):
		return errors.NewConfigError("impute.aggregation", fmt.Sprintf("must be mean or first, got %q", c.Impute.Aggregation))
	case len(c.Families) == 0:
		return errors.NewConfigError("families", "no family selected")
	}

	seen := make(map[string]bool)
	for _, f := range c.Families {
		switch f {
		case RandomForest, SVM, MLP:
		default:
			return errors.NewConfigError("families", fmt.Sprintf("unknown family %q", f))
		}
		if seen[f] {
			return errors.NewConfigError("families", fmt.Sprintf("%q listed twice", f))
		}
		seen[f] = true
	}

	if seen[RandomForest] {
		if len(c.RandomForest.Mtry) == 0 {
			return errors.NewConfigError("random_forest.mtry", "empty grid")
		}
		if c.RandomForest.NTrees < 1 {
			return errors.NewConfigError("random_forest.n_trees", "must be at least 1")
		}
	}
	if seen[SVM] {
		if len(c.SVM.LinearC) == 0 && (len(c.SVM.Sigma) == 0 || len(c.SVM.RadialC) == 0) {
			return errors.NewConfigError("svm", "empty grid")
		}
		if c.SVM.Stages < 1 {
			return errors.NewConfigError("svm.stages", "must be at least 1")
		}
	}
	if seen[MLP] && len(c.MLP.HiddenLayerSizes) == 0 {
		return errors.NewConfigError("mlp.hidden_layer_sizes", "empty grid")
	}
	return nil
}
