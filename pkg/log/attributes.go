// Standard attribute keys for pipeline and estimator logging.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so that log output can be filtered per concern.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "RandomForestClassifier", "SVC", "PMMImputer"
	ModelNameKey = "model.name"

	// ModelFamilyKey identifies the model family compared by the pipeline.
	// Examples: "random_forest", "svm", "mlp"
	ModelFamilyKey = "model.family"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"

	// StageKey names the pipeline stage ("load", "impute", "train", ...).
	StageKey = "pipeline.stage"

	// RunIDKey identifies one pipeline run.
	RunIDKey = "pipeline.run_id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of predictor columns.
	FeaturesKey = "data.features"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// MissingKey counts missing cells.
	MissingKey = "data.missing"

	// TrainSizeKey and TestSizeKey describe a train/test partition.
	TrainSizeKey = "data.train_size"
	TestSizeKey  = "data.test_size"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records classification accuracy in [0, 1].
	AccuracyKey = "metrics.accuracy"

	// AUCKey records the area under the ROC curve.
	AUCKey = "metrics.auc"

	// AUCStdKey records the standard deviation of fold AUCs.
	AUCStdKey = "metrics.auc_std"

	// LossKey records a loss value.
	LossKey = "metrics.loss"

	// IterationKey records the current iteration number.
	IterationKey = "training.iteration"
)

// Cross-validation and search
const (
	// FoldKey identifies a cross-validation fold.
	FoldKey = "cv.fold"

	// CandidatesKey counts hyper-parameter candidates in a grid.
	CandidatesKey = "search.candidates"

	// SearchStageKey identifies a coarse-to-fine refinement stage.
	SearchStageKey = "search.stage"

	// ThresholdKey records decision thresholds used for classification.
	ThresholdKey = "preds.threshold"
)

// Error and Warning Context
const (
	// ErrorCodeKey provides a structured error code for programmatic handling.
	ErrorCodeKey = "error.code"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters rendered as a string.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Error codes used with ErrorCodeKey.
const (
	ErrorFitFailed = "FIT_FAILED"
)
