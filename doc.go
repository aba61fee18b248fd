// Package pimaml is a reproducible classification pipeline for the Pima
// Indians diabetes data: eight numeric predictors and a binary outcome.
//
// The pipeline loads the CSV, marks biologically impossible zeros as
// missing, fills them by multiple imputation with predictive mean matching,
// checks predictor correlation, standardises, splits 70/30 and tunes three
// model families by repeated stratified k-fold grid search on
// cross-validated AUC. The tuned models are then compared on the held-out
// rows.
//
// # Quick Start
//
// From the command line:
//
//	pimaml describe diabetes.csv
//	pimaml run diabetes.csv --plots out/ --format json -o report.json
//
// From Go:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/YuminosukeSato/pimaml/dataset"
//	    "github.com/YuminosukeSato/pimaml/pipeline"
//	    "github.com/YuminosukeSato/pimaml/report"
//	)
//
//	func main() {
//	    tbl, err := dataset.LoadFile("diabetes.csv")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    rep, err := pipeline.Run(context.Background(), pipeline.DefaultConfig(), tbl)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    _ = report.WriteText(os.Stdout, rep)
//	}
//
// # Packages
//
//   - dataset: loading, label encoding, missingness normalisation, summaries
//   - sklearn/impute: PMM imputer and missing-at-random diagnostics
//   - preprocessing: StandardScaler (sample sd) and the correlation check
//   - sklearn/model_selection: splits, k-fold, GridSearchCV, CoarseToFine
//   - sklearn/tree, sklearn/ensemble: CART trees and the random forest
//   - sklearn/svm: SMO support vector classifier with Platt scaling
//   - sklearn/neural_network: MLP trained with resilient backpropagation
//   - sklearn/linear_model, linear: logistic and least-squares regression
//   - evaluation: held-out accuracy, majority baseline, family ranking
//   - pipeline: configuration and the end-to-end run
//   - report: text, JSON and PNG output
//   - core/model, core/parallel, metrics, pkg/errors, pkg/log: shared support
//
// # Reproducibility
//
// Every random stage takes its own seed (split, imputation, folds, models)
// and derives per-task generators from it, so results do not depend on the
// number of workers.
package pimaml
