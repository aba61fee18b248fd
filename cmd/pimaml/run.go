package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/YuminosukeSato/pimaml/pipeline"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"github.com/YuminosukeSato/pimaml/report"
	"github.com/spf13/cobra"
)

type runOptions struct {
	config string
	format string
	output string
	plots  string

	seed          uint64
	trainFraction float64
	stratify      bool
	folds         int
	repeats       int
	jobs          int
	threshold     float64
	families      []string
	trees         int
	dropCorr      bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <data.csv>",
		Short: "Run the whole pipeline and report the comparison",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.buildConfig(cmd)
			if err != nil {
				return errors.NewStageError(pipeline.StageConfig, err)
			}
			tbl, err := loadTable(root, args[0])
			if err != nil {
				return err
			}
			rep, runErr := pipeline.Run(cmd.Context(), cfg, tbl)
			if rep != nil {
				if err := opts.write(cmd.OutOrStdout(), rep); err != nil {
					return errors.CombineErrors(runErr, err)
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.config, "config", "c", "", "YAML config file; flags override it")
	f.StringVar(&opts.format, "format", "text", "report format: text or json")
	f.StringVarP(&opts.output, "output", "o", "", "write the report to a file instead of stdout")
	f.StringVar(&opts.plots, "plots", "", "directory for ROC and tuning plots (PNG)")
	f.Uint64Var(&opts.seed, "seed", 1, "seed for every random stage")
	f.Float64Var(&opts.trainFraction, "train-fraction", 0.7, "share of rows used for training")
	f.BoolVar(&opts.stratify, "stratify", false, "keep the class ratio in the split")
	f.IntVar(&opts.folds, "folds", 10, "cross-validation folds")
	f.IntVar(&opts.repeats, "repeats", 10, "cross-validation repeats")
	f.IntVarP(&opts.jobs, "jobs", "j", 0, "concurrent fits (0 = all CPUs)")
	f.Float64Var(&opts.threshold, "threshold", 0.5, "probability cut-off for the positive class")
	f.StringSliceVar(&opts.families, "families", append([]string(nil), pipeline.Families...), "model families to run")
	f.IntVar(&opts.trees, "trees", 500, "trees per random forest")
	f.BoolVar(&opts.dropCorr, "drop-correlated", false, "drop one column of every highly correlated pair")
	return cmd
}

// buildConfig starts from the file (or defaults) and applies the flags the
// user set explicitly.
func (o *runOptions) buildConfig(cmd *cobra.Command) (*pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	if o.config != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(o.config); err != nil {
			return nil, err
		}
	}
	set := cmd.Flags().Changed
	if set("seed") {
		cfg.Seeds = pipeline.SeedConfig{Split: o.seed, Impute: o.seed, CV: o.seed, Model: o.seed}
	}
	if set("train-fraction") {
		cfg.TrainFraction = o.trainFraction
	}
	if set("stratify") {
		cfg.StratifySplit = o.stratify
	}
	if set("folds") {
		cfg.CV.Folds = o.folds
	}
	if set("repeats") {
		cfg.CV.Repeats = o.repeats
	}
	if set("jobs") {
		cfg.NJobs = o.jobs
	}
	if set("threshold") {
		cfg.Threshold = o.threshold
	}
	if set("families") {
		cfg.Families = o.families
	}
	if set("trees") {
		cfg.RandomForest.NTrees = o.trees
	}
	if set("drop-correlated") {
		cfg.DropCorrelated = o.dropCorr
	}
	switch o.format {
	case "text", "json":
	default:
		return nil, errors.NewConfigError("format", fmt.Sprintf("must be text or json, got %q", o.format))
	}
	return cfg, cfg.Validate()
}

func (o *runOptions) write(stdout io.Writer, rep *pipeline.Report) (err error) {
	w := stdout
	if o.output != "" {
		f, ferr := os.Create(o.output)
		if ferr != nil {
			return errors.Wrapf(ferr, "create %s", o.output)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	if o.format == "json" {
		err = report.WriteJSON(w, rep)
	} else {
		err = report.WriteText(w, rep)
	}
	if err != nil {
		return err
	}

	if o.plots != "" && len(rep.Families) > 0 {
		paths, err := report.WritePlots(o.plots, rep)
		if err != nil {
			return err
		}
		log.GetLoggerWithName("cli").Info("Plots written", "paths", strings.Join(paths, ","))
	}
	return nil
}
