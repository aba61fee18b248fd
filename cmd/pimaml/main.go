// Command pimaml runs the diabetes classification pipeline on a CSV file.
//
//	pimaml run diabetes.csv --plots out/
//	pimaml describe diabetes.csv
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/YuminosukeSato/pimaml/pkg/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel  string
	logFormat string
	noHeader  bool
	comma     string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "pimaml",
		Short: "Diabetes onset classification: impute, tune and compare RF, SVM and MLP",
		Long: `pimaml loads the nine-column diabetes CSV, marks impossible zeros as
missing, imputes them by predictive mean matching, standardises the
predictors, splits 70/30 and tunes a random forest, a support vector machine
and a neural network by repeated stratified cross-validation on AUC. The
tuned models are compared on the held-out rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return log.Setup(opts.logLevel, opts.logFormat, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	pf.StringVar(&opts.logFormat, "log-format", "console", "json or console")
	pf.BoolVar(&opts.noHeader, "no-header", false, "the CSV has no header row")
	pf.StringVar(&opts.comma, "comma", ",", "field delimiter")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newDescribeCmd(opts))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "pimaml:", describeError(err))
		stop()
		os.Exit(1)
	}
}

// describeError names the failing stage when there is one.
func describeError(err error) string {
	var st *errors.StageError
	if errors.As(err, &st) {
		return fmt.Sprintf("stage %q failed: %v", st.Stage, st.Err)
	}
	return err.Error()
}
