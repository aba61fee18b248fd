package main

import (
	"fmt"

	"github.com/YuminosukeSato/pimaml/dataset"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/spf13/cobra"
)

func newDescribeCmd(root *rootOptions) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "describe <data.csv>",
		Short: "Summarise every predictor after marking impossible zeros as missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := loadTable(root, args[0])
			if err != nil {
				return err
			}
			if !raw {
				if _, err := dataset.NormalizeMissing(tbl, dataset.DesignatedZeroColumns); err != nil {
					return errors.NewStageError("normalize", err)
				}
			}

			w := cmd.OutOrStdout()
			neg, pos := tbl.ClassCounts()
			fmt.Fprintf(w, "rows %d (%s %d, %s %d)\n", tbl.Rows(), dataset.NotDiabetic, neg, dataset.Diabetic, pos)
			fmt.Fprintf(w, "%-18s %8s %8s %6s %9s %9s %8s %8s %8s\n",
				"column", "observed", "missing", "zeros", "mean", "sd", "min", "median", "max")
			for _, s := range dataset.Describe(tbl) {
				fmt.Fprintf(w, "%-18s %8d %8d %6d %9.3f %9.3f %8.3f %8.3f %8.3f\n",
					s.Column, s.Observed, s.Missing, s.Zeros, s.Mean, s.StdDev, s.Min, s.Median, s.Max)
			}
			rep := dataset.Missingness(tbl)
			fmt.Fprintf(w, "complete rows %d of %d\n", rep.CompleteRows, tbl.Rows())
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "keep zeros as recorded")
	return cmd
}
