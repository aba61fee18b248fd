package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/YuminosukeSato/pimaml/pipeline"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	"github.com/charmbracelet/lipgloss"
)

// maxMARLines bounds the MAR tests listed in the text report.
const maxMARLines = 5

type styles struct {
	title lipgloss.Style
	head  lipgloss.Style
	cell  lipgloss.Style
	muted lipgloss.Style
	warn  lipgloss.Style
}

// newStyles binds styles to w, so a file or buffer gets plain text and a
// terminal gets colour.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true).Underline(true),
		head:  r.NewStyle().Bold(true).PaddingRight(2),
		cell:  r.NewStyle().PaddingRight(2),
		muted: r.NewStyle().Faint(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

// table renders left-aligned columns.
func (s styles) table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, c := range row {
			if i < len(widths) && lipgloss.Width(c) > widths[i] {
				widths[i] = lipgloss.Width(c)
			}
		}
	}
	var sb strings.Builder
	line := func(st lipgloss.Style, cells []string) {
		parts := make([]string, len(cells))
		for i, c := range cells {
			parts[i] = st.Width(widths[i] + 2).Render(c)
		}
		sb.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " "))
		sb.WriteByte('\n')
	}
	line(s.head, headers)
	for _, row := range rows {
		line(s.cell, row)
	}
	return sb.String()
}

// number formats v, or "-" when it is not finite.
func number(v float64, format string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf(format, v)
}

type textWriter struct {
	w   io.Writer
	err error
}

func (t *textWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

// WriteText writes a human-readable summary of rep.
func WriteText(w io.Writer, rep *pipeline.Report) error {
	if rep == nil {
		return errors.NewValueError("report.WriteText", "nil report")
	}
	st := newStyles(w)
	tw := &textWriter{w: w}

	tw.printf("%s\n", st.title.Render("Run "+rep.RunID))
	tw.printf("rows %d (notDiabetic %d, Diabetic %d), duration %s\n\n",
		rep.Rows, rep.Negative, rep.Positive, rep.Duration.Round(time.Millisecond))

	writeData(tw, st, rep)
	writeFamilies(tw, st, rep)
	writeEvaluation(tw, st, rep)
	return tw.err
}

func writeData(tw *textWriter, st styles, rep *pipeline.Report) {
	tw.printf("%s\n", st.title.Render("Missing values"))
	tw.printf("zeros marked missing: %d, complete rows: %d\n", rep.ZerosReplaced, rep.Missing.CompleteRows)
	var rows [][]string
	for _, c := range rep.Missing.Columns {
		if c.Missing == 0 {
			continue
		}
		rows = append(rows, []string{c.Column, fmt.Sprint(c.Missing), fmt.Sprintf("%.1f%%", c.Percent)})
	}
	if len(rows) > 0 {
		tw.printf("%s", st.table([]string{"column", "missing", "share"}, rows))
	}
	tw.printf("imputed cells: %d\n", rep.ImputedCells)
	if len(rep.ImputeFits) > 0 {
		var fits [][]string
		for _, f := range rep.ImputeFits {
			fits = append(fits, []string{f.Column, fmt.Sprint(f.Observed), number(f.R2, "%.3f"), number(f.RMSE, "%.3f")})
		}
		tw.printf("%s", st.table([]string{"imputation model", "observed", "r2", "rmse"}, fits))
	}

	alpha := 0.0
	if rep.Config != nil {
		alpha = rep.Config.Impute.MARAlpha
	}
	var flagged []string
	for _, m := range rep.MAR {
		if m.PValue < alpha {
			flagged = append(flagged, fmt.Sprintf("%s missing vs %s: p=%.3g", m.Column, m.Covariate, m.PValue))
		}
	}
	if len(flagged) > 0 {
		tw.printf("%s\n", st.warn.Render(fmt.Sprintf("missingness depends on observed values in %d checks", len(flagged))))
		for i, f := range flagged {
			if i == maxMARLines {
				tw.printf("  ... %d more\n", len(flagged)-maxMARLines)
				break
			}
			tw.printf("  %s\n", f)
		}
	}
	tw.printf("\n%s\n", st.title.Render("Correlation"))
	if len(rep.Correlated) == 0 {
		tw.printf("no pair above the threshold\n")
	}
	for _, p := range rep.Correlated {
		tw.printf("  %s\n", p)
	}
	if len(rep.Dropped) > 0 {
		tw.printf("dropped: %s\n", strings.Join(rep.Dropped, ", "))
	}
	tw.printf("split: train %d, test %d\n\n", rep.TrainSize, rep.TestSize)
}

func writeFamilies(tw *textWriter, st styles, rep *pipeline.Report) {
	for _, f := range rep.Families {
		tw.printf("%s\n", st.title.Render("Tuning "+f.Family))
		for _, s := range f.Searches {
			var rows [][]string
			for _, c := range s.Candidates {
				mark := ""
				if c.Index == s.BestIndex {
					mark = "*"
				}
				if c.Failed() {
					rows = append(rows, []string{c.Params.String(), "-", "-", st.warn.Render("failed")})
					continue
				}
				rows = append(rows, []string{c.Params.String(), fmt.Sprintf("%.4f", c.MeanScore), fmt.Sprintf("%.4f", c.StdScore), mark})
			}
			tw.printf("%s\n", st.muted.Render(s.Name))
			tw.printf("%s", st.table([]string{"params", "cv auc", "sd", ""}, rows))
		}
		for _, w := range f.Warnings {
			tw.printf("%s\n", st.warn.Render(w))
		}
		tw.printf("final: %s (cv auc %.4f ± %.4f)\n", f.Final.Params, f.Final.CVAUC, f.Final.CVAUCStd)
		if f.OOBAccuracy != nil {
			tw.printf("out-of-bag accuracy: %s\n", number(*f.OOBAccuracy, "%.4f"))
		}
		if len(f.Importances) > 0 {
			var rows [][]string
			for _, imp := range f.Importances {
				rows = append(rows, []string{imp.Feature, fmt.Sprintf("%.4f", imp.Importance)})
			}
			tw.printf("%s", st.table([]string{"variable", "importance"}, rows))
		}
		tw.printf("\n")
	}
	for _, f := range rep.Failures {
		tw.printf("%s\n\n", st.warn.Render(fmt.Sprintf("%s failed: %v", f.Family, f.Err)))
	}
}

func writeEvaluation(tw *textWriter, st styles, rep *pipeline.Report) {
	if len(rep.Scores) == 0 {
		return
	}
	threshold := 0.0
	if rep.Config != nil {
		threshold = rep.Config.Threshold
	}
	tw.printf("%s\n", st.title.Render("Test set"))
	var rows [][]string
	for _, s := range rep.Scores {
		viable := "yes"
		if !s.Viable {
			viable = st.warn.Render("no")
		}
		rows = append(rows, []string{
			s.Family,
			s.Params,
			fmt.Sprintf("%.4f", s.CVAUC),
			fmt.Sprintf("%.4f", s.Accuracy),
			number(s.TestAUC, "%.4f"),
			fmt.Sprintf("%.3f", s.Confusion.Sensitivity()),
			fmt.Sprintf("%.3f", s.Confusion.Specificity()),
			viable,
		})
	}
	tw.printf("%s", st.table([]string{"family", "params", "cv auc", "accuracy", "test auc", "sens", "spec", "viable"}, rows))
	tw.printf("threshold %.2f, majority baseline %.4f\n", threshold, rep.Baseline.Accuracy)
	if best, ok := rep.BestScore(); ok {
		tw.printf("%s\n", st.title.Render(fmt.Sprintf("best: %s (accuracy %.4f)", best.Family, best.Accuracy)))
	}
}
