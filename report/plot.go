package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"github.com/YuminosukeSato/pimaml/pipeline"
	"github.com/YuminosukeSato/pimaml/pkg/errors"
	ms "github.com/YuminosukeSato/pimaml/sklearn/model_selection"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const plotSize = 5 * vg.Inch

// WritePlots saves the test-set ROC curves and one tuning curve per family
// as PNG files in dir, and returns their paths.
func WritePlots(dir string, rep *pipeline.Report) ([]string, error) {
	if rep == nil {
		return nil, errors.NewValueError("report.WritePlots", "nil report")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dir)
	}

	var paths []string
	if p, err := rocPlot(rep); err != nil {
		return nil, err
	} else if p != nil {
		path := filepath.Join(dir, "roc.png")
		if err := p.Save(plotSize, plotSize, path); err != nil {
			return nil, errors.Wrapf(err, "save %s", path)
		}
		paths = append(paths, path)
	}

	for _, f := range rep.Families {
		p, err := tuningPlot(f)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		path := filepath.Join(dir, "tuning_"+f.Family+".png")
		if err := p.Save(plotSize*1.4, plotSize, path); err != nil {
			return nil, errors.Wrapf(err, "save %s", path)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func rocPlot(rep *pipeline.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "ROC, test set"
	p.X.Label.Text = "false positive rate"
	p.Y.Label.Text = "true positive rate"
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = 0, 1, 0, 1
	p.Legend.Top = false
	p.Legend.Left = false

	var lines []any
	for _, s := range rep.Scores {
		if s.ROC == nil {
			continue
		}
		xys := make(plotter.XYs, len(s.ROC.FPR))
		for i := range xys {
			xys[i].X, xys[i].Y = s.ROC.FPR[i], s.ROC.TPR[i]
		}
		lines = append(lines, fmt.Sprintf("%s (auc %.3f)", s.Family, s.TestAUC), xys)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return nil, errors.Wrap(err, "roc plot")
	}
	chance := plotter.NewFunction(func(x float64) float64 { return x })
	chance.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	chance.Color = color.Gray{Y: 128}
	p.Add(chance)
	return p, nil
}

// tuningPlot draws mean CV AUC against the tuned parameter. Numeric grids
// use the parameter as x (log scale for C); the MLP grid is nominal.
func tuningPlot(f *pipeline.FamilyResult) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Tuning " + f.Family
	p.Y.Label.Text = "mean CV AUC"

	var lines []any
	switch f.Family {
	case pipeline.RandomForest:
		p.X.Label.Text = "mtry"
		lines = append(lines, "random forest", curve(f.Searches, nil, "mtry"))
	case pipeline.SVM:
		p.X.Label.Text = "C"
		p.X.Scale = plot.LogScale{}
		p.X.Tick.Marker = plot.LogTicks{Prec: -1}
		var linear []*ms.SearchResult
		var radial *ms.SearchResult
		for _, s := range f.Searches {
			if s.Name == "svm_radial" {
				radial = s
			} else {
				linear = append(linear, s)
			}
		}
		if len(linear) > 0 {
			lines = append(lines, "linear", curve(linear, nil, "C"))
		}
		if radial != nil {
			for _, sigma := range sigmas(radial) {
				keep := func(params ms.Params) bool {
					v, err := params.Float("sigma")
					return err == nil && v == sigma
				}
				lines = append(lines, fmt.Sprintf("rbf sigma=%g", sigma), curve([]*ms.SearchResult{radial}, keep, "C"))
			}
		}
	default:
		if len(f.Searches) == 0 {
			return nil, nil
		}
		var names []string
		xys := plotter.XYs{}
		for _, c := range f.Searches[0].Candidates {
			names = append(names, c.Params.String())
			if !c.Failed() {
				xys = append(xys, plotter.XY{X: float64(c.Index), Y: c.MeanScore})
			}
		}
		p.NominalX(names...)
		lines = append(lines, f.Family, xys)
	}

	// 空の系列は plotter がエラーにするので除く
	var kept []any
	for i := 0; i+1 < len(lines); i += 2 {
		if xys := lines[i+1].(plotter.XYs); len(xys) > 0 {
			kept = append(kept, lines[i], xys)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	if err := plotutil.AddLinePoints(p, kept...); err != nil {
		return nil, errors.Wrapf(err, "tuning plot %s", f.Family)
	}
	return p, nil
}

// curve collects (param, mean AUC) over the successful candidates of the
// searches, sorted by param. A non-nil keep filters candidates.
func curve(searches []*ms.SearchResult, keep func(ms.Params) bool, param string) plotter.XYs {
	var xys plotter.XYs
	seen := map[float64]bool{}
	for _, s := range searches {
		for _, c := range s.Candidates {
			if c.Failed() {
				continue
			}
			if keep != nil && !keep(c.Params) {
				continue
			}
			x, err := c.Params.Float(param)
			if err != nil || seen[x] {
				continue
			}
			seen[x] = true
			xys = append(xys, plotter.XY{X: x, Y: c.MeanScore})
		}
	}
	sort.Slice(xys, func(i, j int) bool { return xys[i].X < xys[j].X })
	return xys
}

func sigmas(s *ms.SearchResult) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, c := range s.Candidates {
		v, err := c.Params.Float("sigma")
		if err == nil && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
