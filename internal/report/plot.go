package report

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotFrequencies saves a grouped bar chart of category proportions, one
// bar group per category and one bar per method. The format follows the
// file extension (.png, .svg, .pdf).
func PlotFrequencies(t Table, title, path string) error {
	if len(t.Methods) == 0 {
		return fmt.Errorf("no methods to plot")
	}
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Proportion of fixes"
	p.Y.Min, p.Y.Max = 0, 1
	p.Legend.Top = true

	names := make([]string, len(t.Ordering))
	for i, c := range t.Ordering {
		names[i] = string(c)
	}

	w := vg.Points(14)
	n := len(t.Methods)
	for i, f := range t.Methods {
		bars, err := plotter.NewBarChart(plotter.Values(f.Proportions), w)
		if err != nil {
			return fmt.Errorf("bars for %s: %w", f.Method, err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = w * vg.Length(2*i-n+1) / 2
		p.Add(bars)
		p.Legend.Add(f.Method, bars)
	}
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
