// Package report tabulates and renders the habitat classifications of the
// three methods.
package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/habitat.report/internal/habitat"
)

// Method names used in tables, plots and metrics.
const (
	MethodRaw        = "raw"
	MethodPredicted  = "predicted"
	MethodMostLikely = "most_likely"
)

// Frequencies is the habitat frequency table of one method.
type Frequencies struct {
	Method      string
	Ordering    habitat.Ordering
	Counts      []int
	Proportions []float64
	// Total counts labels inside the ordering; Skipped counts the rest,
	// including the empty majority of degenerate votes.
	Total   int
	Skipped int
}

// Tabulate counts labels per category of ordering.
func Tabulate(method string, labels []habitat.Category, ordering habitat.Ordering) Frequencies {
	ordering = ordering.Normalize()
	f := Frequencies{
		Method:      method,
		Ordering:    ordering,
		Counts:      make([]int, len(ordering)),
		Proportions: make([]float64, len(ordering)),
	}
	for _, l := range labels {
		if i := ordering.Index(l); i >= 0 {
			f.Counts[i]++
			f.Total++
		} else {
			f.Skipped++
		}
	}
	if f.Total > 0 {
		for i, n := range f.Counts {
			f.Proportions[i] = float64(n)
		}
		floats.Scale(1/float64(f.Total), f.Proportions)
	}
	return f
}

// Proportion returns the share of c, zero when c is not in the ordering.
func (f Frequencies) Proportion(c habitat.Category) float64 {
	if i := f.Ordering.Index(c); i >= 0 {
		return f.Proportions[i]
	}
	return 0
}

// Table compares several methods over one ordering.
type Table struct {
	Ordering habitat.Ordering
	Methods  []Frequencies
}

// Compare builds a table from per-method frequencies. All must share the
// same ordering.
func Compare(freqs ...Frequencies) (Table, error) {
	if len(freqs) == 0 {
		return Table{}, fmt.Errorf("no frequencies to compare")
	}
	t := Table{Ordering: freqs[0].Ordering, Methods: freqs}
	for _, f := range freqs[1:] {
		if f.Ordering.String() != t.Ordering.String() {
			return Table{}, fmt.Errorf("method %s uses ordering %s, want %s", f.Method, f.Ordering, t.Ordering)
		}
	}
	return t, nil
}

// WriteTable prints the table with one row per method and a
// "count (percent)" cell per category.
func WriteTable(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "method")
	for _, c := range t.Ordering {
		fmt.Fprintf(tw, "\t%s", c)
	}
	fmt.Fprint(tw, "\tn\n")
	for _, f := range t.Methods {
		fmt.Fprint(tw, f.Method)
		for i := range t.Ordering {
			fmt.Fprintf(tw, "\t%d (%.1f%%)", f.Counts[i], 100*f.Proportions[i])
		}
		fmt.Fprintf(tw, "\t%d\n", f.Total)
	}
	return tw.Flush()
}
