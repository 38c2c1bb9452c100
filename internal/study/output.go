package study

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/habitat.report/internal/report"
)

// Output files written per individual, relative to the output directory.
const (
	tableSuffix = "_frequencies.txt"
	csvSuffix   = "_fixes.csv"
	plotSuffix  = "_frequencies.png"
	mapSuffix   = "_map.html"
)

// WriteReports writes the frequency table, per-fix CSV, bar chart and map
// of r into dir and returns the paths written.
func (s *Study) WriteReports(dir string, r *Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	base := filepath.Join(dir, fileStem(r.Individual))
	var written []string

	write := func(path string, fn func(f *os.File) error) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := write(base+tableSuffix, func(f *os.File) error { return report.WriteTable(f, r.Table) }); err != nil {
		return written, err
	}
	if err := write(base+csvSuffix, func(f *os.File) error { return report.WriteCSV(f, s.Ordering(), r.Rows) }); err != nil {
		return written, err
	}
	if err := report.PlotFrequencies(r.Table, r.Individual+" habitat use", base+plotSuffix); err != nil {
		return written, err
	}
	written = append(written, base+plotSuffix)
	title := fmt.Sprintf("%s habitat by method", r.Individual)
	if err := write(base+mapSuffix, func(f *os.File) error { return report.RenderMap(f, title, s.Ordering(), r.Rows) }); err != nil {
		return written, err
	}
	return written, nil
}

// fileStem turns an individual id into a single path element. Separators
// and other characters outside [A-Za-z0-9._-] become underscores.
func fileStem(id string) string {
	stem := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
	if strings.Trim(stem, ".") == "" {
		return "individual" + strings.Repeat("_", len(stem))
	}
	return stem
}
