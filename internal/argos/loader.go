package argos

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/habitat.report/internal/geo"
	"github.com/banshee-data/habitat.report/internal/monitoring"
)

// Columns expected in the case-study CSV header. Order is free.
var requiredColumns = []string{"id", "date", "lc", "lon", "lat", "smaj", "smin", "eor"}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// LoadOptions controls the prefilter applied while loading.
type LoadOptions struct {
	// ExcludeQuality lists location classes to drop, e.g. "Z".
	ExcludeQuality []string
	// Individual restricts loading to one id when non-empty.
	Individual string
	Projector  geo.Projector
}

// LoadCSV reads fixes from r and applies the prefilter: zero or missing
// ellipse axes and excluded quality classes are dropped. Each individual's
// fixes are then ordered by time, and a fix repeating the timestamp of an
// earlier one is dropped, the first row in the file winning. Drops are
// counted in Dataset.Stats.
func LoadCSV(r io.Reader, opts LoadOptions) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty fixes file")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := col[c]; !ok {
			return nil, fmt.Errorf("missing column %q in header", c)
		}
	}

	excluded := make(map[string]bool, len(opts.ExcludeQuality))
	for _, q := range opts.ExcludeQuality {
		excluded[strings.ToUpper(strings.TrimSpace(q))] = true
	}

	ds := &Dataset{}
	byID := make(map[string]*Track)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ds.Stats.Rows++

		id := strings.TrimSpace(rec[col["id"]])
		if opts.Individual != "" && id != opts.Individual {
			continue
		}

		f, err := parseRow(rec, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if f.SemiMajor <= 0 || f.SemiMinor <= 0 {
			ds.Stats.ZeroEllipse++
			continue
		}
		if excluded[f.Quality] {
			ds.Stats.ExcludedClass++
			continue
		}

		tr, ok := byID[id]
		if !ok {
			tr = &Track{ID: id}
			byID[id] = tr
			ds.Tracks = append(ds.Tracks, tr)
		}
		if n := len(tr.Fixes); n > 0 && f.Time.Before(tr.Fixes[n-1].Time) {
			ds.Stats.Reordered++
		}
		tr.Fixes = append(tr.Fixes, f)
	}

	for _, tr := range ds.Tracks {
		slices.SortStableFunc(tr.Fixes, func(a, b Fix) int { return a.Time.Compare(b.Time) })
		kept := tr.Fixes[:0]
		for _, f := range tr.Fixes {
			if n := len(kept); n > 0 && f.Time.Equal(kept[n-1].Time) {
				ds.Stats.Duplicate++
				continue
			}
			p := opts.Projector.Forward(f.Lon, f.Lat)
			f.X, f.Y = p.X(), p.Y()
			f.Index = len(kept)
			kept = append(kept, f)
		}
		tr.Fixes = kept
		ds.Stats.Kept += len(kept)
	}

	monitoring.Logf("[argos] loaded %d rows: kept=%d zero_ellipse=%d excluded_class=%d duplicate=%d reordered=%d tracks=%d",
		ds.Stats.Rows, ds.Stats.Kept, ds.Stats.ZeroEllipse, ds.Stats.ExcludedClass, ds.Stats.Duplicate, ds.Stats.Reordered, len(ds.Tracks))
	return ds, nil
}

func parseRow(rec []string, col map[string]int) (Fix, error) {
	var f Fix
	f.ID = strings.TrimSpace(rec[col["id"]])
	if f.ID == "" {
		return f, fmt.Errorf("empty id")
	}

	t, err := parseTime(rec[col["date"]])
	if err != nil {
		return f, err
	}
	f.Time = t
	f.Quality = strings.ToUpper(strings.TrimSpace(rec[col["lc"]]))

	if f.Lon, err = parseFloat(rec[col["lon"]], "lon"); err != nil {
		return f, err
	}
	if f.Lat, err = parseFloat(rec[col["lat"]], "lat"); err != nil {
		return f, err
	}
	if f.Lat < -90 || f.Lat > 90 || f.Lon < -180 || f.Lon > 360 {
		return f, fmt.Errorf("coordinate out of range: lon=%v lat=%v", f.Lon, f.Lat)
	}

	// Missing ellipse values are treated as zero and removed by the prefilter.
	if f.SemiMajor, err = parseOptionalFloat(rec[col["smaj"]], "smaj"); err != nil {
		return f, err
	}
	if f.SemiMinor, err = parseOptionalFloat(rec[col["smin"]], "smin"); err != nil {
		return f, err
	}
	if f.Orientation, err = parseOptionalFloat(rec[col["eor"]], "eor"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

func parseFloat(s, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s is not finite: %q", name, s)
	}
	return v, nil
}

func parseOptionalFloat(s, name string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return 0, nil
	}
	return parseFloat(s, name)
}
