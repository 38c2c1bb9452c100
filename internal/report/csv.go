package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/habitat.report/internal/habitat"
)

// FixRow is the per-fix outcome of the three methods.
type FixRow struct {
	Index int
	FixID string
	Time  time.Time

	Lon, Lat         float64 // reported
	PredLon, PredLat float64 // smoothed prediction
	Raw, Predicted   habitat.Category
	Majority         habitat.Category
	Shares           map[habitat.Category]float64
	Votes, Rejected  int
	Degenerate       bool
}

// WriteCSV writes one line per fix with a share column per category of
// ordering. Degenerate fixes have an empty majority and empty shares.
func WriteCSV(w io.Writer, ordering habitat.Ordering, rows []FixRow) error {
	ordering = ordering.Normalize()
	cw := csv.NewWriter(w)

	header := []string{"index", "id", "date", "lon", "lat", "pred_lon", "pred_lat",
		"raw", "predicted", "most_likely", "votes", "rejected", "degenerate"}
	for _, c := range ordering {
		header = append(header, "p_"+string(c))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Index), r.FixID, r.Time.UTC().Format(time.RFC3339),
			ff(r.Lon), ff(r.Lat), ff(r.PredLon), ff(r.PredLat),
			string(r.Raw), string(r.Predicted), string(r.Majority),
			strconv.Itoa(r.Votes), strconv.Itoa(r.Rejected), strconv.FormatBool(r.Degenerate),
		}
		for _, c := range ordering {
			if r.Shares == nil {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, strconv.FormatFloat(r.Shares[c], 'f', 4, 64))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("fix %d: %w", r.Index, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
