// Package argos holds Argos Doppler tracking fixes and the case-study CSV
// loader that prefilters them.
package argos

import (
	"time"

	"github.com/paulmach/orb"
)

// Quality classes reported by Argos, best first.
var QualityClasses = []string{"3", "2", "1", "0", "A", "B", "Z"}

// Fix is one tracking observation with its error ellipse.
type Fix struct {
	ID    string    // individual identifier
	Index int       // position within the individual's track
	Time  time.Time // UTC

	Lon float64
	Lat float64

	SemiMajor   float64 // metres
	SemiMinor   float64 // metres
	Orientation float64 // degrees clockwise from north
	Quality     string  // Argos location class

	// Projected planar coordinates, metres.
	X float64
	Y float64
}

// Point returns the projected location of the fix.
func (f Fix) Point() orb.Point {
	return orb.Point{f.X, f.Y}
}

// Track is one individual's fixes ordered by strictly increasing time.
type Track struct {
	ID    string
	Fixes []Fix
}

// Times returns the fix timestamps in order.
func (t *Track) Times() []time.Time {
	out := make([]time.Time, len(t.Fixes))
	for i, f := range t.Fixes {
		out[i] = f.Time
	}
	return out
}

// Dataset is the loaded CSV: tracks in first-seen order plus filter counts.
type Dataset struct {
	Tracks []*Track
	Stats  FilterStats
}

// Track returns the track for id, or nil.
func (d *Dataset) Track(id string) *Track {
	for _, t := range d.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// FilterStats counts rows removed by the prefilter.
type FilterStats struct {
	Rows          int
	Kept          int
	ZeroEllipse   int
	ExcludedClass int
	Duplicate     int
	// Reordered counts rows earlier than the previous row of the same
	// individual. They are sorted into place, not dropped.
	Reordered int
}
