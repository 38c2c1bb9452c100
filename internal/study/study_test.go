package study

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/habitat.report/internal/argos"
	"github.com/banshee-data/habitat.report/internal/geo"
	"github.com/banshee-data/habitat.report/internal/habitat"
	"github.com/banshee-data/habitat.report/internal/monitoring"
	"github.com/banshee-data/habitat.report/internal/movement"
	"github.com/banshee-data/habitat.report/internal/overlay"
	"github.com/banshee-data/habitat.report/internal/report"
)

// track returns fixes moving east along latitude 0.01 with small wiggles.
func track(id string, n int) *argos.Track {
	var proj geo.Projector
	t0 := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	tr := &argos.Track{ID: id}
	for i := 0; i < n; i++ {
		lon := 0.01 * float64(i)
		lat := 0.01 + 0.003*math.Sin(float64(i))
		p := proj.Forward(lon, lat)
		tr.Fixes = append(tr.Fixes, argos.Fix{
			ID: id, Index: i, Time: t0.Add(time.Duration(i) * 90 * time.Minute),
			Lon: lon, Lat: lat, SemiMajor: 1500, SemiMinor: 400, Orientation: 30, Quality: "A",
			X: p.X(), Y: p.Y(),
		})
	}
	return tr
}

// halves is a layer split at the equator: high change to the north, low
// change to the south.
func halves(t *testing.T) *overlay.Layer {
	t.Helper()
	var proj geo.Projector
	square := func(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
		return proj.Geometry(orb.Polygon{{
			{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
		}}).(orb.Polygon)
	}
	north, err := overlay.NewFeature(habitat.HighChange, square(-1, 0, 1, 1))
	require.NoError(t, err)
	south, err := overlay.NewFeature(habitat.LowChange, square(-1, -1, 1, 0))
	require.NoError(t, err)
	l, err := overlay.NewLayer([]overlay.Feature{north, south}, overlay.Options{BufferMeters: 1000})
	require.NoError(t, err)
	return l
}

func testStudy(t *testing.T) *Study {
	t.Helper()
	_, restore := monitoring.Capture()
	t.Cleanup(restore)
	fit := movement.DefaultFitConfig()
	fit.MaxEvaluations = 80
	s, err := New(Options{
		Fit:          fit,
		Pipeline:     habitat.PipelineConfig{Repetitions: 30, Workers: 3, Seed: 5},
		BufferMeters: 1000,
	})
	require.NoError(t, err)
	return s
}

func TestRun(t *testing.T) {
	s := testStudy(t)
	tr := track("ct1", 12)

	res, err := s.Run(context.Background(), tr, halves(t))
	require.NoError(t, err)

	assert.Equal(t, "ct1", res.Individual)
	assert.Greater(t, res.Params.Sigma, 0.0)
	require.Len(t, res.Rows, 12)
	require.Len(t, res.Assignments, 12)
	assert.Equal(t, 0, res.Degenerate)

	for i, row := range res.Rows {
		assert.Equal(t, i, row.Index)
		assert.Equal(t, tr.Fixes[i].Time, row.Time)
		// Every reported fix lies north of the equator.
		assert.Equal(t, habitat.HighChange, row.Raw)
		assert.NotEmpty(t, row.Predicted)
		assert.Equal(t, 30, row.Votes)
		assert.InDelta(t, tr.Fixes[i].Lon, row.PredLon, 0.05)
	}

	require.Len(t, res.Table.Methods, 3)
	assert.Equal(t, report.MethodRaw, res.Table.Methods[0].Method)
	assert.Equal(t, report.MethodPredicted, res.Table.Methods[1].Method)
	assert.Equal(t, report.MethodMostLikely, res.Table.Methods[2].Method)
	assert.Equal(t, 1.0, res.Table.Methods[0].Proportion(habitat.HighChange))
	assert.Equal(t, 12, res.Table.Methods[2].Total)
}

func TestRunAll(t *testing.T) {
	s := testStudy(t)
	ds := &argos.Dataset{Tracks: []*argos.Track{track("ct1", 8), track("lonely", 1), track("ct2", 6)}}

	results, err := s.RunAll(context.Background(), ds, halves(t))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ct1", results[0].Individual)
	assert.Equal(t, "ct2", results[1].Individual)

	_, err = s.RunAll(context.Background(), &argos.Dataset{Tracks: []*argos.Track{track("x", 1)}}, halves(t))
	assert.ErrorIs(t, err, habitat.ErrInvalidInput)
}

func TestRecord(t *testing.T) {
	s := testStudy(t)
	res, err := s.Run(context.Background(), track("ct1", 6), halves(t))
	require.NoError(t, err)

	run, rows := s.Record(res)
	assert.Equal(t, "ct1", run.Individual)
	assert.Equal(t, 6, run.Fixes)
	assert.Equal(t, 30, run.Repetitions)
	assert.Equal(t, 3, run.Workers)
	assert.Equal(t, uint64(5), run.Seed)
	assert.Equal(t, habitat.DefaultOrdering, run.Ordering)
	assert.Equal(t, 1000.0, run.BufferMeters)
	assert.Equal(t, res.Params.Sigma, run.Sigma)
	require.Len(t, rows, 6)
	assert.Equal(t, res.Rows[3].Majority, rows[3].Majority)
}

func TestWriteReports(t *testing.T) {
	s := testStudy(t)
	res, err := s.Run(context.Background(), track("ct1", 6), halves(t))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	written, err := s.WriteReports(dir, res)
	require.NoError(t, err)
	require.Len(t, written, 4)
	for _, suffix := range []string{tableSuffix, csvSuffix, plotSuffix, mapSuffix} {
		info, err := os.Stat(filepath.Join(dir, "ct1"+suffix))
		require.NoError(t, err, suffix)
		assert.Greater(t, info.Size(), int64(0), suffix)
	}
}

func TestFileStem(t *testing.T) {
	tests := []struct{ id, want string }{
		{"ct1", "ct1"},
		{"seal-07.b", "seal-07.b"},
		{"a/b", "a_b"},
		{"../x", ".._x"},
		{`c:\tag 3`, "c__tag_3"},
		{"..", "individual__"},
		{"", "individual"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fileStem(tt.id), "id %q", tt.id)
	}
}

func TestWriteReportsStaysInOutputDir(t *testing.T) {
	s := testStudy(t)
	res, err := s.Run(context.Background(), track("../escape/ct1", 6), halves(t))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	written, err := s.WriteReports(dir, res)
	require.NoError(t, err)
	require.Len(t, written, 4)
	for _, p := range written {
		assert.Equal(t, dir, filepath.Dir(p))
		assert.Contains(t, filepath.Base(p), ".._escape_ct1_")
	}
}

func TestNewRejectsZeroRepetitions(t *testing.T) {
	_, err := New(Options{Fit: movement.DefaultFitConfig()})
	assert.ErrorIs(t, err, habitat.ErrInvalidInput)
}
