package overlay

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/habitat.report/internal/geo"
	"github.com/banshee-data/habitat.report/internal/habitat"
	"github.com/banshee-data/habitat.report/internal/monitoring"
)

const twoSquares = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"habitat": "High change"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[0.1,0],[0.1,0.1],[0,0.1],[0,0]]]}},
    {"type": "Feature", "properties": {"habitat": "low_change"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[0.2,0],[0.3,0],[0.3,0.1],[0.2,0.1],[0.2,0]]]]}}
  ]
}`

func quiet(t *testing.T) {
	t.Helper()
	_, restore := monitoring.Capture()
	t.Cleanup(restore)
}

func TestLoadGeoJSON(t *testing.T) {
	quiet(t)
	l, err := LoadGeoJSON(strings.NewReader(twoSquares), Options{BufferMeters: DefaultBufferMeters})
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, habitat.HighChange, l.Features()[0].Category)
	assert.Equal(t, habitat.LowChange, l.Features()[1].Category)

	// Projected to metres: the layer spans roughly 33 km east-west.
	b := l.Bound()
	assert.InDelta(t, 33396, b.Max.X()-b.Min.X(), 5)
}

func TestLabel(t *testing.T) {
	quiet(t)
	var proj geo.Projector
	l, err := LoadGeoJSON(strings.NewReader(twoSquares), Options{BufferMeters: 1000})
	require.NoError(t, err)

	tests := []struct {
		name     string
		lon, lat float64
		want     habitat.Category
	}{
		{"inside polygon", 0.05, 0.05, habitat.HighChange},
		{"inside multipolygon", 0.25, 0.05, habitat.LowChange},
		{"within buffer east", 0.105, 0.05, habitat.Unassigned},
		{"within buffer south", 0.25, -0.005, habitat.Unassigned},
		{"between beyond buffer", 0.15, 0.05, habitat.None},
		{"far away", 10, 10, habitat.None},
	}
	points := make([]orb.Point, len(tests))
	for i, tt := range tests {
		points[i] = proj.Forward(tt.lon, tt.lat)
	}
	got, err := l.Label(points)
	require.NoError(t, err)
	require.Len(t, got, len(tests))
	for i, tt := range tests {
		assert.Equal(t, tt.want, got[i], tt.name)
	}
}

func TestLabelZeroBuffer(t *testing.T) {
	quiet(t)
	var proj geo.Projector
	l, err := LoadGeoJSON(strings.NewReader(twoSquares), Options{})
	require.NoError(t, err)
	got, err := l.Label([]orb.Point{proj.Forward(0.105, 0.05)})
	require.NoError(t, err)
	assert.Equal(t, []habitat.Category{habitat.None}, got)
}

func TestLabelSatisfiesLabeler(t *testing.T) {
	var _ habitat.Labeler = (*Layer)(nil)
}

func TestLoadGeoJSONErrors(t *testing.T) {
	quiet(t)
	square := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`
	tests := []struct {
		name    string
		input   string
		opts    Options
		wantErr string
	}{
		{"not json", "nope", Options{}, "failed to parse"},
		{"missing property", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":` + square + `}]}`, Options{}, `missing property "habitat"`},
		{"numeric property", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"habitat":3},"geometry":` + square + `}]}`, Options{}, "not a string"},
		{"unknown category", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"habitat":"kelp"},"geometry":` + square + `}]}`, Options{}, "not in the category ordering"},
		{"point geometry", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"habitat":"low_change"},"geometry":{"type":"Point","coordinates":[0,0]}}]}`, Options{}, "unsupported geometry"},
		{"empty", `{"type":"FeatureCollection","features":[]}`, Options{}, "no polygons"},
		{"negative buffer", twoSquares, Options{BufferMeters: -1}, "non-negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGeoJSON(strings.NewReader(tt.input), tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCustomPropertyAndOrdering(t *testing.T) {
	quiet(t)
	input := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"class":"kelp"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}]}`
	l, err := LoadGeoJSON(strings.NewReader(input), Options{Property: "class", Ordering: habitat.Ordering{"kelp", "sand"}})
	require.NoError(t, err)
	got, err := l.Label([]orb.Point{geo.Projector{}.Forward(0.5, 0.5)})
	require.NoError(t, err)
	assert.Equal(t, habitat.Category("kelp"), got[0])
}
