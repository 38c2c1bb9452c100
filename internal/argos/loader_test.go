package argos

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/habitat.report/internal/monitoring"
)

const sampleCSV = `id,date,lc,lon,lat,smaj,smin,eor
ct1,2019-03-01 00:10:00,2,-63.50,44.60,1200,300,45
ct1,2019-03-01 02:40:00,B,-63.48,44.61,0,0,0
ct1,2019-03-01 02:40:00,A,-63.47,44.62,5000,800,120
ct1,2019-03-01 02:40:00,A,-63.46,44.63,5100,900,110
ct1,2019-03-01 05:00:00,Z,-63.40,44.70,9000,900,10
ct2,2019-03-01T01:00:00Z,3,-63.10,44.90,250,100,90
ct1,2019-03-01 06:30:00,1,-63.44,44.65,NA,300,10
ct1,2019-03-01 07:30:00,1,-63.43,44.66,2200,500,170
`

func quiet(t *testing.T) {
	t.Helper()
	_, restore := monitoring.Capture()
	t.Cleanup(restore)
}

func TestLoadCSV_Prefilter(t *testing.T) {
	quiet(t)
	ds, err := LoadCSV(strings.NewReader(sampleCSV), LoadOptions{ExcludeQuality: []string{"z"}})
	require.NoError(t, err)

	assert.Equal(t, FilterStats{Rows: 8, Kept: 4, ZeroEllipse: 2, ExcludedClass: 1, Duplicate: 1}, ds.Stats)
	require.Len(t, ds.Tracks, 2)
	assert.Equal(t, "ct1", ds.Tracks[0].ID, "tracks keep first-seen order")
	assert.Equal(t, "ct2", ds.Tracks[1].ID)

	ct1 := ds.Track("ct1")
	require.NotNil(t, ct1)
	require.Len(t, ct1.Fixes, 3)
	for i, f := range ct1.Fixes {
		assert.Equal(t, i, f.Index)
		if i > 0 {
			assert.True(t, f.Time.After(ct1.Fixes[i-1].Time), "times strictly increasing")
		}
		assert.Greater(t, f.SemiMajor, 0.0)
		assert.Greater(t, f.SemiMinor, 0.0)
	}
	// The first of the duplicate timestamps is kept.
	assert.Equal(t, 5000.0, ct1.Fixes[1].SemiMajor)
	assert.Equal(t, "A", ct1.Fixes[1].Quality)

	ct2 := ds.Track("ct2")
	require.NotNil(t, ct2)
	assert.Equal(t, time.Date(2019, 3, 1, 1, 0, 0, 0, time.UTC), ct2.Fixes[0].Time)
}

func TestLoadCSV_Projects(t *testing.T) {
	quiet(t)
	ds, err := LoadCSV(strings.NewReader(sampleCSV), LoadOptions{})
	require.NoError(t, err)
	f := ds.Tracks[0].Fixes[0]
	p := LoadOptions{}.Projector.Forward(f.Lon, f.Lat)
	assert.InDelta(t, p.X(), f.X, 1e-9)
	assert.InDelta(t, p.Y(), f.Y, 1e-9)
	assert.Equal(t, p, f.Point())
}

func TestLoadCSV_Individual(t *testing.T) {
	quiet(t)
	ds, err := LoadCSV(strings.NewReader(sampleCSV), LoadOptions{Individual: "ct2"})
	require.NoError(t, err)
	require.Len(t, ds.Tracks, 1)
	assert.Equal(t, "ct2", ds.Tracks[0].ID)
	assert.Nil(t, ds.Track("ct1"))
}

func TestLoadCSV_Errors(t *testing.T) {
	quiet(t)
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"empty", "", "empty fixes file"},
		{"missing column", "id,date,lc,lon,lat,smaj,smin\n", `missing column "eor"`},
		{"bad date", "id,date,lc,lon,lat,smaj,smin,eor\nx,yesterday,1,0,0,1,1,0\n", "line 2: unparseable date"},
		{"bad lon", "id,date,lc,lon,lat,smaj,smin,eor\nx,2019-01-01 00:00:00,1,abc,0,1,1,0\n", "failed to parse lon"},
		{"lat range", "id,date,lc,lon,lat,smaj,smin,eor\nx,2019-01-01 00:00:00,1,0,95,1,1,0\n", "out of range"},
		{"empty id", "id,date,lc,lon,lat,smaj,smin,eor\n,2019-01-01 00:00:00,1,0,0,1,1,0\n", "empty id"},
		{"nan lon", "id,date,lc,lon,lat,smaj,smin,eor\nx,2019-01-01 00:00:00,A,NaN,10,1000,200,30\n", "line 2: lon is not finite"},
		{"inf lat", "id,date,lc,lon,lat,smaj,smin,eor\nx,2019-01-01 00:00:00,A,0,-Inf,1000,200,30\n", "line 2: lat is not finite"},
		{"inf smaj", "id,date,lc,lon,lat,smaj,smin,eor\nx,2019-01-01 00:00:00,A,0,0,Inf,200,30\n", "line 2: smaj is not finite"},
		{"nan smin", "id,date,lc,lon,lat,smaj,smin,eor\nx,2019-01-01 00:00:00,A,0,0,1000,nan,30\n", "line 2: smin is not finite"},
		{"nan eor", "id,date,lc,lon,lat,smaj,smin,eor\nx,2019-01-01 00:00:00,A,0,0,1000,200,NaN\n", "line 2: eor is not finite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.input), LoadOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadCSV_OutOfOrderRows(t *testing.T) {
	quiet(t)
	const shuffled = `id,date,lc,lon,lat,smaj,smin,eor
ct1,2019-03-01 03:00:00,A,-63.43,44.63,1000,300,10
ct1,2019-03-01 01:00:00,A,-63.41,44.61,1100,300,10
ct2,2019-03-01 00:30:00,A,-63.10,44.90,900,300,10
ct1,2019-03-01 02:00:00,A,-63.42,44.62,1200,300,10
ct1,2019-03-01 01:00:00,B,-63.40,44.60,1300,300,10
ct1,2019-03-01 04:00:00,A,-63.44,44.64,1400,300,10
`
	ds, err := LoadCSV(strings.NewReader(shuffled), LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, FilterStats{Rows: 6, Kept: 5, Duplicate: 1, Reordered: 2}, ds.Stats)

	ct1 := ds.Track("ct1")
	require.NotNil(t, ct1)
	require.Len(t, ct1.Fixes, 4)
	t0 := time.Date(2019, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, f := range ct1.Fixes {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, t0.Add(time.Duration(i+1)*time.Hour), f.Time)
		assert.NotZero(t, f.X)
	}
	// The repeated 01:00 fix keeps the row that came first in the file.
	assert.Equal(t, 1100.0, ct1.Fixes[0].SemiMajor)
	assert.Equal(t, "A", ct1.Fixes[0].Quality)
}

func TestTrackTimes(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := &Track{ID: "a", Fixes: []Fix{{Time: t0}, {Time: t0.Add(time.Hour)}}}
	assert.Equal(t, []time.Time{t0, t0.Add(time.Hour)}, tr.Times())
}
