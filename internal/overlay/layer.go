// Package overlay labels points against a layer of habitat polygons.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/habitat.report/internal/geo"
	"github.com/banshee-data/habitat.report/internal/habitat"
	"github.com/banshee-data/habitat.report/internal/monitoring"
)

const (
	DefaultProperty     = "habitat"
	DefaultBufferMeters = 1000.0

	maxLayerBytes = 256 << 20
)

// Feature is one labelled polygon in projected metres.
type Feature struct {
	Category habitat.Category
	Geometry orb.Geometry // orb.Polygon or orb.MultiPolygon
	bound    orb.Bound
}

// NewFeature wraps a projected polygon or multipolygon.
func NewFeature(c habitat.Category, g orb.Geometry) (Feature, error) {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return Feature{}, fmt.Errorf("habitat %q: unsupported geometry %s", c, g.GeoJSONType())
	}
	return Feature{Category: c, Geometry: g, bound: g.Bound()}, nil
}

func (f Feature) contains(p orb.Point) bool {
	if !f.bound.Contains(p) {
		return false
	}
	switch g := f.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return false
}

// Options configures a Layer.
type Options struct {
	// Property is the GeoJSON feature property holding the category.
	Property string
	// BufferMeters is the ground distance around the polygons inside which
	// an uncovered point is Unassigned rather than None.
	BufferMeters float64
	// Ordering is the category domain; categories outside it are rejected.
	Ordering  habitat.Ordering
	Projector geo.Projector
}

func (o Options) withDefaults() Options {
	if o.Property == "" {
		o.Property = DefaultProperty
	}
	if len(o.Ordering) == 0 {
		o.Ordering = habitat.DefaultOrdering
	}
	o.Ordering = o.Ordering.Normalize()
	return o
}

// Layer is a set of labelled habitat polygons with a tolerance buffer.
// It is read-only after construction and safe for concurrent Label calls.
type Layer struct {
	features []Feature
	opts     Options
	bound    orb.Bound
}

// NewLayer builds a layer from projected features.
func NewLayer(features []Feature, opts Options) (*Layer, error) {
	opts = opts.withDefaults()
	if opts.BufferMeters < 0 {
		return nil, fmt.Errorf("buffer must be non-negative, got %v", opts.BufferMeters)
	}
	if len(features) == 0 {
		return nil, errors.New("habitat layer has no polygons")
	}
	l := &Layer{features: features, opts: opts, bound: features[0].bound}
	for _, f := range features {
		if f.Category == habitat.None || !opts.Ordering.Contains(f.Category) {
			return nil, fmt.Errorf("habitat %q is not in the category ordering %s", f.Category, opts.Ordering)
		}
		l.bound = l.bound.Union(f.bound)
	}
	return l, nil
}

// LoadGeoJSON reads a FeatureCollection in WGS84 and projects it.
func LoadGeoJSON(r io.Reader, opts Options) (*Layer, error) {
	opts = opts.withDefaults()
	data, err := io.ReadAll(io.LimitReader(r, maxLayerBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read habitat layer: %w", err)
	}
	if len(data) > maxLayerBytes {
		return nil, fmt.Errorf("habitat layer exceeds %d bytes", maxLayerBytes)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse habitat layer: %w", err)
	}

	features := make([]Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		raw, ok := gf.Properties[opts.Property]
		if !ok {
			return nil, fmt.Errorf("feature %d: missing property %q", i, opts.Property)
		}
		name, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("feature %d: property %q is not a string", i, opts.Property)
		}
		c, err := habitat.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if gf.Geometry == nil {
			return nil, fmt.Errorf("feature %d: no geometry", i)
		}
		f, err := NewFeature(c, opts.Projector.Geometry(gf.Geometry))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		features = append(features, f)
	}
	l, err := NewLayer(features, opts)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("[overlay] loaded %d habitat polygons, buffer %.0f m", len(features), opts.BufferMeters)
	return l, nil
}

// Len is the number of polygons.
func (l *Layer) Len() int { return len(l.features) }

// Bound is the projected bounding box of all polygons.
func (l *Layer) Bound() orb.Bound { return l.bound }

// Features returns the layer polygons.
func (l *Layer) Features() []Feature { return l.features }

// Label returns, for each projected point, the category of the first
// polygon containing it. Uncovered points within BufferMeters of a polygon
// are Unassigned and the rest are None.
func (l *Layer) Label(points []orb.Point) ([]habitat.Category, error) {
	out := make([]habitat.Category, len(points))
	for i, p := range points {
		if math.IsNaN(p.X()) || math.IsNaN(p.Y()) {
			return nil, fmt.Errorf("point %d is not a number", i)
		}
		out[i] = l.labelOne(p)
	}
	return out, nil
}

func (l *Layer) labelOne(p orb.Point) habitat.Category {
	for _, f := range l.features {
		if f.contains(p) {
			return f.Category
		}
	}
	if l.opts.BufferMeters == 0 {
		return habitat.None
	}
	// The buffer is a ground distance; convert it to projected metres at
	// the point's latitude.
	_, lat := l.opts.Projector.Inverse(p)
	buf := l.opts.BufferMeters * l.opts.Projector.ScaleAt(lat)
	if !l.bound.Pad(buf).Contains(p) {
		return habitat.None
	}
	for _, f := range l.features {
		if !f.bound.Pad(buf).Contains(p) {
			continue
		}
		if planar.DistanceFrom(f.Geometry, p) <= buf {
			return habitat.Unassigned
		}
	}
	return habitat.None
}
