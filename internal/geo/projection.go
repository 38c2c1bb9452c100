// Package geo converts between WGS84 longitude/latitude and the planar
// metre grid used for overlay and movement modelling.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Projector maps lon/lat to spherical Mercator metres and back. The zero
// value is ready to use.
type Projector struct{}

// Forward projects a WGS84 coordinate to planar metres.
func (Projector) Forward(lon, lat float64) orb.Point {
	return project.Point(orb.Point{lon, lat}, project.WGS84.ToMercator)
}

// Inverse returns the WGS84 lon/lat of a projected point.
func (Projector) Inverse(p orb.Point) (lon, lat float64) {
	ll := project.Point(p, project.Mercator.ToWGS84)
	return ll.Lon(), ll.Lat()
}

// Geometry projects any orb geometry in lon/lat to planar metres.
func (Projector) Geometry(g orb.Geometry) orb.Geometry {
	return project.Geometry(g, project.WGS84.ToMercator)
}

// ScaleAt is the Mercator scale factor at latitude lat: one true metre on
// the ground spans ScaleAt(lat) projected metres.
func (Projector) ScaleAt(lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	if c < 1e-9 {
		return 1e9
	}
	return 1 / c
}
