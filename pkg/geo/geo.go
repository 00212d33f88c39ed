// Package geo holds the coordinate value type shared by every component.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Point is an immutable WGS84 coordinate. Equality is by coordinate, so
// Points compare with ==.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Pt is shorthand for Point{Lat: lat, Lon: lon}.
func Pt(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

// String formats the point as "lat, lon" with six decimals. Forms use it as
// the fallback label until a reverse geocode names the place.
func (p Point) String() string {
	return fmt.Sprintf("%.6f, %.6f", p.Lat, p.Lon)
}

// Valid reports whether the coordinate lies within WGS84 ranges.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Orb converts to orb's (x=lon, y=lat) order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// FromOrb converts an orb point back.
func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lon: p.Lon()}
}

// Pair returns the [lat, lon] wire representation.
func (p Point) Pair() [2]float64 {
	return [2]float64{p.Lat, p.Lon}
}

// Parse reads "lat,lon" (spaces allowed around either value).
func Parse(input string) (Point, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("invalid coordinate: %q", input)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return Point{}, fmt.Errorf("invalid lat/lon: %q", input)
	}
	p := Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return Point{}, fmt.Errorf("coordinate out of range: %q", input)
	}
	return p, nil
}

// LineString converts an ordered waypoint list.
func LineString(points []Point) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, p.Orb())
	}
	return ls
}

// Bound returns the bounding region of points. An empty slice yields the
// zero bound.
func Bound(points []Point) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}
	return LineString(points).Bound()
}

// Near reports whether two points are within eps degrees on both axes.
func Near(a, b Point, eps float64) bool {
	return math.Abs(a.Lat-b.Lat) < eps && math.Abs(a.Lon-b.Lon) < eps
}

// Place is a named point: a geocoding result or an autocomplete suggestion.
type Place struct {
	Name  string `json:"name"`
	Point Point  `json:"point"`
}
