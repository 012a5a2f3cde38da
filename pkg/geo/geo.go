// Package geo provides great-circle distance, bounding boxes and distance
// banding for WGS84 coordinates.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371008.8

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that p lies within the valid latitude and longitude range.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Longitude)
	}
	return nil
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLng := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Box is an axis-aligned latitude/longitude rectangle.
type Box struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// BoundingBox returns a box that contains every point within radiusMeters
// of center. Near the poles or across the antimeridian the longitude range
// widens to the full circle, so the box is always a superset.
func BoundingBox(center Point, radiusMeters float64) Box {
	dLat := degrees(radiusMeters / EarthRadiusMeters)
	box := Box{
		MinLatitude:  center.Latitude - dLat,
		MaxLatitude:  center.Latitude + dLat,
		MinLongitude: -180,
		MaxLongitude: 180,
	}
	if box.MinLatitude <= -90 || box.MaxLatitude >= 90 {
		box.MinLatitude = math.Max(box.MinLatitude, -90)
		box.MaxLatitude = math.Min(box.MaxLatitude, 90)
		return box
	}

	dLng := degrees(math.Asin(math.Min(1, math.Sin(radians(dLat))/math.Cos(radians(center.Latitude)))))
	minLng := center.Longitude - dLng
	maxLng := center.Longitude + dLng
	if minLng >= -180 && maxLng <= 180 {
		box.MinLongitude = minLng
		box.MaxLongitude = maxLng
	}
	return box
}

// Contains reports whether p lies inside b, edges included.
func (b Box) Contains(p Point) bool {
	return p.Latitude >= b.MinLatitude && p.Latitude <= b.MaxLatitude &&
		p.Longitude >= b.MinLongitude && p.Longitude <= b.MaxLongitude
}

// Band returns the zero-based distance band floor(distance / width).
func Band(distanceMeters, widthMeters float64) int {
	if widthMeters <= 0 {
		return 0
	}
	return int(math.Floor(distanceMeters / widthMeters))
}

// Centroid returns the arithmetic mean of points. It returns the zero Point
// for an empty slice.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Latitude
		lng += p.Longitude
	}
	n := float64(len(points))
	return Point{Latitude: lat / n, Longitude: lng / n}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
