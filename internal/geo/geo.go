// Package geo provides the pure great-circle and interpolation math used by
// the mission scheduler.
package geo

import "math"

// EarthRadiusM is the spherical Earth radius used for haversine distances.
const EarthRadiusM = 6371000.0

// Point is a geographic coordinate with altitude in meters.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

// Distance returns the great-circle distance between a and b in meters using
// the haversine formula. Non-finite coordinates yield a zero distance.
func Distance(a, b Point) float64 {
	if !finite(a.Lat) || !finite(a.Lng) || !finite(b.Lat) || !finite(b.Lng) {
		return 0
	}
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	s1 := math.Sin(dLat/2) * math.Sin(dLat/2)
	s2 := math.Cos(toRad(a.Lat)) * math.Cos(toRad(b.Lat)) * math.Sin(dLng/2) * math.Sin(dLng/2)
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(math.Max(0, s1+s2)))
}

// Lerp returns the linear interpolation between a and b at t.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Interpolate returns the component-wise interpolation between a and b at t.
// t is not clamped here; callers clamp according to their own policy.
func Interpolate(a, b Point, t float64) Point {
	return Point{
		Lat: Lerp(a.Lat, b.Lat, t),
		Lng: Lerp(a.Lng, b.Lng, t),
		Alt: Lerp(a.Alt, b.Alt, t),
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
