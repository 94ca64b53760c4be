package geo

import "math"

const earthRadiusKM = 6371.0

// Point is a (latitude, longitude) pair in decimal degrees.
type Point struct {
	Lat  float64
	Long float64
}

// HaversineKM calculates the great-circle distance in kilometers
// between two points specified in decimal degrees.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	radLat1 := lat1 * math.Pi / 180
	radLon1 := lon1 * math.Pi / 180
	radLat2 := lat2 * math.Pi / 180
	radLon2 := lon2 * math.Pi / 180

	deltaLat := radLat2 - radLat1
	deltaLon := radLon2 - radLon1

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(radLat1)*math.Cos(radLat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

// DistanceKM is HaversineKM over Points.
func DistanceKM(a, b Point) float64 {
	return HaversineKM(a.Lat, a.Long, b.Lat, b.Long)
}

// DegreesToKM converts an angular distance in degrees to kilometers
// along a great circle. Only valid as an equator-scale calibration:
// a degree of longitude shrinks with latitude, which is exactly why
// clustering itself never compares raw degree deltas.
func DegreesToKM(deg float64) float64 {
	return deg * math.Pi / 180 * earthRadiusKM
}

// KMToDegrees is the inverse calibration.
func KMToDegrees(km float64) float64 {
	return km / earthRadiusKM * 180 / math.Pi
}

// Centroid is the arithmetic mean of the member coordinates.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var sumLat, sumLon float64
	for _, p := range pts {
		sumLat += p.Lat
		sumLon += p.Long
	}
	n := float64(len(pts))
	return Point{Lat: sumLat / n, Long: sumLon / n}
}

// MaxRadiusKM is the maximum great-circle distance from center to any
// of the given points.
func MaxRadiusKM(center Point, pts []Point) float64 {
	maxDist := 0.0
	for _, p := range pts {
		if d := DistanceKM(center, p); d > maxDist {
			maxDist = d
		}
	}
	return maxDist
}

// WithinRadiusKM reports whether point is within radiusKM of center.
func WithinRadiusKM(center, point Point, radiusKM float64) bool {
	return DistanceKM(center, point) <= radiusKM
}
