package model

import "math"

// EarthRadiusKm is the mean radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Candidate is one row of the registry's available-driver list.
type Candidate struct {
	Username  string  `json:"username"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Available bool    `json:"available"`
}

// Nearest picks the candidate closest to the pickup point. On equal
// distance the earlier candidate wins.
func Nearest(lat, lon float64, candidates []Candidate) (Candidate, float64, bool) {
	var (
		best     Candidate
		shortest = math.MaxFloat64
		found    bool
	)
	for _, c := range candidates {
		d := Haversine(lat, lon, c.Latitude, c.Longitude)
		if d < shortest {
			best, shortest, found = c, d, true
		}
	}
	return best, shortest, found
}
