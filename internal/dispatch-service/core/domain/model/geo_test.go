package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"same point", 9.0, 38.7, 9.0, 38.7, 0},
		{"one degree of longitude at the equator", 0, 0, 0, 1, 111.195},
		{"one degree of latitude", 0, 0, 1, 0, 111.195},
		{"pole to pole", 90, 0, -90, 0, 20015.087},
		{"across the antimeridian", 0, 179.5, 0, -179.5, 111.195},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Haversine(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			assert.InDelta(t, tc.want, got, 0.01)
			assert.InDelta(t, got, Haversine(tc.lat2, tc.lon2, tc.lat1, tc.lon1), 1e-9)
		})
	}
}

func TestNearest(t *testing.T) {
	pickupLat, pickupLon := 9.01, 38.71

	t.Run("no candidates", func(t *testing.T) {
		_, _, ok := Nearest(pickupLat, pickupLon, nil)
		assert.False(t, ok)
	})

	t.Run("closest wins", func(t *testing.T) {
		best, d, ok := Nearest(pickupLat, pickupLon, []Candidate{
			{Username: "far", Latitude: 9.20, Longitude: 38.90},
			{Username: "near", Latitude: 9.00, Longitude: 38.70},
			{Username: "mid", Latitude: 9.05, Longitude: 38.75},
		})
		assert.True(t, ok)
		assert.Equal(t, "near", best.Username)
		assert.InDelta(t, 1.56, d, 0.01)
	})

	t.Run("tie keeps the first", func(t *testing.T) {
		best, _, ok := Nearest(pickupLat, pickupLon, []Candidate{
			{Username: "first", Latitude: 9.02, Longitude: 38.71},
			{Username: "second", Latitude: 9.02, Longitude: 38.71},
		})
		assert.True(t, ok)
		assert.Equal(t, "first", best.Username)
	})

	t.Run("symmetric tie keeps the first", func(t *testing.T) {
		best, _, _ := Nearest(0, 0, []Candidate{
			{Username: "north", Latitude: 1, Longitude: 0},
			{Username: "south", Latitude: -1, Longitude: 0},
		})
		assert.Equal(t, "north", best.Username)
	})
}
