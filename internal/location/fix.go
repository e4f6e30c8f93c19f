// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"math"
	"time"

	"github.com/wneessen/traccar-agent/internal/vartype"
)

const (
	// EarthRadius is the mean earth radius in meters used for great-circle distances.
	EarthRadius = 6371000.0

	// KnotsPerMeterPerSecond converts m/s into knots.
	KnotsPerMeterPerSecond = 1.943844
)

// Fix is a single positional reading as delivered by a location provider. A Fix is
// immutable once captured; consumers copy it by value.
type Fix struct {
	Latitude  float64
	Longitude float64
	Altitude  float64

	// Course is the heading over ground in degrees (0-360). Providers leave it unset
	// when the receiver has no valid heading.
	Course vartype.VarFloat64

	// Speed over ground in meters per second.
	Speed float64

	// Accuracy is the horizontal accuracy in meters.
	Accuracy float64

	Timestamp time.Time
	Source    string
}

// Valid checks if the fix coordinates are within the WGS84 value range.
func (f Fix) Valid() bool {
	return f.Latitude >= -90 && f.Latitude <= 90 && f.Longitude >= -180 && f.Longitude <= 180
}

// SpeedKnots returns the speed over ground in knots.
func (f Fix) SpeedKnots() float64 {
	return f.Speed * KnotsPerMeterPerSecond
}

// DistanceTo returns the great-circle distance in meters between f and other.
func (f Fix) DistanceTo(other Fix) float64 {
	return Distance(f.Latitude, f.Longitude, other.Latitude, other.Longitude)
}

// Distance calculates the great-circle distance in meters between two points given in
// decimal degrees. We are using the Haversine formula on a spherical earth.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push h marginally above 1 for antipodal points
	h = math.Min(1, h)
	return 2 * EarthRadius * math.Asin(math.Sqrt(h))
}
