package driver

import "context"

// Location is one device position sample.
type Location struct {
	Latitude  float64
	Longitude float64
	Heading   *float64
	// Speed is in meters per second.
	Speed *float64
}

// LocationSource supplies the current device position.
type LocationSource interface {
	CurrentLocation(ctx context.Context) (Location, error)
}

// LocationSourceFunc adapts a function to LocationSource.
type LocationSourceFunc func(ctx context.Context) (Location, error)

func (f LocationSourceFunc) CurrentLocation(ctx context.Context) (Location, error) {
	return f(ctx)
}

// SpeedKMH converts meters per second to kilometers per hour.
func SpeedKMH(ms float64) float64 {
	return ms * 3.6
}

// LocationPayload is the data of a driver_location frame. Speed is in km/h.
type LocationPayload struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

func newLocationPayload(loc Location, ts int64) LocationPayload {
	p := LocationPayload{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Heading:   loc.Heading,
		Timestamp: ts,
	}
	if loc.Speed != nil {
		kmh := SpeedKMH(*loc.Speed)
		p.Speed = &kmh
	}
	return p
}
