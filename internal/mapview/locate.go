package mapview

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Coordinate is a lon/lat pair, serialized as [lon, lat].
type Coordinate struct {
	Lon float64
	Lat float64
}

// Chicago is the default map center.
var Chicago = Coordinate{Lon: -87.6298, Lat: 41.8781}

// Valid reports whether c is a finite point on the globe.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lon) || math.IsNaN(c.Lat) || math.IsInf(c.Lon, 0) || math.IsInf(c.Lat, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("[%s,%s]",
		strconv.FormatFloat(c.Lon, 'f', -1, 64),
		strconv.FormatFloat(c.Lat, 'f', -1, 64))), nil
}

// ErrLocationDenied is returned when the user did not grant geolocation.
var ErrLocationDenied = errors.New("location permission denied")

// Locator reports the device position.
type Locator interface {
	Locate(ctx context.Context) (Coordinate, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (Coordinate, error)

func (f LocatorFunc) Locate(ctx context.Context) (Coordinate, error) { return f(ctx) }

// QueryLocator reads a position the browser reported as lat and lon strings.
// Empty values mean permission was not granted.
func QueryLocator(lat, lon string) Locator {
	return LocatorFunc(func(context.Context) (Coordinate, error) {
		if lat == "" || lon == "" {
			return Coordinate{}, ErrLocationDenied
		}
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return Coordinate{}, fmt.Errorf("parse latitude: %w", err)
		}
		lo, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return Coordinate{}, fmt.Errorf("parse longitude: %w", err)
		}
		return Coordinate{Lon: lo, Lat: la}, nil
	})
}

// ResolveCenter asks loc for the device position and falls back when it is
// unavailable or invalid.
func ResolveCenter(ctx context.Context, loc Locator, fallback Coordinate) (Coordinate, error) {
	if loc == nil {
		return fallback, ErrLocationDenied
	}
	c, err := loc.Locate(ctx)
	if err != nil {
		return fallback, err
	}
	if !c.Valid() {
		return fallback, fmt.Errorf("invalid location %v", c)
	}
	return c, nil
}
