package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"go.uber.org/zap"
)

// ErrGeolocationUnavailable means the device position could not be obtained
// (permission denied, timeout or no positioning support).
var ErrGeolocationUnavailable = errors.New("unable to detect location; grant location permission or enter your city manually")

// Position is a device coordinate.
type Position struct {
	Lat float64
	Lng float64
}

// PositionSource yields the current device position.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// StaticPosition is a PositionSource with a fixed coordinate.
type StaticPosition Position

func (p StaticPosition) CurrentPosition(ctx context.Context) (Position, error) {
	return Position(p), nil
}

// Locator implements the manual and detected location flows on top of a Store.
type Locator struct {
	store    *Store
	geocoder geocode.Geocoder
	logger   *zap.Logger
}

// NewLocator creates a Locator. geocoder may be nil, in which case no
// coordinates are resolved.
func NewLocator(store *Store, geocoder geocode.Geocoder, log *zap.Logger) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{store: store, geocoder: geocoder, logger: log}
}

// Resolve builds a preference for a manually entered city, attaching
// coordinates when the geocoder finds any. It does not persist.
func Resolve(ctx context.Context, geocoder geocode.Geocoder, city string) Preference {
	p := Preference{City: city}
	if geocoder == nil {
		return canonical(p)
	}
	if pt := geocoder.Forward(ctx, city); pt != nil {
		lat, lng := pt.Lat, pt.Lng
		p.Lat, p.Lng = &lat, &lng
	}
	return canonical(p)
}

// ResolvePosition builds a preference for a detected coordinate. When reverse
// geocoding finds no locality the city fields stay empty.
func ResolvePosition(ctx context.Context, geocoder geocode.Geocoder, pos Position) Preference {
	lat, lng := pos.Lat, pos.Lng
	p := Preference{Lat: &lat, Lng: &lng}
	if geocoder == nil {
		return p
	}
	if place := geocoder.Reverse(ctx, pos.Lat, pos.Lng); place != nil {
		if city := place.Label(); city != "" {
			p.City = city
			p.CityLC = Normalize(city)
		}
	}
	return p
}

// SetCity stores a manually entered city. Blank input leaves the preference unchanged.
func (l *Locator) SetCity(ctx context.Context, city string) (Preference, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return l.store.Get(), nil
	}
	return l.store.Set(Resolve(ctx, l.geocoder, city))
}

// Detect stores the preference derived from the device position.
func (l *Locator) Detect(ctx context.Context, source PositionSource) (Preference, error) {
	pos, err := source.CurrentPosition(ctx)
	if err != nil {
		l.logger.Info("geolocation_unavailable", zap.Error(err))
		return Preference{}, fmt.Errorf("%w: %v", ErrGeolocationUnavailable, err)
	}
	return l.store.Set(ResolvePosition(ctx, l.geocoder, pos))
}
