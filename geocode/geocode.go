package geocode

import (
	"context"
	"fmt"
	"os"
	"sync"

	"googlemaps.github.io/maps"
)

// mapsClient is a singleton maps client instance.
var (
	mapsClient *maps.Client
	clientOnce sync.Once
	clientErr  error
)

// initMapsClient initializes and returns a singleton Google Maps client.
func initMapsClient() (*maps.Client, error) {
	clientOnce.Do(func() {
		apiKey := os.Getenv("MAPS_CREDENTIALS")
		if apiKey == "" {
			clientErr = fmt.Errorf("MAPS_CREDENTIALS environment variable not set")
			return
		}
		mapsClient, clientErr = maps.NewClient(maps.WithAPIKey(apiKey))
	})
	return mapsClient, clientErr
}

// Resolver backfills administrative area names from coordinates for
// observations that arrive without a district.
type Resolver struct {
	client *maps.Client
}

func NewResolver() (*Resolver, error) {
	client, err := initMapsClient()
	if err != nil {
		return nil, err
	}
	return &Resolver{client: client}, nil
}

// District reverse-geocodes a coordinate and returns the level-2
// administrative area (the district), or empty when the geocoder has
// none for that point.
func (r *Resolver) District(ctx context.Context, lat, long float64) (string, error) {
	req := &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: long},
	}

	results, err := r.client.ReverseGeocode(ctx, req)
	if err != nil {
		return "", err
	}

	for _, result := range results {
		for _, component := range result.AddressComponents {
			for _, t := range component.Types {
				if t == "administrative_area_level_2" {
					return component.LongName, nil
				}
			}
		}
	}
	return "", nil
}
