package server

import (
	"context"

	"github.com/atrium-sh/atrium/pkg/dashboard"
	"github.com/atrium-sh/atrium/pkg/openmeteo"
)

// NewGeocoder adapts the Open-Meteo client to the store's Geocoder.
func NewGeocoder(client *openmeteo.Client) dashboard.Geocoder {
	return cityGeocoder{client: client}
}

type cityGeocoder struct {
	client *openmeteo.Client
}

func (g cityGeocoder) Geocode(ctx context.Context, name string, count int) ([]dashboard.Location, error) {
	locs, err := g.client.Geocode(ctx, name, count)
	if err != nil {
		return nil, err
	}
	out := make([]dashboard.Location, 0, len(locs))
	for _, loc := range locs {
		out = append(out, dashboard.Location{
			Name:      loc.Name,
			Country:   loc.Country,
			Region:    loc.Region,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		})
	}
	return out, nil
}
