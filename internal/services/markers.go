package services

import "github.com/tbourn/go-devradar-backend/internal/domain"

// DefaultMarkerEpsilon is the per-duplicate offset in degrees (about 11 m
// of latitude).
const DefaultMarkerEpsilon = 0.0001

// PlaceMarkers converts a roster into map markers. The k-th check-in (from
// zero, in roster order) sharing a fingerprint is rendered at
// (lat + k*eps, lon + k*eps), so one device's stacked check-ins remain
// individually selectable.
func PlaceMarkers(list []domain.CheckIn, eps float64) []domain.Marker {
	out := make([]domain.Marker, 0, len(list))
	ordinal := make(map[string]int, len(list))
	for _, c := range list {
		k := ordinal[c.Fingerprint]
		ordinal[c.Fingerprint] = k + 1
		off := float64(k) * eps
		out = append(out, domain.Marker{
			ID:            c.ID,
			Fingerprint:   c.Fingerprint,
			Name:          c.Name,
			Skills:        c.Skills,
			Communication: c.Communication,
			Latitude:      c.Latitude,
			Longitude:     c.Longitude,
			RenderLat:     c.Latitude + off,
			RenderLon:     c.Longitude + off,
			IsOnline:      c.IsOnline,
		})
	}
	return out
}
