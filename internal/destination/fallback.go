package destination

import (
	"context"
	"sort"
	"strings"
)

// catalogue is the static data set served when the primary provider is unavailable.
var catalogue = []Destination{
	{ID: "fallback-paris", Name: "Paris", Description: "Paris, France", Kind: KindCity, Coordinates: Coordinates{Lat: 48.8566, Lng: 2.3522}, Country: "France", Region: "Île-de-France"},
	{ID: "fallback-london", Name: "London", Description: "London, United Kingdom", Kind: KindCity, Coordinates: Coordinates{Lat: 51.5074, Lng: -0.1278}, Country: "United Kingdom", Region: "England"},
	{ID: "fallback-tokyo", Name: "Tokyo", Description: "Tokyo, Japan", Kind: KindCity, Coordinates: Coordinates{Lat: 35.6762, Lng: 139.6503}, Country: "Japan", Region: "Kantō"},
	{ID: "fallback-new-york", Name: "New York", Description: "New York, United States", Kind: KindCity, Coordinates: Coordinates{Lat: 40.7128, Lng: -74.0060}, Country: "United States", Region: "New York"},
	{ID: "fallback-barcelona", Name: "Barcelona", Description: "Barcelona, Spain", Kind: KindCity, Coordinates: Coordinates{Lat: 41.3874, Lng: 2.1686}, Country: "Spain", Region: "Catalonia"},
	{ID: "fallback-rome", Name: "Rome", Description: "Rome, Italy", Kind: KindCity, Coordinates: Coordinates{Lat: 41.9028, Lng: 12.4964}, Country: "Italy", Region: "Lazio"},
	{ID: "fallback-lisbon", Name: "Lisbon", Description: "Lisbon, Portugal", Kind: KindCity, Coordinates: Coordinates{Lat: 38.7223, Lng: -9.1393}, Country: "Portugal", Region: "Lisbon"},
	{ID: "fallback-amsterdam", Name: "Amsterdam", Description: "Amsterdam, Netherlands", Kind: KindCity, Coordinates: Coordinates{Lat: 52.3676, Lng: 4.9041}, Country: "Netherlands", Region: "North Holland"},
	{ID: "fallback-bali", Name: "Bali", Description: "Bali, Indonesia", Kind: KindRegion, Coordinates: Coordinates{Lat: -8.3405, Lng: 115.0920}, Country: "Indonesia", Region: "Bali"},
	{ID: "fallback-bangkok", Name: "Bangkok", Description: "Bangkok, Thailand", Kind: KindCity, Coordinates: Coordinates{Lat: 13.7563, Lng: 100.5018}, Country: "Thailand", Region: "Bangkok"},
	{ID: "fallback-sydney", Name: "Sydney", Description: "Sydney, Australia", Kind: KindCity, Coordinates: Coordinates{Lat: -33.8688, Lng: 151.2093}, Country: "Australia", Region: "New South Wales"},
	{ID: "fallback-cape-town", Name: "Cape Town", Description: "Cape Town, South Africa", Kind: KindCity, Coordinates: Coordinates{Lat: -33.9249, Lng: 18.4241}, Country: "South Africa", Region: "Western Cape"},
	{ID: "fallback-reykjavik", Name: "Reykjavík", Description: "Reykjavík, Iceland", Kind: KindCity, Coordinates: Coordinates{Lat: 64.1466, Lng: -21.9426}, Country: "Iceland", Region: "Capital Region"},
	{ID: "fallback-tuscany", Name: "Tuscany", Description: "Tuscany, Italy", Kind: KindRegion, Coordinates: Coordinates{Lat: 43.7711, Lng: 11.2486}, Country: "Italy", Region: "Tuscany"},
	{ID: "fallback-iceland", Name: "Iceland", Description: "Iceland", Kind: KindCountry, Coordinates: Coordinates{Lat: 64.9631, Lng: -19.0208}, Country: "Iceland"},
	{ID: "fallback-machu-picchu", Name: "Machu Picchu", Description: "Machu Picchu, Cusco, Peru", Kind: KindLandmark, Coordinates: Coordinates{Lat: -13.1631, Lng: -72.5450}, Country: "Peru", Region: "Cusco"},
}

// Fallback searches the static catalogue.
type Fallback struct {
	entries []Destination
}

// NewFallback returns a Fallback over the built-in catalogue.
func NewFallback() *Fallback {
	return &Fallback{entries: catalogue}
}

// NewFallbackWith returns a Fallback over the given entries (for tests).
func NewFallbackWith(entries []Destination) *Fallback {
	return &Fallback{entries: entries}
}

// Search matches query case-insensitively against name, country and region.
// Name prefix matches rank first, then other name matches, then country/region matches.
func (f *Fallback) Search(_ context.Context, query string, limit int) (*SearchResult, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	type scored struct {
		d    Destination
		rank int
	}
	var matches []scored
	for _, d := range f.entries {
		name := strings.ToLower(d.Name)
		switch {
		case strings.HasPrefix(name, q):
			matches = append(matches, scored{d, 0})
		case strings.Contains(name, q):
			matches = append(matches, scored{d, 1})
		case strings.Contains(strings.ToLower(d.Country), q), strings.Contains(strings.ToLower(d.Region), q):
			matches = append(matches, scored{d, 2})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].rank < matches[j].rank })

	dests := make([]Destination, 0, min(len(matches), limit))
	for _, m := range matches {
		if len(dests) == limit {
			break
		}
		dests = append(dests, withPhotos(m.d))
	}

	return &SearchResult{
		Destinations: dests,
		HasMore:      len(matches) > limit,
		Source:       SourceFallback,
	}, nil
}

// Popular returns the first limit catalogue entries as a curated list.
func (f *Fallback) Popular(limit int) []PopularDestination {
	out := make([]PopularDestination, 0, min(len(f.entries), limit))
	for _, d := range f.entries {
		if len(out) == limit {
			break
		}
		out = append(out, PopularDestination{Destination: withPhotos(d)})
	}
	return out
}

// withPhotos guarantees a non-nil Photos slice so it encodes as [].
func withPhotos(d Destination) Destination {
	if d.Photos == nil {
		d.Photos = []string{}
	}
	return d
}
