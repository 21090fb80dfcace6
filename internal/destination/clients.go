package destination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const httpTimeout = 10 * time.Second

// ErrProviderDisabled is returned by the primary provider when it has no API key.
var ErrProviderDisabled = errors.New("primary provider disabled")

// newHTTPClient returns an http.Client with a 10-second timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// doGet performs a GET request and decodes the JSON response into dst.
func doGet(ctx context.Context, client *http.Client, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", redactKey(rawURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", redactKey(rawURL), resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w", redactKey(rawURL), err)
	}

	return nil
}

// redactKey strips the key query parameter so URLs can be logged.
func redactKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ---- Google Places ----

// PlacesClient runs text searches against the Google Places API.
type PlacesClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

const placesDefaultURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"

// NewPlacesClient constructs a PlacesClient with the given API key.
// An empty key yields a client whose Search always returns ErrProviderDisabled.
func NewPlacesClient(apiKey string) *PlacesClient {
	return &PlacesClient{apiKey: apiKey, baseURL: placesDefaultURL, client: newHTTPClient()}
}

// NewPlacesClientWithURL constructs a PlacesClient pointing at a custom base URL (for tests).
func NewPlacesClientWithURL(baseURL, apiKey string) *PlacesClient {
	return &PlacesClient{apiKey: apiKey, baseURL: baseURL, client: newHTTPClient()}
}

// Enabled reports whether the client has credentials.
func (c *PlacesClient) Enabled() bool {
	return c.apiKey != ""
}

type placesResponse struct {
	Status        string        `json:"status"`
	ErrorMessage  string        `json:"error_message"`
	NextPageToken string        `json:"next_page_token"`
	Results       []placeResult `json:"results"`
}

type placeResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Types            []string `json:"types"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Photos []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

// Search returns at most limit destinations matching query.
func (c *PlacesClient) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if !c.Enabled() {
		return nil, ErrProviderDisabled
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("key", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()

	var raw placesResponse
	if err := doGet(ctx, c.client, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("places search for %q: %w", query, err)
	}

	switch raw.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &SearchResult{Destinations: []Destination{}, Source: SourcePrimary}, nil
	default:
		return nil, fmt.Errorf("places search for %q: status %s: %s", query, raw.Status, raw.ErrorMessage)
	}

	dests := make([]Destination, 0, min(len(raw.Results), limit))
	for _, r := range raw.Results {
		if len(dests) == limit {
			break
		}
		d, ok := r.toDestination()
		if !ok {
			continue
		}
		dests = append(dests, d)
	}

	return &SearchResult{
		Destinations: dests,
		HasMore:      raw.NextPageToken != "" || len(raw.Results) > limit,
		Source:       SourcePrimary,
	}, nil
}

func (r placeResult) toDestination() (Destination, bool) {
	coords := Coordinates{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
	if r.PlaceID == "" || r.Name == "" || !coords.Valid() {
		return Destination{}, false
	}

	parts := splitAddress(r.FormattedAddress)
	var country, region string
	if len(parts) >= 1 {
		country = parts[len(parts)-1]
	}
	if len(parts) >= 3 {
		region = parts[len(parts)-2]
	}

	photos := make([]string, 0, len(r.Photos))
	for _, p := range r.Photos {
		if p.PhotoReference != "" {
			photos = append(photos, p.PhotoReference)
		}
	}

	description := r.FormattedAddress
	if description == "" {
		description = r.Name
	}

	return Destination{
		ID:          r.PlaceID,
		Name:        r.Name,
		Description: description,
		Kind:        kindFromTypes(r.Types),
		Coordinates: coords,
		Country:     country,
		Region:      region,
		Photos:      photos,
	}, true
}

func splitAddress(addr string) []string {
	var parts []string
	for _, p := range strings.Split(addr, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// kindFromTypes maps Google place types onto Kind. The first recognised type wins.
func kindFromTypes(types []string) Kind {
	for _, t := range types {
		switch {
		case t == "locality" || t == "postal_town" || t == "sublocality":
			return KindCity
		case t == "country":
			return KindCountry
		case strings.HasPrefix(t, "administrative_area_level_") || t == "colloquial_area":
			return KindRegion
		}
	}
	return KindLandmark
}
