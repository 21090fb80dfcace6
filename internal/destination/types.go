package destination

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxQueryLength is the hard cap applied to every search query, in runes.
const MaxQueryLength = 100

// Kind classifies a destination.
type Kind string

const (
	KindCity     Kind = "city"
	KindRegion   Kind = "region"
	KindCountry  Kind = "country"
	KindLandmark Kind = "landmark"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCity, KindRegion, KindCountry, KindLandmark:
		return true
	}
	return false
}

// Source tells callers where a result set came from.
type Source string

const (
	// SourcePrimary is the live provider. It is tagged "google" on the wire.
	SourcePrimary  Source = "google"
	SourceFallback Source = "fallback"
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both values are finite and inside geographic bounds.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Destination is a single place match.
type Destination struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Kind        Kind        `json:"type"`
	Coordinates Coordinates `json:"coordinates"`
	Country     string      `json:"country"`
	Region      string      `json:"region"`
	Photos      []string    `json:"photos"`
}

// SearchResult is the outcome of one search invocation.
type SearchResult struct {
	Destinations []Destination `json:"destinations"`
	HasMore      bool          `json:"hasMore"`
	Source       Source        `json:"source"`
}

// PopularDestination is a destination ranked by how often it is searched for.
type PopularDestination struct {
	Destination
	SearchCount int `json:"searchCount"`
}

// SearchEvent is one completed search, as recorded in the search log.
type SearchEvent struct {
	ID              int64
	Query           string
	Source          Source
	ResultCount     int
	TopResult       *Destination
	ClientKeyPrefix string
	CreatedAt       time.Time
}

// NormalizeQuery trims q and truncates it to MaxQueryLength runes.
// Case and diacritics are preserved.
func NormalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) <= MaxQueryLength {
		return q
	}
	runes := []rune(q)
	return string(runes[:MaxQueryLength])
}

// QueryLength returns the length of q in runes after trimming.
func QueryLength(q string) int {
	return utf8.RuneCountInString(strings.TrimSpace(q))
}
