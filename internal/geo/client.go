// Package geo wraps the geocoding/places vendor API behind a typed client.
// The vendor speaks a Nominatim-compatible protocol: /search for forward
// geocoding and /amenities for category counts around a coordinate.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/grooshub/grooshub/internal/config"
)

const defaultTimeout = 10 * time.Second

// Place is one forward-geocoding result.
type Place struct {
	DisplayName string  `json:"display_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Client calls the configured geocoding/places vendor.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a geo client from configuration.
func NewClient(cfg *config.GeoConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// vendor wire formats
type searchResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Geocode resolves a free-form address to candidate places, best match first.
func (c *Client) Geocode(ctx context.Context, address string) ([]*Place, error) {
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "5")

	var results []searchResult
	if err := c.get(ctx, "/search", q, &results); err != nil {
		return nil, fmt.Errorf("geocoding failed: %w", err)
	}

	places := make([]*Place, 0, len(results))
	for _, r := range results {
		lat, latErr := strconv.ParseFloat(r.Lat, 64)
		lon, lonErr := strconv.ParseFloat(r.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue // skip malformed vendor rows
		}
		places = append(places, &Place{
			DisplayName: r.DisplayName,
			Latitude:    lat,
			Longitude:   lon,
		})
	}
	return places, nil
}

// AmenityCounts returns the number of nearby amenities per category
// (e.g. "school", "supermarket", "transit") within the radius in meters.
func (c *Client) AmenityCounts(ctx context.Context, lat, lon float64, radiusMeters int) (map[string]int, error) {
	if radiusMeters <= 0 {
		radiusMeters = 1000
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(radiusMeters))

	counts := make(map[string]int)
	if err := c.get(ctx, "/amenities", q, &counts); err != nil {
		return nil, fmt.Errorf("amenity lookup failed: %w", err)
	}
	return counts, nil
}

// get performs one vendor request and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vendor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vendor returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode vendor response: %w", err)
	}
	return nil
}
