package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FlorianWeber/ListFox/internal/pkg/cache"
	"github.com/FlorianWeber/ListFox/internal/pkg/env"
)

const defaultGeocoderBaseURL = "https://nominatim.openstreetmap.org"

const cacheTTL = 24 * time.Hour

// Client resolves postal addresses against a Nominatim-compatible
// geocoding service. Lookups are cached in Redis keyed by the normalized
// query; the external call has a bounded timeout so a stuck geocoder only
// delays the registration response.
type Client struct {
	BaseURL   string
	UserAgent string

	HTTPClient *http.Client

	// UseCache can be disabled for tests.
	UseCache bool
}

// NewClientFromEnv builds a geocoder client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		BaseURL:   strings.TrimRight(env.GetEnv("GEOCODER_BASE_URL", defaultGeocoderBaseURL), "/"),
		UserAgent: env.GetEnv("GEOCODER_USER_AGENT", "ListFox/1.0"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		UseCache: true,
	}
}

type geocodeResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Resolve looks up the coordinate for an address. found=false with a nil
// error means the service answered but knows no such place.
func (c *Client) Resolve(ctx context.Context, address, city, country string) (float64, float64, bool, error) {
	query := normalizeQuery(address, city, country)
	if query == "" {
		return 0, 0, false, nil
	}

	lookup := func() (string, error) {
		lat, lng, found, err := c.lookup(ctx, query)
		if err != nil {
			return "", err
		}
		if !found {
			return "none", nil
		}
		return fmt.Sprintf("%.7f,%.7f", lat, lng), nil
	}

	var raw string
	var err error
	if c.UseCache {
		raw, err = cache.GetOrSet("geocode:"+query, cacheTTL, lookup)
	} else {
		raw, err = lookup()
	}
	if err != nil {
		return 0, 0, false, err
	}
	return parseCached(raw)
}

func (c *Client) lookup(ctx context.Context, query string) (float64, float64, bool, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, false, err
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, 0, false, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, 0, false, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, false, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}
	return ParseResponse(raw)
}

// ParseResponse decodes a geocoder search response into a coordinate.
func ParseResponse(raw []byte) (float64, float64, bool, error) {
	var results []geocodeResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return 0, 0, false, fmt.Errorf("invalid geocoder response: %w", err)
	}
	if len(results) == 0 {
		return 0, 0, false, nil
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(results[0].Lat), 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid latitude in geocoder response: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(results[0].Lon), 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("invalid longitude in geocoder response: %w", err)
	}
	return lat, lng, true, nil
}

func parseCached(raw string) (float64, float64, bool, error) {
	if raw == "none" {
		return 0, 0, false, nil
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false, fmt.Errorf("corrupt cached coordinate %q", raw)
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false, err
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, false, err
	}
	return lat, lng, true, nil
}

func normalizeQuery(address, city, country string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{address, city, country} {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.ToLower(strings.Join(parts, ", "))
}
