// Package geocode is a best-effort client for a Nominatim-compatible
// geocoding service. Every failure is logged and reported as an absent result;
// callers never block on geocoding.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quickfix/quickfix-api/internal/logger"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://nominatim.openstreetmap.org"
	DefaultUserAgent = "QuickFix/1.0"
	defaultTimeout   = 10 * time.Second
)

// Point is a forward geocoding result.
type Point struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DisplayName string  `json:"display_name,omitempty"`
}

// Place is a reverse geocoding result. City is empty when the service
// returned no locality.
type Place struct {
	City        string  `json:"city"`
	DisplayName string  `json:"display_name,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// Label returns the city, falling back to the display name.
func (p *Place) Label() string {
	if p == nil {
		return ""
	}
	if p.City != "" {
		return p.City
	}
	return p.DisplayName
}

// Geocoder resolves city text to coordinates and back.
type Geocoder interface {
	Forward(ctx context.Context, city string) *Point
	Reverse(ctx context.Context, lat, lng float64) *Place
}

// Client talks to the geocoding HTTP API.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Geocoder = (*Client)(nil)

// NewClient creates a geocoding client. Empty baseURL and userAgent use the defaults.
func NewClient(baseURL, userAgent string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log,
	}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type reverseResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		County  string `json:"county"`
		State   string `json:"state"`
	} `json:"address"`
}

// Forward returns the first match for city, or nil.
func (c *Client) Forward(ctx context.Context, city string) *Point {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil
	}
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", city)
	q.Set("limit", "1")

	var results []searchResult
	if err := c.get(ctx, "/search", q, &results); err != nil {
		c.logger.Warn("geocode_forward_failed",
			zap.String("city", logger.SanitizeCity(city)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return nil
	}
	if len(results) == 0 {
		return nil
	}
	lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(results[0].Lon, 64)
	if errLat != nil || errLng != nil {
		c.logger.Warn("geocode_forward_bad_coordinates", zap.String("city", logger.SanitizeCity(city)))
		return nil
	}
	return &Point{Lat: lat, Lng: lng, DisplayName: results[0].DisplayName}
}

// Reverse returns the locality at lat/lng, or nil.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) *Place {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	var res reverseResult
	if err := c.get(ctx, "/reverse", q, &res); err != nil {
		c.logger.Warn("geocode_reverse_failed",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.String("error", logger.SanitizeError(err)),
		)
		return nil
	}

	place := &Place{DisplayName: res.DisplayName, Lat: lat, Lng: lng}
	for _, candidate := range []string{res.Address.City, res.Address.Town, res.Address.Village, res.Address.County, res.Address.State} {
		if candidate != "" {
			place.City = candidate
			break
		}
	}
	if v, err := strconv.ParseFloat(res.Lat, 64); err == nil {
		place.Lat = v
	}
	if v, err := strconv.ParseFloat(res.Lon, 64); err == nil {
		place.Lng = v
	}
	return place
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
