package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/yahdeeez/teenguard/internal/domain"
)

// Balanced-accuracy IP geolocation. A headless device has no GPS, so the
// provider resolves the device's public IP to coordinates. Accuracy of IP
// geolocation is city-level, reported as a fixed radius.
const (
	defaultGeoIPURL    = "http://ip-api.com/json/?fields=status,message,lat,lon"
	ipFixAccuracyMeter = 5000.0
)

// IPLocationProvider implements domain.LocationProvider over an IP
// geolocation HTTP service.
type IPLocationProvider struct {
	endpoint string
	http     *http.Client
}

// NewIPLocationProvider creates a provider against the default service.
func NewIPLocationProvider() *IPLocationProvider {
	return NewIPLocationProviderWithEndpoint(defaultGeoIPURL)
}

// NewIPLocationProviderWithEndpoint creates a provider against a specific
// service URL (for tests).
func NewIPLocationProviderWithEndpoint(endpoint string) *IPLocationProvider {
	return &IPLocationProvider{
		endpoint: endpoint,
		http:     &http.Client{},
	}
}

// CurrentPosition acquires one fix. The caller's context bounds the wait.
func (p *IPLocationProvider) CurrentPosition(ctx context.Context) (domain.Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to build geolocation request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return domain.Position{}, fmt.Errorf("geolocation request failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string  `json:"status"`
		Message string  `json:"message"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Position{}, fmt.Errorf("failed to decode geolocation response: %w", err)
	}
	if body.Status != "success" {
		return domain.Position{}, fmt.Errorf("geolocation lookup failed: %s", body.Message)
	}

	return domain.Position{
		Latitude:  body.Lat,
		Longitude: body.Lon,
		Accuracy:  ipFixAccuracyMeter,
	}, nil
}

const defaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"

// NominatimGeocoder implements domain.Geocoder over the OSM Nominatim
// reverse-geocoding API.
type NominatimGeocoder struct {
	endpoint  string
	userAgent string
	http      *http.Client
}

// NewNominatimGeocoder creates a geocoder against the public Nominatim
// instance.
func NewNominatimGeocoder() *NominatimGeocoder {
	return NewNominatimGeocoderWithEndpoint(defaultNominatimURL)
}

// NewNominatimGeocoderWithEndpoint creates a geocoder against a specific
// endpoint (for tests).
func NewNominatimGeocoderWithEndpoint(endpoint string) *NominatimGeocoder {
	return &NominatimGeocoder{
		endpoint:  endpoint,
		userAgent: "teenguard/1.0",
		http:      &http.Client{},
	}
}

// ReverseGeocode resolves a fix to a display address.
func (g *NominatimGeocoder) ReverseGeocode(ctx context.Context, pos domain.Position) (string, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", pos.Latitude))
	query.Set("lon", fmt.Sprintf("%f", pos.Longitude))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode request returned status %d", resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if body.DisplayName == "" {
		return "", fmt.Errorf("no address for %f,%f", pos.Latitude, pos.Longitude)
	}
	return body.DisplayName, nil
}
