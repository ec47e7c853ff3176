package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const DefaultGoogleURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Google queries the Google Geocoding API. Without an API key it never
// issues a request.
type Google struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewGoogle(endpoint, apiKey string, client *http.Client) *Google {
	if endpoint == "" {
		endpoint = DefaultGoogleURL
	}
	return &Google{Endpoint: endpoint, APIKey: apiKey, Client: newHTTPClient(client)}
}

func (g *Google) Name() string { return "google" }

func (g *Google) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	if g.APIKey == "" {
		return "", ErrNoResult
	}
	u := fmt.Sprintf("%s?latlng=%.6f,%.6f&key=%s", g.Endpoint, lat, lng, url.QueryEscape(g.APIKey))
	var out struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
		} `json:"results"`
	}
	if err := getJSON(ctx, g.Client, u, "", &out); err != nil {
		return "", err
	}
	switch out.Status {
	case "OK":
	case "ZERO_RESULTS":
		return "", ErrNoResult
	default:
		return "", fmt.Errorf("google geocode status %q", out.Status)
	}
	if len(out.Results) == 0 {
		return "", ErrNoResult
	}
	return ShortenAddress(out.Results[0].FormattedAddress), nil
}
