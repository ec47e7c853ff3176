package geocode

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org/reverse"
	DefaultUserAgent    = "ride-realtime/1.0"
)

// Address fields tried in order, most specific first.
var nominatimFields = []string{"suburb", "neighbourhood", "city_district", "city", "town", "village"}

// Nominatim queries OpenStreetMap's reverse endpoint. The public service
// allows one request per second, so requests are serialized and each one
// waits Delay before going out. Client.Timeout covers only the request
// itself, never the wait for a slot.
type Nominatim struct {
	Endpoint  string
	UserAgent string
	Delay     time.Duration
	Client    *http.Client

	sem chan struct{}
}

func NewNominatim(endpoint, userAgent string, delay time.Duration, client *http.Client) *Nominatim {
	if endpoint == "" {
		endpoint = DefaultNominatimURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Nominatim{
		Endpoint:  endpoint,
		UserAgent: userAgent,
		Delay:     delay,
		Client:    newHTTPClient(client),
		sem:       make(chan struct{}, 1),
	}
}

func (n *Nominatim) Name() string { return "nominatim" }

func (n *Nominatim) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	select {
	case n.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-n.sem }()

	if n.Delay > 0 {
		t := time.NewTimer(n.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}

	u := fmt.Sprintf("%s?format=json&lat=%.6f&lon=%.6f&zoom=16&addressdetails=1", n.Endpoint, lat, lng)
	var out struct {
		Error       string            `json:"error"`
		DisplayName string            `json:"display_name"`
		Address     map[string]string `json:"address"`
	}
	if err := getJSON(ctx, n.Client, u, n.UserAgent, &out); err != nil {
		return "", err
	}
	if out.Error != "" || out.Address == nil {
		return "", ErrNoResult
	}
	for _, f := range nominatimFields {
		if v := strings.TrimSpace(out.Address[f]); v != "" {
			return v, nil
		}
	}
	if out.DisplayName != "" {
		return ShortenAddress(out.DisplayName), nil
	}
	return "", ErrNoResult
}
