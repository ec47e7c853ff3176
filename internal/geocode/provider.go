package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrNoResult is a clean miss: the provider answered but had nothing usable.
	ErrNoResult = errors.New("geocode: no result")
	// ErrBadResponse wraps undecodable provider payloads.
	ErrBadResponse = errors.New("geocode: malformed provider response")
)

// Provider reverse-geocodes one coordinate pair into a display name.
type Provider interface {
	Name() string
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

const defaultHTTPTimeout = 5 * time.Second

func newHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// getJSON issues a GET and decodes a JSON body into out.
func getJSON(ctx context.Context, client *http.Client, url, userAgent string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
