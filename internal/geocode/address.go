package geocode

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const UnknownLocation = "Unknown Location"

// ShortenAddress picks a display-sized piece of a comma separated address:
// the first segment that is not a bare number and is longer than two
// characters, else the first non-empty segment, else the input itself.
func ShortenAddress(full string) string {
	if full == "" {
		return UnknownLocation
	}
	parts := strings.Split(full, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && !allDigits(p) && utf8.RuneCountInString(p) > 2 {
			return p
		}
	}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			return p
		}
	}
	return full
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ParseCoordinates splits a verbatim "lat,lng" key.
func ParseCoordinates(coords string) (lat, lng float64, err error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid coordinate format %q", coords)
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid latitude in %q: %w", coords, err)
	}
	if lng, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid longitude in %q: %w", coords, err)
	}
	return lat, lng, nil
}

// FormatFallback renders coordinates when no provider produced a name.
func FormatFallback(lat, lng float64) string {
	return fmt.Sprintf("Location (%.4f, %.4f)", lat, lng)
}
