package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortenAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "skips house number", in: "123, Main Street, Springfield", want: "Main Street"},
		{name: "first meaningful part", in: "Koramangala, Bengaluru, Karnataka 560034, India", want: "Koramangala"},
		{name: "short parts fall back to first non-empty", in: " , 12, ab", want: "12"},
		{name: "nothing usable", in: " , ,", want: " , ,"},
		{name: "empty", in: "", want: UnknownLocation},
		{name: "counts characters not bytes", in: "東京, Tokyo", want: "Tokyo"},
		{name: "multibyte segment long enough", in: "三軒茶屋, Setagaya", want: "三軒茶屋"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortenAddress(tt.in))
		})
	}
}

func TestParseCoordinates(t *testing.T) {
	lat, lng, err := ParseCoordinates(" 40.7128 , -74.0060")
	require.NoError(t, err)
	assert.InDelta(t, 40.7128, lat, 1e-9)
	assert.InDelta(t, -74.0060, lng, 1e-9)

	for _, bad := range []string{"40.7", "a,b", "1,2,3"} {
		_, _, err := ParseCoordinates(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatFallback(t *testing.T) {
	assert.Equal(t, "Location (40.7128, -74.0060)", FormatFallback(40.7128, -74.0060))
}
