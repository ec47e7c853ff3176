package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServerConfig captures all tunable parameters for the realtime process.
// Values come from (in order of precedence) flags, environment variables,
// an optional config file and the defaults below, so the binary runs
// locally without any setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	AllowedOrigins []string
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration
	WSReadLimit    int64

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	PGDSN         string
	RunMigrations bool
	// JournalLimit caps the in-memory driver event journal used without PG_DSN.
	JournalLimit int

	GoogleMapsAPIKey  string
	GoogleGeocodeURL  string
	NominatimURL      string
	NominatimDelay    time.Duration
	GeocodeTimeout    time.Duration
	GeocodeUserAgent  string
	LocationCacheSize int
	LocationCacheTTL  time.Duration
	BookingWebhookURL string

	LogLevel string
}

var defaults = map[string]any{
	"http_addr":             ":8080",
	"http_read_timeout":     "5s",
	"http_write_timeout":    "10s",
	"http_idle_timeout":     "120s",
	"http_shutdown_timeout": "15s",

	"allowed_origins":  "http://localhost:3000,https://localhost:3000",
	"ws_write_timeout": "5s",
	"ws_ping_interval": "30s",
	"ws_read_limit":    "1048576",

	"redis_geo_key": "drivers_geo",
	"kafka_topic":   "driver-locations",
	"kafka_group":   "ride-realtime-consumer",
	"migrate":       "false",
	"journal_limit": "10000",

	"geocode_google_url":      "https://maps.googleapis.com/maps/api/geocode/json",
	"geocode_nominatim_url":   "https://nominatim.openstreetmap.org/reverse",
	"geocode_nominatim_delay": "1s",
	"geocode_timeout":         "5s",
	"geocode_user_agent":      "ride-realtime/1.0",
	"location_cache_size":     "0",
	"location_cache_ttl":      "0s",

	"log_level": "info",
}

// BindFlags registers the command-line overrides on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "optional config file (yaml, json or toml)")
	fs.String("http-addr", "", "listen address, overrides HTTP_ADDR")
	fs.String("log-level", "", "debug, info, warn or error; overrides LOG_LEVEL")
}

// LoadServerConfig resolves the configuration. fs may be nil when no flags
// were parsed. Every invalid value is reported, not just the first.
func LoadServerConfig(fs *pflag.FlagSet) (ServerConfig, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var errs []error
	if fs != nil {
		if f := fs.Lookup("http-addr"); f != nil && f.Changed {
			v.Set("http_addr", f.Value.String())
		}
		if f := fs.Lookup("log-level"); f != nil && f.Changed {
			v.Set("log_level", f.Value.String())
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				errs = append(errs, fmt.Errorf("read config file: %w", err))
			}
		}
	}

	var cfg ServerConfig
	cfg.HTTPAddr = getString(v, "http_addr")
	setDuration(v, &cfg.ReadTimeout, "http_read_timeout", &errs)
	setDuration(v, &cfg.WriteTimeout, "http_write_timeout", &errs)
	setDuration(v, &cfg.IdleTimeout, "http_idle_timeout", &errs)
	setDuration(v, &cfg.ShutdownTimeout, "http_shutdown_timeout", &errs)

	cfg.AllowedOrigins = splitAndTrim(getString(v, "allowed_origins"))
	setDuration(v, &cfg.WSWriteTimeout, "ws_write_timeout", &errs)
	setDuration(v, &cfg.WSPingInterval, "ws_ping_interval", &errs)
	setInt64(v, &cfg.WSReadLimit, "ws_read_limit", &errs)

	cfg.RedisAddr = getString(v, "redis_addr")
	cfg.RedisPassword = v.GetString("redis_password")
	cfg.RedisGeoKey = getString(v, "redis_geo_key")

	cfg.KafkaBrokers = splitAndTrim(getString(v, "kafka_brokers"))
	cfg.KafkaTopic = getString(v, "kafka_topic")
	cfg.KafkaGroup = getString(v, "kafka_group")

	cfg.PGDSN = getString(v, "pg_dsn")
	setBool(v, &cfg.RunMigrations, "migrate", &errs)
	setInt(v, &cfg.JournalLimit, "journal_limit", &errs)

	cfg.GoogleMapsAPIKey = getString(v, "google_maps_api_key")
	cfg.GoogleGeocodeURL = getString(v, "geocode_google_url")
	cfg.NominatimURL = getString(v, "geocode_nominatim_url")
	setDuration(v, &cfg.NominatimDelay, "geocode_nominatim_delay", &errs)
	setDuration(v, &cfg.GeocodeTimeout, "geocode_timeout", &errs)
	cfg.GeocodeUserAgent = getString(v, "geocode_user_agent")
	setInt(v, &cfg.LocationCacheSize, "location_cache_size", &errs)
	setDuration(v, &cfg.LocationCacheTTL, "location_cache_ttl", &errs)
	cfg.BookingWebhookURL = getString(v, "booking_webhook_url")

	cfg.LogLevel = strings.ToLower(getString(v, "log_level"))

	if cfg.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR must not be empty"))
	}
	if cfg.LocationCacheSize < 0 {
		errs = append(errs, errors.New("LOCATION_CACHE_SIZE must be >= 0"))
	}
	if cfg.JournalLimit <= 0 {
		errs = append(errs, errors.New("JOURNAL_LIMIT must be > 0"))
	}
	if cfg.WSReadLimit <= 0 {
		errs = append(errs, errors.New("WS_READ_LIMIT must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// The typed viper getters swallow parse errors, so values are read as
// strings and parsed here.

func setDuration(v *viper.Viper, target *time.Duration, key string, errs *[]error) {
	if s := getString(v, key); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", envName(key), err))
			return
		}
		*target = d
	}
}

func setInt(v *viper.Viper, target *int, key string, errs *[]error) {
	if s := getString(v, key); s != "" {
		i, err := strconv.Atoi(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", envName(key), err))
			return
		}
		*target = i
	}
}

func setInt64(v *viper.Viper, target *int64, key string, errs *[]error) {
	if s := getString(v, key); s != "" {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", envName(key), err))
			return
		}
		*target = i
	}
}

func setBool(v *viper.Viper, target *bool, key string, errs *[]error) {
	if s := getString(v, key); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", envName(key), err))
			return
		}
		*target = b
	}
}

func envName(key string) string { return strings.ToUpper(key) }

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
