package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-realtime/internal/bus"
	"github.com/example/ride-realtime/internal/channel"
	"github.com/example/ride-realtime/internal/config"
	"github.com/example/ride-realtime/internal/dispatch"
	"github.com/example/ride-realtime/internal/geo"
	"github.com/example/ride-realtime/internal/geocode"
	"github.com/example/ride-realtime/internal/ingest"
	"github.com/example/ride-realtime/internal/models"
	"github.com/example/ride-realtime/internal/storage"
)

type pinger interface {
	Ping(ctx context.Context) error
}

const migrationFile = "001_create_driver_events.sql"

// MigrationsDir is where MIGRATE=true looks for the schema.
var MigrationsDir = "migrations"

type Server struct {
	Locations *geo.Index
	Resolver  *geocode.Resolver
	Notifier  *dispatch.Notifier
	Channels  map[channel.Name]*channel.Endpoint

	driverNotifications *channel.DriverNotificationChannel
	bus                 *bus.Bus
	closers             []io.Closer
	pingers             map[string]pinger
	cancel              context.CancelFunc
	mux                 *mux.Router
	logger              *slog.Logger
}

// NewServer wires every component from cfg. Optional backends (Redis,
// Kafka, Postgres, Google, the booking webhook) are only built when
// configured.
func NewServer(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	s := &Server{
		Locations: geo.NewIndex(),
		Channels:  make(map[channel.Name]*channel.Endpoint, 4),
		pingers:   make(map[string]pinger),
		bus:       bus.New(logger.With("component", "bus")),
		mux:       mux.NewRouter(),
		logger:    logger,
	}
	s.closers = append(s.closers, s.bus)

	updaters := geo.Fanout{s.Locations}
	if cfg.RedisAddr != "" {
		rg := geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey, logger.With("component", "redis_geo"))
		updaters = append(updaters, rg)
		s.closers = append(s.closers, rg)
		s.pingers["redis"] = rg
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger.With("component", "kafka_producer"))
		updaters = append(updaters, kp)
		s.closers = append(s.closers, kp)
	}

	var events storage.EventStore = storage.NewBoundedMemoryStore(cfg.JournalLimit)
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.closers = append(s.closers, ps)
		s.pingers["postgres"] = ps
		if cfg.RunMigrations {
			if err := ps.Migrate(ctx, filepath.Join(MigrationsDir, migrationFile)); err != nil {
				s.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migration applied", "file", migrationFile)
		}
		events = ps
	}

	s.Resolver = newResolver(cfg, logger.With("component", "geocode"))

	deps := channel.Deps{
		Locations: updaters,
		Events:    events,
		Bus:       s.bus,
		Transport: channel.TransportOptions{
			AllowedOrigins: cfg.AllowedOrigins,
			WriteTimeout:   cfg.WSWriteTimeout,
			PingInterval:   cfg.WSPingInterval,
			ReadLimit:      cfg.WSReadLimit,
		},
		Logger: logger,
	}
	relay := &responseRelay{logger: logger}
	if cfg.BookingWebhookURL != "" {
		relay.webhook = dispatch.NewWebhookSink(cfg.BookingWebhookURL, logger.With("component", "booking_webhook"))
	}
	s.driverNotifications = channel.NewDriverNotificationChannel(deps, relay)
	for _, ep := range []*channel.Endpoint{
		channel.NewDriverChannel(deps),
		channel.NewDriverLocationChannel(deps),
		channel.NewRiderNotificationChannel(deps),
		s.driverNotifications.Endpoint,
	} {
		s.Channels[ep.Name()] = ep
	}
	s.Notifier = dispatch.NewNotifier(
		s.driverNotifications,
		s.Channels[channel.RiderNotifications],
		s.Resolver,
		logger.With("component", "notifier"),
	)
	relay.notifier = s.Notifier

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	if err := channel.RouteBookingResponses(subCtx, s.bus, s.driverNotifications); err != nil {
		s.Close()
		return nil, fmt.Errorf("subscribe booking responses: %w", err)
	}

	s.routes()
	s.registerMiddleware()
	return s, nil
}

func newResolver(cfg config.ServerConfig, logger *slog.Logger) *geocode.Resolver {
	opts := geocode.Options{
		Cache:  geocode.NewCache(cfg.LocationCacheSize, cfg.LocationCacheTTL),
		Logger: logger,
	}
	// GEOCODE_TIMEOUT bounds each outbound request, not the time spent
	// queued behind Nominatim's rate limit.
	client := &http.Client{Timeout: cfg.GeocodeTimeout}
	if cfg.GoogleMapsAPIKey != "" {
		opts.Primary = geocode.WithBreaker(geocode.NewGoogle(cfg.GoogleGeocodeURL, cfg.GoogleMapsAPIKey, client), 30*time.Second, logger)
	}
	if cfg.NominatimURL != "" {
		opts.Secondary = geocode.WithBreaker(geocode.NewNominatim(cfg.NominatimURL, cfg.GeocodeUserAgent, cfg.NominatimDelay, client), 30*time.Second, logger)
	}
	return geocode.NewResolver(opts)
}

func (s *Server) routes() {
	s.mux.Handle("/ws/driver/{driverId}", s.Channels[channel.Driver])
	s.mux.Handle("/ws/driver-location", s.Channels[channel.DriverLocation])
	s.mux.Handle("/ws/driver-notifications", s.Channels[channel.DriverNotifications])
	s.mux.Handle("/ws/rider-notifications", s.Channels[channel.RiderNotifications])

	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/internal/channels/{channel}/sessions", s.handleSessions).Methods(http.MethodGet)
	s.mux.HandleFunc("/internal/channels/{channel}/sessions/{id}", s.handleSession).Methods(http.MethodGet)
	s.mux.HandleFunc("/internal/channels/{channel}/sessions/{id}", s.handleDisconnect).Methods(http.MethodDelete)
	s.mux.HandleFunc("/internal/location-cache", s.handleCacheSize).Methods(http.MethodGet)
	s.mux.HandleFunc("/internal/location-cache", s.handleCacheClear).Methods(http.MethodDelete)
	s.mux.HandleFunc("/api/v1/locations/resolve", s.handleResolve).Methods(http.MethodGet)

	s.mux.HandleFunc("/internal/notifications/drivers/{driverId}/ride-requests", s.handleRideRequest).Methods(http.MethodPost)
	s.mux.HandleFunc("/internal/notifications/riders/{riderId}/ride-status", s.handleRideStatus).Methods(http.MethodPost)
	s.mux.HandleFunc("/internal/notifications/riders/{riderId}/driver-location", s.handleDriverLocation).Methods(http.MethodPost)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Close stops the bus subscription and releases every backend.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady pings every configured backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for name, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) endpoint(w http.ResponseWriter, r *http.Request) (*channel.Endpoint, bool) {
	ep, ok := s.Channels[channel.Name(mux.Vars(r)["channel"])]
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
	}
	return ep, ok
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.endpoint(w, r)
	if !ok {
		return
	}
	ids := ep.Identities()
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string]any{"channel": ep.Name(), "identities": ids})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.endpoint(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]any{"channel": ep.Name(), "id": id, "connected": ep.IsConnected(id)})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.endpoint(w, r)
	if !ok {
		return
	}
	if !ep.Disconnect(mux.Vars(r)["id"]) {
		http.Error(w, "not connected", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheSize(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"size": s.Resolver.CacheSize()})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.Resolver.ClearCache()
	s.logger.Info("location cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res := s.Resolver.ResolveResult(r.Context(), r.URL.Query().Get("coordinates"))
	writeJSON(w, http.StatusOK, map[string]string{"name": res.Name, "source": res.Source, "outcome": string(res.Outcome)})
}

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequestNotice
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		http.Error(w, "bookingId is required", http.StatusBadRequest)
		return
	}
	s.Notifier.NotifyRideRequest(r.Context(), mux.Vars(r)["driverId"], req)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	var st models.RideStatusNotice
	if !decodeBody(w, r, &st) {
		return
	}
	if strings.TrimSpace(st.Status) == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}
	s.Notifier.NotifyRideStatus(mux.Vars(r)["riderId"], st)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var u models.DriverLocationUpdate
	if !decodeBody(w, r, &u) {
		return
	}
	s.Notifier.NotifyDriverLocation(mux.Vars(r)["riderId"], u)
	w.WriteHeader(http.StatusAccepted)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// responseRelay is the sink behind the driver-notification channel: it
// forwards each booking response to the booking service and tells the
// rider, when the payload names one.
type responseRelay struct {
	webhook  *dispatch.WebhookSink
	notifier *dispatch.Notifier
	logger   *slog.Logger
}

func (r *responseRelay) RideResponse(ctx context.Context, driverID string, payload map[string]any) {
	if r.webhook != nil {
		r.webhook.RideResponse(ctx, driverID, payload)
	}
	riderID, _ := payload["riderId"].(string)
	if riderID == "" || r.notifier == nil {
		return
	}
	env := dispatch.Envelope{Payload: payload}
	resp := env.String("response")
	r.notifier.NotifyRideStatus(riderID, models.RideStatusNotice{
		BookingID: env.String("bookingId"),
		Status:    strings.ToUpper(resp),
		Message:   fmt.Sprintf("Driver %s responded %s", driverID, resp),
	})
}
