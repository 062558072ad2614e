// Package server exposes the dashboard over HTTP: the config document,
// live host stats, weather, city autocomplete, app reachability, and the
// static frontend.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/atrium-sh/atrium/pkg/dashboard"
	"github.com/atrium-sh/atrium/pkg/openmeteo"
	"github.com/atrium-sh/atrium/pkg/poller"
	"github.com/atrium-sh/atrium/pkg/probe"
	"github.com/atrium-sh/atrium/pkg/search"
	"github.com/atrium-sh/atrium/pkg/sysmetrics"
)

// Forecaster fetches current conditions for a coordinate pair.
type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64) (openmeteo.Current, error)
}

// MetricsSource samples host metrics.
type MetricsSource interface {
	Collect(ctx context.Context) sysmetrics.Snapshot
}

// StatusProber sweeps app URLs for reachability.
type StatusProber interface {
	Sweep(ctx context.Context, targets map[int64]string) map[int64]probe.Result
}

// Options configures a Server. Store is required; nil collaborators fall
// back to live implementations, zero durations to the package defaults.
type Options struct {
	Store     *dashboard.Store
	Metrics   MetricsSource
	Weather   Forecaster
	Geocoder  dashboard.Geocoder
	Prober    StatusProber
	StaticDir string
	Logger    zerolog.Logger

	ProbeInterval  time.Duration
	WeatherRefresh time.Duration

	SearchDebounce   time.Duration
	SearchMinChars   int
	SearchMaxResults int
}

// weatherCache remembers the last forecast and the coordinates it was
// fetched for, so a city change invalidates it.
type weatherCache struct {
	current  openmeteo.Current
	lat, lon float64
	fetched  bool
}

// Server wires the store and the collaborators into an HTTP handler plus
// the background refresh loops.
type Server struct {
	store    *dashboard.Store
	metrics  MetricsSource
	weather  Forecaster
	geocoder dashboard.Geocoder
	prober   StatusProber
	search   *search.Autocomplete
	logger   zerolog.Logger

	staticDir string
	router    chi.Router
	pollers   *poller.Group

	mu       sync.RWMutex
	status   map[int64]probe.Result
	forecast weatherCache
}

// New builds a server from the options.
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = sysmetrics.NewCollector("")
	}
	if opts.Weather == nil {
		opts.Weather = openmeteo.NewClient()
	}
	if opts.Geocoder == nil {
		opts.Geocoder = NewGeocoder(openmeteo.NewClient())
	}
	if opts.Prober == nil {
		opts.Prober = probe.New(probe.DefaultTimeout)
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 10 * time.Second
	}
	if opts.WeatherRefresh <= 0 {
		opts.WeatherRefresh = 10 * time.Minute
	}

	var searchOpts []search.Option
	if opts.SearchDebounce > 0 {
		searchOpts = append(searchOpts, search.WithDebounce(opts.SearchDebounce))
	}
	if opts.SearchMinChars > 0 {
		searchOpts = append(searchOpts, search.WithMinChars(opts.SearchMinChars))
	}
	if opts.SearchMaxResults > 0 {
		searchOpts = append(searchOpts, search.WithMaxResults(opts.SearchMaxResults))
	}

	s := &Server{
		store:     opts.Store,
		metrics:   opts.Metrics,
		weather:   opts.Weather,
		geocoder:  opts.Geocoder,
		prober:    opts.Prober,
		search:    search.New(opts.Geocoder, searchOpts...),
		logger:    opts.Logger,
		staticDir: opts.StaticDir,
		status:    make(map[int64]probe.Result),
	}

	s.router = s.buildRouter()

	s.pollers = poller.NewGroup(opts.Logger)
	s.pollers.Add(poller.Loop{
		Name:     "status",
		Interval: opts.ProbeInterval,
		Run:      s.sweepStatus,
	})
	s.pollers.Add(poller.Loop{
		Name:     "weather",
		Interval: opts.WeatherRefresh,
		Run:      s.refreshWeather,
	})

	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handleReplaceConfig)

		r.Get("/stats", s.handleStats)
		r.Get("/weather", s.handleWeather)
		r.Get("/geocode", s.handleGeocode)

		r.Get("/status", s.handleStatus)
		r.Put("/status/pause", s.handlePause)

		r.Post("/apps", s.handleAddApp)
		r.Put("/apps/{id}", s.handleUpdateApp)
		r.Delete("/apps/{id}", s.handleDeleteApp)
		r.Post("/apps/{id}/category", s.handleMoveApp)

		r.Put("/widgets", s.handleSetWidgets)
		r.Put("/settings", s.handleSaveSettings)
	})

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start launches the background refresh loops.
func (s *Server) Start(ctx context.Context) {
	s.pollers.Start(ctx)
}

// Stop halts the loops and releases pending autocomplete queries.
func (s *Server) Stop() {
	s.pollers.Stop()
	s.search.Close()
}

// sweepStatus probes every app and swaps in the fresh result map. Sweeps
// are skipped while editing is paused so half-typed URLs are not probed.
func (s *Server) sweepStatus(ctx context.Context) {
	if s.store.EditMode() {
		return
	}

	doc := s.store.Document()
	targets := make(map[int64]string, len(doc.Apps))
	for _, app := range doc.Apps {
		targets[app.ID] = app.URL
	}

	results := s.prober.Sweep(ctx, targets)

	s.mu.Lock()
	s.status = results
	s.mu.Unlock()
}

// refreshWeather fetches unconditionally and overwrites the cache, so the
// served forecast never outlives one refresh interval.
func (s *Server) refreshWeather(ctx context.Context) {
	settings := s.store.Document().Settings
	current, err := s.weather.Forecast(ctx, settings.WeatherLat, settings.WeatherLon)
	if err != nil {
		s.logger.Warn().Err(err).Msg("weather refresh failed")
		return
	}

	s.mu.Lock()
	s.forecast = weatherCache{current: current, lat: settings.WeatherLat, lon: settings.WeatherLon, fetched: true}
	s.mu.Unlock()
}

// fetchWeather returns the cached conditions when they match the requested
// coordinates, fetching otherwise.
func (s *Server) fetchWeather(ctx context.Context, lat, lon float64) (openmeteo.Current, error) {
	s.mu.RLock()
	cache := s.forecast
	s.mu.RUnlock()
	if cache.fetched && cache.lat == lat && cache.lon == lon {
		return cache.current, nil
	}

	current, err := s.weather.Forecast(ctx, lat, lon)
	if err != nil {
		return openmeteo.Current{}, err
	}

	s.mu.Lock()
	s.forecast = weatherCache{current: current, lat: lat, lon: lon, fetched: true}
	s.mu.Unlock()
	return current, nil
}
