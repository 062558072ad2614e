package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/atrium-sh/atrium/pkg/dashboard"
	"github.com/atrium-sh/atrium/pkg/probe"
	"github.com/atrium-sh/atrium/pkg/search"
	"github.com/atrium-sh/atrium/pkg/sysmetrics"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func appID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid app id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.Document())
}

// handleReplaceConfig accepts the raw document in any historical shape and
// swaps in the reconciled result.
func (s *Server) handleReplaceConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, dashboard.MaxDocumentSize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		respondError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.store.Replace(raw))
}

// statsResponse carries the raw sample plus the ready-to-render gauges the
// display modes call for.
type statsResponse struct {
	sysmetrics.Snapshot
	CPUGauge dashboard.Gauge `json:"cpuGauge"`
	RAMGauge dashboard.Gauge `json:"ramGauge"`
	ROMGauge dashboard.Gauge `json:"romGauge"`
	Greeting string          `json:"greeting"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Collect(r.Context())
	widgets := s.store.Document().WidgetSettings

	respondJSON(w, http.StatusOK, statsResponse{
		Snapshot: snap,
		CPUGauge: dashboard.PercentGauge(snap.CPU),
		RAMGauge: dashboard.BuildGauge(widgets[dashboard.WidgetRAM].Display, snap.RAM.Active, snap.RAM.Total),
		ROMGauge: dashboard.BuildGauge(widgets[dashboard.WidgetROM].Display, snap.ROM.Used, snap.ROM.Size),
		Greeting: dashboard.Greeting(time.Now().Hour()),
	})
}

type weatherResponse struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
	WeatherCode int     `json:"weatherCode"`
	Condition   string  `json:"condition"`
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	settings := s.store.Document().Settings
	current, err := s.fetchWeather(r.Context(), settings.WeatherLat, settings.WeatherLon)
	if err != nil {
		respondError(w, http.StatusBadGateway, "weather lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, weatherResponse{
		City:        settings.WeatherCity,
		Temperature: current.Temperature,
		WeatherCode: current.WeatherCode,
		Condition:   dashboard.ClassifyWeatherCode(current.WeatherCode),
	})
}

// handleGeocode serves city autocomplete. The sid query parameter keys the
// debounce session; a request superseded by a newer one for the same sid
// returns 204 so stale suggestion lists never render.
func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		sid = "default"
	}

	locs, err := s.search.Query(r.Context(), sid, r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, search.ErrSuperseded):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		respondError(w, http.StatusBadGateway, "geocoding failed")
		return
	}
	if locs == nil {
		locs = []dashboard.Location{}
	}
	respondJSON(w, http.StatusOK, locs)
}

type statusResponse struct {
	Paused bool                   `json:"paused"`
	Apps   map[int64]probe.Result `json:"apps"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	apps := make(map[int64]probe.Result, len(s.status))
	for id, res := range s.status {
		apps[id] = res
	}
	s.mu.RUnlock()

	respondJSON(w, http.StatusOK, statusResponse{
		Paused: s.store.EditMode(),
		Apps:   apps,
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paused bool `json:"paused"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	s.store.SetEditMode(body.Paused)
	respondJSON(w, http.StatusOK, map[string]bool{"paused": body.Paused})
}

func (s *Server) handleAddApp(w http.ResponseWriter, r *http.Request) {
	var in dashboard.AppInput
	if !decodeJSON(w, r, &in) {
		return
	}
	app, err := s.store.AddApp(in)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, app)
}

func (s *Server) handleUpdateApp(w http.ResponseWriter, r *http.Request) {
	id, ok := appID(w, r)
	if !ok {
		return
	}
	var in dashboard.AppInput
	if !decodeJSON(w, r, &in) {
		return
	}
	app, err := s.store.UpdateApp(id, in)
	switch {
	case errors.Is(err, dashboard.ErrAppNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondJSON(w, http.StatusOK, app)
	}
}

func (s *Server) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	id, ok := appID(w, r)
	if !ok {
		return
	}
	if !s.store.DeleteApp(id) {
		respondError(w, http.StatusNotFound, dashboard.ErrAppNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMoveApp(w http.ResponseWriter, r *http.Request) {
	id, ok := appID(w, r)
	if !ok {
		return
	}
	var body struct {
		Category string `json:"category"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := s.store.MoveApp(id, body.Category); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetWidgets(w http.ResponseWriter, r *http.Request) {
	var settings map[string]dashboard.WidgetSetting
	if !decodeJSON(w, r, &settings) {
		return
	}
	s.store.SetWidgets(settings)
	respondJSON(w, http.StatusOK, s.store.Document().WidgetSettings)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var in dashboard.SettingsInput
	if !decodeJSON(w, r, &in) {
		return
	}
	settings, err := s.store.SaveSettings(r.Context(), in, s.geocoder)
	switch {
	case errors.Is(err, dashboard.ErrCityNotFound):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondJSON(w, http.StatusOK, settings)
	}
}
