package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/atrium-sh/atrium/pkg/dashboard"
	"github.com/atrium-sh/atrium/pkg/openmeteo"
	"github.com/atrium-sh/atrium/pkg/probe"
	"github.com/atrium-sh/atrium/pkg/sysmetrics"
)

type fakeMetrics struct {
	snap sysmetrics.Snapshot
}

func (f fakeMetrics) Collect(context.Context) sysmetrics.Snapshot { return f.snap }

type fakeForecaster struct {
	calls   int
	current openmeteo.Current
	err     error
}

func (f *fakeForecaster) Forecast(context.Context, float64, float64) (openmeteo.Current, error) {
	f.calls++
	return f.current, f.err
}

type fakeGeocoder struct {
	locations []dashboard.Location
	err       error
}

func (f fakeGeocoder) Geocode(context.Context, string, int) ([]dashboard.Location, error) {
	return f.locations, f.err
}

type fakeProber struct {
	results map[int64]probe.Result
	sweeps  int
}

func (f *fakeProber) Sweep(_ context.Context, targets map[int64]string) map[int64]probe.Result {
	f.sweeps++
	out := make(map[int64]probe.Result, len(targets))
	for id := range targets {
		out[id] = f.results[id]
	}
	return out
}

type testEnv struct {
	server     *Server
	store      *dashboard.Store
	forecaster *fakeForecaster
	prober     *fakeProber
}

func newTestEnv(t *testing.T, doc dashboard.Document) *testEnv {
	t.Helper()
	store := dashboard.NewStore(doc, dashboard.SaverFunc(func(dashboard.Document) error { return nil }), zerolog.Nop())
	forecaster := &fakeForecaster{current: openmeteo.Current{Temperature: 18.5, WeatherCode: 61}}
	prober := &fakeProber{results: map[int64]probe.Result{}}

	srv := New(Options{
		Store:   store,
		Metrics: fakeMetrics{snap: sysmetrics.Snapshot{
			CPU:  42.5,
			RAM:  sysmetrics.Memory{Active: 4 << 30, Total: 16 << 30},
			ROM:  sysmetrics.Disk{Used: 100 << 30, Size: 500 << 30},
			Temp: 55,
		}},
		Weather:        forecaster,
		Geocoder:       fakeGeocoder{locations: []dashboard.Location{{Name: "Oslo", Country: "Norway", Latitude: 59.91, Longitude: 10.75}}},
		Prober:         prober,
		Logger:         zerolog.Nop(),
		SearchDebounce: time.Millisecond,
	})
	t.Cleanup(srv.Stop)
	return &testEnv{server: srv, store: store, forecaster: forecaster, prober: prober}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rec.Body.String())
	}
	return out
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())
	rec := env.do(t, http.MethodGet, "/api/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	doc := decodeBody[dashboard.Document](t, rec)
	if doc.Version != dashboard.CurrentVersion {
		t.Errorf("version: got %d", doc.Version)
	}
	if len(doc.WidgetSettings) != len(dashboard.WidgetIDs) {
		t.Errorf("widgets: got %d", len(doc.WidgetSettings))
	}
}

func TestReplaceConfigReconcilesLegacyShape(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())
	legacy := `{"apps":[{"id":1,"name":"Jellyfin","url":"http://nas:8096","category":"Media","desc":"","icon":"jellyfin"}],"activeWidgets":["cpu"]}`

	rec := env.do(t, http.MethodPost, "/api/config", []byte(legacy))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	doc := decodeBody[dashboard.Document](t, rec)
	if doc.Version != dashboard.CurrentVersion {
		t.Errorf("version: got %d", doc.Version)
	}
	if !doc.WidgetSettings[dashboard.WidgetCPU].Enabled {
		t.Error("cpu widget should be enabled")
	}
	if doc.WidgetSettings[dashboard.WidgetRAM].Enabled {
		t.Error("ram widget should be disabled for a legacy list without it")
	}
	if len(doc.Apps) != 1 || doc.Apps[0].Name != "Jellyfin" {
		t.Errorf("apps: %+v", doc.Apps)
	}
}

func TestReplaceConfigTooLarge(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())
	huge := bytes.Repeat([]byte("a"), dashboard.MaxDocumentSize+1)
	rec := env.do(t, http.MethodPost, "/api/config", huge)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d want 413", rec.Code)
	}
}

func TestStats(t *testing.T) {
	doc := dashboard.Default()
	env := newTestEnv(t, doc)

	rec := env.do(t, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	stats := decodeBody[statsResponse](t, rec)
	if stats.CPU != 42.5 {
		t.Errorf("cpu: got %v", stats.CPU)
	}
	if stats.RAM.Total != 16<<30 {
		t.Errorf("ram total: got %d", stats.RAM.Total)
	}
	if stats.CPUGauge.Label != "43%" {
		t.Errorf("cpu gauge label: got %q", stats.CPUGauge.Label)
	}
	// RAM defaults to percent display: 4 of 16 GiB.
	if stats.RAMGauge.Label != "25%" {
		t.Errorf("ram gauge label: got %q", stats.RAMGauge.Label)
	}
	if stats.Temp != 55 {
		t.Errorf("temp: got %v", stats.Temp)
	}
	if stats.Greeting == "" {
		t.Error("greeting missing")
	}
}

func TestWeatherCachedPerCoordinates(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())

	rec := env.do(t, http.MethodGet, "/api/weather", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	resp := decodeBody[weatherResponse](t, rec)
	if resp.Condition != "Rainy" {
		t.Errorf("condition: got %q want Rainy for code 61", resp.Condition)
	}
	if resp.City != "Amsterdam" {
		t.Errorf("city: got %q", resp.City)
	}

	env.do(t, http.MethodGet, "/api/weather", nil)
	if env.forecaster.calls != 1 {
		t.Errorf("forecaster calls: got %d want 1 (second hit served from cache)", env.forecaster.calls)
	}

	// A settings change with new coordinates invalidates the cache.
	oslo := dashboard.Location{Name: "Oslo", Latitude: 59.91, Longitude: 10.75}
	if _, err := env.store.SaveSettings(context.Background(), dashboard.SettingsInput{City: "Oslo", Picked: &oslo}, fakeGeocoder{}); err != nil {
		t.Fatal(err)
	}
	env.do(t, http.MethodGet, "/api/weather", nil)
	if env.forecaster.calls != 2 {
		t.Errorf("forecaster calls: got %d want 2 after location change", env.forecaster.calls)
	}
}

func TestWeatherRefreshCycleRefetches(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())

	env.server.refreshWeather(context.Background())
	env.server.refreshWeather(context.Background())
	if env.forecaster.calls != 2 {
		t.Fatalf("forecaster calls: got %d want 2 (every refresh cycle must refetch)", env.forecaster.calls)
	}

	// The served forecast follows the latest cycle without another fetch.
	env.forecaster.current = openmeteo.Current{Temperature: 3.5, WeatherCode: 0}
	env.server.refreshWeather(context.Background())

	rec := env.do(t, http.MethodGet, "/api/weather", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	resp := decodeBody[weatherResponse](t, rec)
	if resp.Temperature != 3.5 {
		t.Errorf("temperature: got %v want the refreshed reading", resp.Temperature)
	}
	if resp.Condition != "Clear" {
		t.Errorf("condition: got %q want Clear for code 0", resp.Condition)
	}
	if env.forecaster.calls != 3 {
		t.Errorf("forecaster calls: got %d want 3 (request served from the refreshed cache)", env.forecaster.calls)
	}
}

func TestWeatherRefreshFailureKeepsLastReading(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())

	env.server.refreshWeather(context.Background())
	env.forecaster.err = fmt.Errorf("connect: network unreachable")
	env.server.refreshWeather(context.Background())

	rec := env.do(t, http.MethodGet, "/api/weather", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d (stale reading should still serve)", rec.Code)
	}
	resp := decodeBody[weatherResponse](t, rec)
	if resp.Temperature != 18.5 {
		t.Errorf("temperature: got %v want the last good reading", resp.Temperature)
	}
}

func TestWeatherUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())
	env.forecaster.err = fmt.Errorf("connect: network unreachable")

	rec := env.do(t, http.MethodGet, "/api/weather", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status: got %d want 502", rec.Code)
	}
}

func TestGeocode(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())

	rec := env.do(t, http.MethodGet, "/api/geocode?q=oslo&sid=s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	locs := decodeBody[[]dashboard.Location](t, rec)
	if len(locs) != 1 || locs[0].Name != "Oslo" {
		t.Errorf("locations: %+v", locs)
	}
}

func TestGeocodeShortQueryHidesList(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())

	rec := env.do(t, http.MethodGet, "/api/geocode?q=o", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body: got %q want empty list", got)
	}
}

func TestStatusReflectsSweep(t *testing.T) {
	doc := dashboard.Default()
	doc.Apps = []dashboard.App{
		{ID: 1, Category: "Media", Name: "Jellyfin", URL: "http://nas:8096"},
		{ID: 2, Category: "Media", Name: "Sonarr", URL: "http://nas:8989"},
	}
	env := newTestEnv(t, doc)
	env.prober.results = map[int64]probe.Result{
		1: {Online: true, RTT: 12 * time.Millisecond, RTTms: 12},
		2: {Online: false},
	}

	env.server.sweepStatus(context.Background())

	rec := env.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	resp := decodeBody[statusResponse](t, rec)
	if resp.Paused {
		t.Error("paused should be false by default")
	}
	if !resp.Apps[1].Online || resp.Apps[1].RTTms != 12 {
		t.Errorf("app 1: %+v", resp.Apps[1])
	}
	if resp.Apps[2].Online {
		t.Error("app 2 should be offline")
	}
}

func TestPauseSkipsSweeps(t *testing.T) {
	doc := dashboard.Default()
	doc.Apps = []dashboard.App{{ID: 1, Category: "Media", Name: "Jellyfin", URL: "http://nas:8096"}}
	env := newTestEnv(t, doc)

	rec := env.do(t, http.MethodPut, "/api/status/pause", map[string]bool{"paused": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	env.server.sweepStatus(context.Background())
	if env.prober.sweeps != 0 {
		t.Error("sweep must be skipped while paused")
	}

	env.do(t, http.MethodPut, "/api/status/pause", map[string]bool{"paused": false})
	env.server.sweepStatus(context.Background())
	if env.prober.sweeps != 1 {
		t.Error("sweep must resume after unpausing")
	}
}

func TestAddApp(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())

	rec := env.do(t, http.MethodPost, "/api/apps", dashboard.AppInput{Name: "Grafana", URL: "grafana.local"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	app := decodeBody[dashboard.App](t, rec)
	if app.URL != "http://grafana.local" {
		t.Errorf("url not normalized: %q", app.URL)
	}
	if app.Category != "General" {
		t.Errorf("category: got %q", app.Category)
	}
	if len(env.store.Document().Apps) != 1 {
		t.Error("app not stored")
	}
}

func TestAddAppValidation(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())
	rec := env.do(t, http.MethodPost, "/api/apps", dashboard.AppInput{URL: "http://x"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d want 422", rec.Code)
	}
	if len(env.store.Document().Apps) != 0 {
		t.Error("rejected app must not be stored")
	}
}

func TestUpdateApp(t *testing.T) {
	doc := dashboard.Default()
	doc.Apps = []dashboard.App{{ID: 7, Category: "Media", Name: "Jellyfin", URL: "http://nas:8096", Icon: "jellyfin"}}
	env := newTestEnv(t, doc)

	rec := env.do(t, http.MethodPut, "/api/apps/7", dashboard.AppInput{Name: "Jellyfin", URL: "http://nas:9000", Category: "Media"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	app := decodeBody[dashboard.App](t, rec)
	if app.ID != 7 {
		t.Errorf("id must survive the update, got %d", app.ID)
	}
	if app.URL != "http://nas:9000" {
		t.Errorf("url: got %q", app.URL)
	}
}

func TestUpdateAppNotFound(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())
	rec := env.do(t, http.MethodPut, "/api/apps/99", dashboard.AppInput{Name: "X", URL: "http://x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d want 404", rec.Code)
	}
}

func TestUpdateAppBadID(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())
	rec := env.do(t, http.MethodPut, "/api/apps/abc", dashboard.AppInput{Name: "X", URL: "http://x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d want 400", rec.Code)
	}
}

func TestDeleteApp(t *testing.T) {
	doc := dashboard.Default()
	doc.Apps = []dashboard.App{{ID: 7, Category: "Media", Name: "Jellyfin", URL: "http://nas:8096"}}
	env := newTestEnv(t, doc)

	if rec := env.do(t, http.MethodDelete, "/api/apps/7", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("status: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/apps/7", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d want 404", rec.Code)
	}
}

func TestMoveApp(t *testing.T) {
	doc := dashboard.Default()
	doc.Apps = []dashboard.App{{ID: 7, Category: "Media", Name: "Jellyfin", URL: "http://nas:8096"}}
	env := newTestEnv(t, doc)

	rec := env.do(t, http.MethodPost, "/api/apps/7/category", map[string]string{"category": "Servers"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: %d", rec.Code)
	}
	if got := env.store.Document().Apps[0].Category; got != "Servers" {
		t.Errorf("category: got %q", got)
	}

	if rec := env.do(t, http.MethodPost, "/api/apps/99/category", map[string]string{"category": "X"}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown app: got %d want 404", rec.Code)
	}
}

func TestSetWidgets(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())

	rec := env.do(t, http.MethodPut, "/api/widgets", map[string]dashboard.WidgetSetting{
		dashboard.WidgetCPU: {Enabled: true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	widgets := decodeBody[map[string]dashboard.WidgetSetting](t, rec)
	if !widgets[dashboard.WidgetCPU].Enabled {
		t.Error("cpu should be enabled")
	}
	// Omitted ids are synthesized disabled, never dropped.
	if _, ok := widgets[dashboard.WidgetWeather]; !ok {
		t.Error("weather entry missing")
	}
	if widgets[dashboard.WidgetWeather].Enabled {
		t.Error("weather should be disabled")
	}
}

func TestSaveSettings(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())

	rec := env.do(t, http.MethodPut, "/api/settings", dashboard.SettingsInput{City: "Oslo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	settings := decodeBody[dashboard.Settings](t, rec)
	if settings.WeatherCity != "Oslo" {
		t.Errorf("city: got %q", settings.WeatherCity)
	}
	if settings.WeatherLat != 59.91 {
		t.Errorf("lat: got %v", settings.WeatherLat)
	}
}

func TestSaveSettingsCityNotFound(t *testing.T) {
	env := newTestEnv(t, dashboard.Default())
	env.server.geocoder = fakeGeocoder{}

	rec := env.do(t, http.MethodPut, "/api/settings", dashboard.SettingsInput{City: "Atlantis"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status: got %d want 422", rec.Code)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>atrium</html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := dashboard.NewStore(dashboard.Default(), dashboard.SaverFunc(func(dashboard.Document) error { return nil }), zerolog.Nop())
	srv := New(Options{Store: store, StaticDir: dir, Logger: zerolog.Nop()})
	t.Cleanup(srv.Stop)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "atrium") {
		t.Errorf("body: %q", rec.Body.String())
	}
}
