package dashboard

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Generation identifies the structural signature of a persisted document.
type Generation int

const (
	// GenEmpty is a missing, empty, or unparseable document (first run).
	GenEmpty Generation = iota
	// GenArray is the oldest shape: a bare JSON array of apps.
	GenArray
	// GenActiveWidgets stores enabled widgets as an id array.
	GenActiveWidgets
	// GenWidgetSettings stores a per-widget settings map.
	GenWidgetSettings
	// GenCurrent is a version-stamped canonical document.
	GenCurrent
)

// rawDocument mirrors every shape the document has taken on disk. Pointer
// fields distinguish an absent key from a zero value so the merge only
// overrides what the persisted document actually specifies.
type rawDocument struct {
	Version        *int                        `json:"version"`
	Apps           []App                       `json:"apps"`
	ActiveWidgets  []string                    `json:"activeWidgets"`
	WidgetSettings map[string]rawWidgetSetting `json:"widgetSettings"`
	Settings       *rawSettings                `json:"settings"`
}

type rawWidgetSetting struct {
	Enabled *bool        `json:"enabled"`
	Display *DisplayMode `json:"display"`

	// Pre-hoist weather location, stored per-widget before the shared
	// settings record existed.
	City *string  `json:"city"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

type rawSettings struct {
	WeatherCity *string         `json:"weatherCity"`
	WeatherLat  *float64        `json:"weatherLat"`
	WeatherLon  *float64        `json:"weatherLon"`
	BgType      *BackgroundType `json:"bgType"`
	BgValue     *string         `json:"bgValue"`
}

// DetectGeneration classifies a raw persisted document without migrating it.
func DetectGeneration(raw []byte) Generation {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return GenEmpty
	}
	if raw[0] == '[' {
		var apps []App
		if err := json.Unmarshal(raw, &apps); err == nil {
			return GenArray
		}
		return GenEmpty
	}
	var doc rawDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return GenEmpty
	}
	switch {
	case doc.Version != nil && *doc.Version >= CurrentVersion:
		return GenCurrent
	case doc.WidgetSettings != nil:
		return GenWidgetSettings
	case doc.ActiveWidgets != nil:
		return GenActiveWidgets
	case doc.Apps != nil:
		// Object shape with apps only; widget settings fall back to the
		// current defaults, same as the settings-map generation.
		return GenWidgetSettings
	default:
		return GenEmpty
	}
}

// Reconcile migrates a raw persisted document of any accepted generation
// into the canonical in-memory shape. The returned dirty flag tells the
// caller the canonical form differs from what is on disk and must be
// written back before first render. Malformed input is treated as no data,
// never as an error.
func Reconcile(raw []byte) (Document, bool) {
	gen := DetectGeneration(raw)

	switch gen {
	case GenEmpty:
		return Default(), true

	case GenArray:
		var apps []App
		_ = json.Unmarshal(bytes.TrimSpace(raw), &apps)
		doc := Default()
		doc.Apps = apps
		normalizeApps(doc.Apps)
		return doc, true

	default:
	}

	var in rawDocument
	_ = json.Unmarshal(raw, &in)

	doc := Document{
		Version:        CurrentVersion,
		Apps:           in.Apps,
		WidgetSettings: defaultWidgetSettings(),
		Settings:       DefaultSettings(),
	}
	if doc.Apps == nil {
		doc.Apps = []App{}
	}
	normalizeApps(doc.Apps)

	dirty := gen != GenCurrent

	// Generation 1: an array of enabled ids. Ids absent from the array end
	// up disabled, unlike the all-enabled first-run defaults. The asymmetry
	// is preserved as observed in the wild.
	if in.ActiveWidgets != nil {
		enabled := make(map[string]bool, len(in.ActiveWidgets))
		for _, id := range in.ActiveWidgets {
			enabled[id] = true
		}
		for id, ws := range doc.WidgetSettings {
			ws.Enabled = enabled[id]
			doc.WidgetSettings[id] = ws
		}
		dirty = true
	}

	// Generation 2+: shallow-merge the per-widget map onto the defaults.
	// A present id overrides only the keys it specifies; an absent id keeps
	// its full default.
	for id, rws := range in.WidgetSettings {
		ws := doc.WidgetSettings[id]
		if rws.Enabled != nil {
			ws.Enabled = *rws.Enabled
		}
		if rws.Display != nil {
			ws.Display = *rws.Display
		}
		doc.WidgetSettings[id] = ws

		// Hoist a pre-settings weather location into the shared record
		// unless the document already carries one there.
		if id == WidgetWeather && rws.City != nil && (in.Settings == nil || in.Settings.WeatherCity == nil) {
			doc.Settings.WeatherCity = *rws.City
			if rws.Lat != nil {
				doc.Settings.WeatherLat = *rws.Lat
			}
			if rws.Lon != nil {
				doc.Settings.WeatherLon = *rws.Lon
			}
			dirty = true
		}
	}

	if in.Settings != nil {
		s := &doc.Settings
		if v := in.Settings.WeatherCity; v != nil {
			s.WeatherCity = *v
		}
		if v := in.Settings.WeatherLat; v != nil {
			s.WeatherLat = *v
		}
		if v := in.Settings.WeatherLon; v != nil {
			s.WeatherLon = *v
		}
		if v := in.Settings.BgType; v != nil {
			s.BgType = *v
		}
		if v := in.Settings.BgValue; v != nil {
			s.BgValue = *v
		}
	}

	// A widget id shipped after this document was written gets a disabled
	// placeholder entry.
	if doc.EnsureWidgets() {
		dirty = true
	}

	return doc, dirty
}

// normalizeApps applies the field defaults apps have always carried:
// a blank category renders under General.
func normalizeApps(apps []App) {
	for i := range apps {
		if apps[i].Category == "" {
			apps[i].Category = "General"
		}
	}
}

// Encode serializes a document the way it is persisted: pretty-printed JSON.
func Encode(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
