// Package dashboard holds the canonical start-page document model, the
// reconciler that migrates persisted documents across schema generations,
// and the state container that applies user mutations.
package dashboard

import (
	"strings"
	"time"
)

// CurrentVersion is the schema version stamped on every document the
// reconciler emits. Documents carrying this version are trusted as-is and
// never re-sniffed for older shapes.
const CurrentVersion = 3

// MaxDocumentSize is the ceiling for a serialized document, matching the
// request body limit of the config endpoint.
const MaxDocumentSize = 10 << 20 // 10 MB

// Widget ids known to this release. Every id listed here has a
// WidgetSetting entry in a reconciled document.
const (
	WidgetWeather = "weather"
	WidgetCPU     = "cpu"
	WidgetRAM     = "ram"
	WidgetROM     = "rom"
	WidgetTemp    = "temp"
)

// WidgetIDs lists the static widget definitions in display order.
var WidgetIDs = []string{WidgetWeather, WidgetCPU, WidgetRAM, WidgetROM, WidgetTemp}

// DisplayMode selects how a storage gauge renders its reading.
type DisplayMode string

const (
	DisplayPercent DisplayMode = "percent" // ratio only
	DisplayValue   DisplayMode = "value"   // formatted used/total
	DisplayBoth    DisplayMode = "both"    // ratio plus absolute subtext
)

// BackgroundType selects the dashboard background source.
type BackgroundType string

const (
	BackgroundGradient BackgroundType = "gradient"
	BackgroundURL      BackgroundType = "url"
	BackgroundUpload   BackgroundType = "upload"
)

// App is a single bookmark tile. The id is assigned once at creation time
// and never changes; all other fields are replaceable via edit.
type App struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Name     string `json:"name"`
	Desc     string `json:"desc"`
	URL      string `json:"url"`
	Icon     string `json:"icon"`
}

// WidgetSetting is the per-widget configuration. Display is only meaningful
// for the ram and rom widgets.
type WidgetSetting struct {
	Enabled bool        `json:"enabled"`
	Display DisplayMode `json:"display,omitempty"`
}

// Settings holds the shared global settings: the single weather location
// and the background selection.
type Settings struct {
	WeatherCity string         `json:"weatherCity"`
	WeatherLat  float64        `json:"weatherLat"`
	WeatherLon  float64        `json:"weatherLon"`
	BgType      BackgroundType `json:"bgType"`
	BgValue     string         `json:"bgValue"`
}

// Document is the root persisted entity. It is read and written atomically
// and in full; there is no partial update primitive.
type Document struct {
	Version        int                      `json:"version"`
	Apps           []App                    `json:"apps"`
	WidgetSettings map[string]WidgetSetting `json:"widgetSettings"`
	Settings       Settings                 `json:"settings"`
}

// Default returns the built-in first-run document: no apps, all widgets
// enabled, Amsterdam as the weather location, gradient background.
func Default() Document {
	return Document{
		Version:        CurrentVersion,
		Apps:           []App{},
		WidgetSettings: defaultWidgetSettings(),
		Settings:       DefaultSettings(),
	}
}

// DefaultSettings returns the built-in global settings.
func DefaultSettings() Settings {
	return Settings{
		WeatherCity: "Amsterdam",
		WeatherLat:  52.3676,
		WeatherLon:  4.9041,
		BgType:      BackgroundGradient,
	}
}

func defaultWidgetSettings() map[string]WidgetSetting {
	return map[string]WidgetSetting{
		WidgetWeather: {Enabled: true},
		WidgetCPU:     {Enabled: true},
		WidgetRAM:     {Enabled: true, Display: DisplayPercent},
		WidgetROM:     {Enabled: true, Display: DisplayPercent},
		WidgetTemp:    {Enabled: true},
	}
}

// Clone returns a deep copy of the document so callers can hold a snapshot
// without racing the state container.
func (d Document) Clone() Document {
	out := d
	out.Apps = make([]App, len(d.Apps))
	copy(out.Apps, d.Apps)
	out.WidgetSettings = make(map[string]WidgetSetting, len(d.WidgetSettings))
	for id, ws := range d.WidgetSettings {
		out.WidgetSettings[id] = ws
	}
	return out
}

// EnsureWidgets synthesizes a disabled entry for any widget id present in
// the static definition list but absent from the document. New widget types
// can appear between releases, so this also runs lazily at render time.
// Returns true if anything was added.
func (d *Document) EnsureWidgets() bool {
	if d.WidgetSettings == nil {
		d.WidgetSettings = make(map[string]WidgetSetting, len(WidgetIDs))
	}
	added := false
	for _, id := range WidgetIDs {
		if _, ok := d.WidgetSettings[id]; !ok {
			d.WidgetSettings[id] = WidgetSetting{Enabled: false}
			added = true
		}
	}
	return added
}

// NewAppID derives a fresh app id from the current time. Two apps created
// within the same millisecond collide; this is an accepted limitation of
// the format.
func NewAppID() int64 {
	return time.Now().UnixMilli()
}

// NormalizeURL prepends http:// when the value carries no http(s) scheme.
func NormalizeURL(raw string) string {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "http://" + raw
}
