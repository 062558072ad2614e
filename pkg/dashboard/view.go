package dashboard

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// IconCDNBase is where bare icon-pack keys resolve to.
const IconCDNBase = "https://cdn.jsdelivr.net/gh/walkxcode/dashboard-icons/png"

// FallbackIconURL is rendered when an icon fails to load.
const FallbackIconURL = IconCDNBase + "/dashboard.png"

// warnPercent is the gauge fill above which the bar switches to the
// warning gradient.
const warnPercent = 85

// ResolveIcon maps an icon value to the URL a tile renders. Absolute URLs
// and embedded data URIs pass through; anything else is a bare icon-pack
// key resolved against the CDN template.
func ResolveIcon(icon string) string {
	if strings.HasPrefix(icon, "http://") || strings.HasPrefix(icon, "https://") || strings.HasPrefix(icon, "data:") {
		return icon
	}
	return IconCDNBase + "/" + strings.ToLower(icon) + ".png"
}

// Gauge is the render model of a metric bar: a fill ratio plus the text the
// display mode calls for. An Empty gauge renders the placeholder with a
// zero-width bar instead of dividing by zero.
type Gauge struct {
	Percent float64 `json:"percent"`
	Label   string  `json:"label"`
	Sub     string  `json:"sub,omitempty"`
	Warn    bool    `json:"warn"`
	Empty   bool    `json:"empty"`
}

// BuildGauge computes the render model for a used/total byte pair under the
// given display mode.
func BuildGauge(mode DisplayMode, used, total uint64) Gauge {
	if total == 0 {
		return Gauge{Label: "-", Empty: true}
	}
	pct := float64(used) / float64(total) * 100
	g := Gauge{
		Percent: pct,
		Warn:    pct > warnPercent,
	}
	ratio := strconv.Itoa(int(math.Round(pct))) + "%"
	value := FormatBytes(used) + " / " + FormatBytes(total)
	switch mode {
	case DisplayValue:
		g.Label = value
	case DisplayBoth:
		g.Label = ratio
		g.Sub = value
	default:
		g.Label = ratio
	}
	return g
}

// PercentGauge computes the render model for a plain percentage reading
// (CPU load, temperature shown on a bar).
func PercentGauge(value float64) Gauge {
	return Gauge{
		Percent: value,
		Label:   strconv.Itoa(int(math.Round(value))) + "%",
		Warn:    value > warnPercent,
	}
}

// Section groups the apps of one category for rendering.
type Section struct {
	Category string `json:"category"`
	Apps     []App  `json:"apps"`
}

// Sections groups apps by category, categories in lexicographic order and
// apps in document order within each.
func Sections(apps []App) []Section {
	byCat := make(map[string][]App)
	for _, app := range apps {
		byCat[app.Category] = append(byCat[app.Category], app)
	}
	cats := make([]string, 0, len(byCat))
	for cat := range byCat {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	out := make([]Section, 0, len(cats))
	for _, cat := range cats {
		out = append(out, Section{Category: cat, Apps: byCat[cat]})
	}
	return out
}

// EnabledWidgets returns the widget ids that are enabled, in definition
// order.
func EnabledWidgets(doc Document) []string {
	var out []string
	for _, id := range WidgetIDs {
		if doc.WidgetSettings[id].Enabled {
			out = append(out, id)
		}
	}
	return out
}
