package dashboard

import (
	"math"
	"strconv"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes renders a byte count in binary (1024-based) units, scaled to
// the largest unit where the value is at least 1, with one decimal place.
// A zero count formats as "0 B".
func FormatBytes(n uint64) string {
	if n == 0 {
		return "0 B"
	}
	v := float64(n)
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	v = math.Round(v*10) / 10
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + byteUnits[unit]
}

// ClassifyWeatherCode buckets the provider's numeric weather code space
// into the three conditions the dashboard distinguishes.
func ClassifyWeatherCode(code int) string {
	switch {
	case code > 50:
		return "Rainy"
	case code > 2:
		return "Cloudy"
	default:
		return "Clear"
	}
}

// Greeting returns the salutation for the given local hour.
func Greeting(hour int) string {
	switch {
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}
