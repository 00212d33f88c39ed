package location

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rubiojr/pathfinder/pkg/geo"
)

// suggestionKeyPrecision is the number of decimal places coordinates are
// normalized to when comparing suggestions (about 0.1m).
const suggestionKeyPrecision = 6

// suggestionKey combines name and normalized coordinates. Two different
// names at the same coordinates are distinct suggestions.
func suggestionKey(p geo.Place) string {
	lat := strconv.FormatFloat(roundTo(p.Point.Lat, suggestionKeyPrecision), 'f', suggestionKeyPrecision, 64)
	lon := strconv.FormatFloat(roundTo(p.Point.Lon, suggestionKeyPrecision), 'f', suggestionKeyPrecision, 64)
	return fmt.Sprintf("%s|%s|%s", p.Name, lat, lon)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// DedupeSuggestions returns places without duplicates, keeping the first
// occurrence. The input slice is not modified.
func DedupeSuggestions(in []geo.Place) []geo.Place {
	if len(in) <= 1 {
		return append([]geo.Place(nil), in...)
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]geo.Place, 0, len(in))
	for _, p := range in {
		k := suggestionKey(p)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
