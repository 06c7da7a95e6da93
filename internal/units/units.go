// Package units converts weights between kilograms and pounds for display.
// Everything is stored in kilograms.
package units

import (
	"fmt"
	"math"
	"strings"
)

// Unit is a display unit for weights.
type Unit string

const (
	Kilograms Unit = "kg"
	Pounds    Unit = "lb"
)

// PoundsPerKilogram is the exact conversion factor.
const PoundsPerKilogram = 2.20462262185

// Parse accepts the common spellings of kg and lb. Empty means kilograms.
func Parse(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "kg", "kgs", "kilogram", "kilograms", "metric":
		return Kilograms, nil
	case "lb", "lbs", "pound", "pounds", "imperial":
		return Pounds, nil
	default:
		return "", fmt.Errorf("unknown weight unit %q", s)
	}
}

// FromKg converts kilograms to u, rounded to one decimal.
func (u Unit) FromKg(kg float64) float64 {
	if u == Pounds {
		return Round(kg*PoundsPerKilogram, 0.1)
	}
	return Round(kg, 0.01)
}

// ToKg converts a value entered in u back to kilograms.
func (u Unit) ToKg(v float64) float64 {
	if u == Pounds {
		return v / PoundsPerKilogram
	}
	return v
}

// Round rounds v to the nearest multiple of step.
func Round(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}

// Convert returns v with every weight converted from kilograms to u. Fields
// are matched by JSON key: keys ending in "weight_kg", "volume_kg",
// "tonnage_kg" or "1rm_kg" are converted and renamed with u's suffix. v must
// be the generic form produced by encoding/json (maps, slices, scalars).
func Convert(v any, u Unit) any {
	if u == Kilograms {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if f, ok := val.(float64); ok && isWeightKey(k) {
				out[strings.TrimSuffix(k, "_kg")+"_"+string(u)] = u.FromKg(f)
				continue
			}
			out[k] = Convert(val, u)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Convert(val, u)
		}
		return out
	default:
		return v
	}
}

func isWeightKey(k string) bool {
	for _, suffix := range []string{"weight_kg", "volume_kg", "tonnage_kg", "1rm_kg"} {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}
