package healthexport

import (
	"fmt"
	"strconv"
	"strings"
)

// splitValueUnit splits a raw metadata value like "781 cm" into its numeric
// part and unit, normalizing to base metric units:
//   - cm -> m
//   - %  -> fraction
//   - degF -> degC
//
// Returns ok=false when the value has no leading numeric part.
func splitValueUnit(raw string) (val float64, unit string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "", false
	}

	numPart := raw
	if idx := strings.IndexByte(raw, ' '); idx >= 0 {
		numPart = raw[:idx]
		unit = strings.TrimSpace(raw[idx+1:])
	}

	val, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, "", false
	}

	switch unit {
	case "cm":
		val /= 100.0
		unit = "m"
	case "%":
		val /= 100.0
	case "degF":
		val = (val - 32) * 5.0 / 9.0
		unit = "degC"
	}

	return val, unit, true
}

func durationToSeconds(value float64, unit string) (float64, error) {
	switch unit {
	case "min", "":
		return value * 60, nil
	case "h", "hr":
		return value * 3600, nil
	case "s", "sec":
		return value, nil
	default:
		return 0, fmt.Errorf("unknown duration unit: %s", unit)
	}
}

func distanceToKm(value float64, unit string) (float64, error) {
	switch unit {
	case "km", "":
		return value, nil
	case "m":
		return value / 1000.0, nil
	case "cm":
		return value / 100000.0, nil
	case "mi":
		return value * 1.609344, nil
	default:
		return 0, fmt.Errorf("unknown distance unit: %s", unit)
	}
}

func energyToKcal(value float64, unit string) (float64, error) {
	switch unit {
	case "kcal", "Cal", "":
		return value, nil
	case "cal":
		return value / 1000.0, nil
	case "kJ":
		return value / 4.184, nil
	default:
		return 0, fmt.Errorf("unknown energy unit: %s", unit)
	}
}
