package events

import "math"

// ToMinorUnits converts a major-unit amount with up to two decimals into
// integer minor units. Rounding keeps amounts like 1520.50 exact despite
// binary float representation.
func ToMinorUnits(major float64) int64 {
    return int64(math.Round(major * 100))
}

// ToMajorUnits is the inverse, used when rendering provider-native payloads.
func ToMajorUnits(minor int64) float64 {
    return float64(minor) / 100
}
