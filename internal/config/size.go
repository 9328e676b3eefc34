package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

var sizeUnits = map[string]float64{
	"":    1,
	"b":   1,
	"kb":  1e3,
	"mb":  1e6,
	"gb":  1e9,
	"tb":  1e12,
	"kib": 1 << 10,
	"mib": 1 << 20,
	"gib": 1 << 30,
	"tib": 1 << 40,
}

// ParseSize reads a byte count such as "512", "8MiB" or "1.5GB". Empty input yields
// defaultBytes.
func ParseSize(value string, defaultBytes int64) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultBytes, nil
	}
	split := strings.IndexFunc(value, func(r rune) bool {
		return unicode.IsLetter(r)
	})
	number, unit := value, ""
	if split >= 0 {
		number, unit = strings.TrimSpace(value[:split]), strings.ToLower(value[split:])
	}
	multiplier, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("parse size %q: unknown unit %q", value, unit)
	}
	if unit == "" || unit == "b" {
		n, err := strconv.ParseInt(number, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse size %q: %w", value, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("parse size %q: negative", value)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", value, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("parse size %q: negative", value)
	}
	return int64(f * multiplier), nil
}
