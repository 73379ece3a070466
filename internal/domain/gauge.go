package domain

import (
	"fmt"
	"strings"
)

// Gauge is a railway track-width category. City lists are partitioned by it.
type Gauge string

const (
	GaugeLarga    Gauge = "Larga"
	GaugeMetrica  Gauge = "Metrica"
	GaugeMista    Gauge = "Mista"
	GaugeStandard Gauge = "Standard"
)

// Gauges lists every known gauge.
var Gauges = []Gauge{GaugeLarga, GaugeMetrica, GaugeMista, GaugeStandard}

// ParseGauge resolves a gauge identifier. Matching is case-insensitive and
// accepts the legacy "Standart" spelling used by older clients.
func ParseGauge(s string) (Gauge, error) {
	v := strings.TrimSpace(s)
	if strings.EqualFold(v, "Standart") {
		return GaugeStandard, nil
	}
	for _, g := range Gauges {
		if strings.EqualFold(v, string(g)) {
			return g, nil
		}
	}
	return "", fmt.Errorf("%w: unknown gauge %q", ErrInvalidInput, s)
}

func (g Gauge) String() string { return string(g) }
