package oai

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the datestamp precision a provider supports.
type Granularity string

const (
	GranularityDay    Granularity = "YYYY-MM-DD"
	GranularitySecond Granularity = "YYYY-MM-DDThh:mm:ssZ"
)

var layouts = map[Granularity]string{
	GranularityDay:    "2006-01-02",
	GranularitySecond: "2006-01-02T15:04:05Z",
}

// ParseGranularity maps an Identify granularity to a known value. Anything
// unrecognised falls back to day precision, which every provider must
// support.
func ParseGranularity(s string) Granularity {
	if Granularity(strings.TrimSpace(s)) == GranularitySecond {
		return GranularitySecond
	}
	return GranularityDay
}

// Layout returns the Go time layout for g.
func (g Granularity) Layout() string {
	if l, ok := layouts[g]; ok {
		return l
	}
	return layouts[GranularityDay]
}

// Format renders t in UTC at g's precision. The zero time renders as "".
func (g Granularity) Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(g.Layout())
}

// ParseDatestamp reads a datestamp at either granularity.
func ParseDatestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, g := range []Granularity{GranularitySecond, GranularityDay} {
		if t, err := time.Parse(g.Layout(), s); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid datestamp %q", s)
}
