// Package helpers provides utility functions for parsing and processing metadata values.
package helpers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Precision is how much of a date a value carries.
type Precision int

const (
	PrecisionUnknown Precision = iota
	PrecisionCentury
	PrecisionDecade
	PrecisionYear
	PrecisionMonth
	PrecisionDay
	PrecisionTime
)

// PartialDate is a date that may lack month or day, as dc.date.* values
// often do.
type PartialDate struct {
	Raw       string
	Year      int
	Month     int
	Day       int
	Precision Precision
	// EndYear is set for intervals such as 1978/1980.
	EndYear int
}

var (
	// Year only: 1978
	yearOnlyRegex = regexp.MustCompile(`^(\d{4})([~?%])?$`)

	// Year-month: 1978-03
	yearMonthRegex = regexp.MustCompile(`^(\d{4})-(\d{2})([~?%])?$`)

	// Full date: 1978-03-15
	fullDateRegex = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})([~?%])?$`)

	// Decade: 197X or 1970s
	decadeRegex = regexp.MustCompile(`^(\d{3})[Xx]$|^(\d{4})s$`)

	// Century: 19XX
	centuryRegex = regexp.MustCompile(`^(\d{2})[Xx]{2}$`)

	// Interval: 1978/1980
	intervalRegex = regexp.MustCompile(`^(.+)/(.+)$`)

	// ISO timestamp: 2024-12-13T22:43:14+00:00
	timestampRegex = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2}):(\d{2})`)
)

// ParseDate reads ISO 8601 dates, timestamps and the common EDTF level 0/1
// forms. It returns an error when nothing could be recognised; the Raw
// field is always set.
func ParseDate(input string) (PartialDate, error) {
	input = strings.TrimSpace(input)
	result := PartialDate{Raw: input}
	if input == "" {
		return result, fmt.Errorf("empty date")
	}

	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return fromTime(result, t), nil
	}

	if timestampRegex.MatchString(input) {
		layouts := []string{
			"2006-01-02T15:04:05Z07:00",
			"2006-01-02T15:04:05Z",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, input); err == nil {
				return fromTime(result, t), nil
			}
		}
	}

	if matches := intervalRegex.FindStringSubmatch(input); matches != nil {
		start, err := ParseDate(matches[1])
		if err != nil {
			return result, fmt.Errorf("invalid interval start in %q", input)
		}
		end, err := ParseDate(matches[2])
		if err != nil {
			return result, fmt.Errorf("invalid interval end in %q", input)
		}
		start.Raw = input
		start.EndYear = end.Year
		return start, nil
	}

	if matches := fullDateRegex.FindStringSubmatch(input); matches != nil {
		result.Year, _ = strconv.Atoi(matches[1])
		result.Month, _ = strconv.Atoi(matches[2])
		result.Day, _ = strconv.Atoi(matches[3])
		result.Precision = PrecisionDay
		if result.Month < 1 || result.Month > 12 || result.Day < 1 || result.Day > 31 {
			return result, fmt.Errorf("invalid date %q", input)
		}
		return result, nil
	}

	if matches := yearMonthRegex.FindStringSubmatch(input); matches != nil {
		result.Year, _ = strconv.Atoi(matches[1])
		result.Month, _ = strconv.Atoi(matches[2])
		result.Precision = PrecisionMonth
		if result.Month < 1 || result.Month > 12 {
			return result, fmt.Errorf("invalid month in %q", input)
		}
		return result, nil
	}

	if matches := yearOnlyRegex.FindStringSubmatch(input); matches != nil {
		result.Year, _ = strconv.Atoi(matches[1])
		result.Precision = PrecisionYear
		return result, nil
	}

	if matches := decadeRegex.FindStringSubmatch(input); matches != nil {
		decadeStr := matches[1]
		if decadeStr == "" {
			decadeStr = matches[2][:3]
		}
		decade, _ := strconv.Atoi(decadeStr)
		result.Year = decade * 10
		result.Precision = PrecisionDecade
		return result, nil
	}

	if matches := centuryRegex.FindStringSubmatch(input); matches != nil {
		century, _ := strconv.Atoi(matches[1])
		result.Year = century * 100
		result.Precision = PrecisionCentury
		return result, nil
	}

	return result, fmt.Errorf("unrecognised date %q", input)
}

func fromTime(d PartialDate, t time.Time) PartialDate {
	d.Year = t.Year()
	d.Month = int(t.Month())
	d.Day = t.Day()
	d.Precision = PrecisionTime
	return d
}

// ISO renders the date at its own precision: 2006, 2006-01 or 2006-01-02.
func (d PartialDate) ISO() string {
	switch {
	case d.Year == 0:
		return d.Raw
	case d.Month == 0:
		return fmt.Sprintf("%04d", d.Year)
	case d.Day == 0:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
}
