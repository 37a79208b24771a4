// Package validate checks crosswalked item metadata before it is stored.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/helpers"
)

// Error is a validation finding with context.
type Error struct {
	Field   string // Metadata field (e.g., "dc.date.issued")
	Code    string // Error code (e.g., "required", "invalid_format")
	Message string // Human-readable message
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result contains all findings for a record.
type Result struct {
	Errors   []Error
	Warnings []Error
}

// IsValid returns true if there are no errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// HasWarnings returns true if there are warnings.
func (r *Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns a combined error, or nil if valid.
func (r *Result) Err() error {
	if r.IsValid() {
		return nil
	}
	return fmt.Errorf("validation failed: %s", strings.Join(r.Messages(), "; "))
}

// Messages lists errors then warnings, one line each.
func (r *Result) Messages() []string {
	msgs := make([]string, 0, len(r.Errors)+len(r.Warnings))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	for _, w := range r.Warnings {
		msgs = append(msgs, "warning: "+w.Error())
	}
	return msgs
}

func (r *Result) add(severity Severity, e Error) {
	if severity == SeverityWarning {
		r.Warnings = append(r.Warnings, e)
		return
	}
	r.Errors = append(r.Errors, e)
}

// Identifier format patterns
var (
	doiPattern   = regexp.MustCompile(`^10\.\d{4,}(\.\d+)*/\S+$`)
	orcidPattern = regexp.MustCompile(`^\d{4}-\d{4}-\d{4}-\d{3}[\dX]$`)
	issnPattern  = regexp.MustCompile(`^\d{4}-\d{3}[\dX]$`)
)

// Validate checks item against rs. A nil rule set runs only the built-in
// format checks.
func Validate(item *content.Item, rs *RuleSet) *Result {
	result := &Result{}
	if rs != nil {
		for i := range rs.Rules {
			rs.Rules[i].check(item, result)
		}
	}
	if rs == nil || !rs.SkipBuiltins {
		checkIdentifiers(item, result)
		checkDates(item, result)
	}
	return result
}

func checkIdentifiers(item *content.Item, result *Result) {
	for _, mv := range item.GetMetadata("dc.identifier.doi") {
		value := strings.TrimSpace(mv.Value)
		for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
			value = strings.TrimPrefix(value, prefix)
		}
		if !doiPattern.MatchString(value) {
			result.Errors = append(result.Errors, Error{
				Field:   mv.Field(),
				Code:    "invalid_format",
				Message: fmt.Sprintf("invalid DOI format: %s (expected 10.XXXX/...)", mv.Value),
			})
		}
	}

	for _, mv := range item.GetMetadata("dc.identifier.issn") {
		value := strings.ReplaceAll(strings.TrimSpace(mv.Value), "-", "")
		if len(value) == 8 {
			value = value[:4] + "-" + value[4:]
		}
		if !issnPattern.MatchString(value) {
			result.Errors = append(result.Errors, Error{
				Field:   mv.Field(),
				Code:    "invalid_format",
				Message: fmt.Sprintf("invalid ISSN format: %s (expected XXXX-XXXX)", mv.Value),
			})
		}
	}

	for _, mv := range item.Metadata {
		if !strings.HasPrefix(mv.Authority, "orcid:") && !strings.Contains(mv.Authority, "orcid.org/") {
			continue
		}
		id := mv.Authority[strings.LastIndexAny(mv.Authority, ":/")+1:]
		if !orcidPattern.MatchString(id) {
			result.Warnings = append(result.Warnings, Error{
				Field:   mv.Field(),
				Code:    "invalid_format",
				Message: fmt.Sprintf("invalid ORCID authority: %s", mv.Authority),
			})
		}
	}
}

func checkDates(item *content.Item, result *Result) {
	maxYear := time.Now().Year() + 10
	for _, mv := range item.GetMetadata("dc.date.*") {
		if mv.Qualifier == "accessioned" {
			continue
		}
		d, err := helpers.ParseDate(mv.Value)
		if err != nil {
			result.Errors = append(result.Errors, Error{
				Field:   mv.Field(),
				Code:    "invalid_format",
				Message: fmt.Sprintf("unparseable date %q", mv.Value),
			})
			continue
		}
		if d.Year != 0 && (d.Year < 1000 || d.Year > maxYear) {
			result.Errors = append(result.Errors, Error{
				Field:   mv.Field(),
				Code:    "out_of_range",
				Message: fmt.Sprintf("year %d is outside reasonable range (1000-%d)", d.Year, maxYear),
			})
		}
	}
}
