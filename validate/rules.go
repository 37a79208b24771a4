package validate

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
)

// Severity decides whether a failed rule invalidates the record.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// RuleSet is a YAML validation profile:
//
//	name: theses
//	rules:
//	  - field: dc.title
//	    required: true
//	  - field: dc.type
//	    values: [Thesis, Dissertation]
//	  - field: dc.identifier.isbn
//	    pattern: '^97[89]'
//	    severity: warning
type RuleSet struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// SkipBuiltins disables the DOI, ISSN and date format checks.
	SkipBuiltins bool `yaml:"skip_builtins,omitempty"`

	Rules []FieldRule `yaml:"rules"`
}

// FieldRule constrains the values of one metadata field. Field may use
// the wildcards of content.Item.GetMetadata.
type FieldRule struct {
	Field    string   `yaml:"field"`
	Required bool     `yaml:"required,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty"`
	Values   []string `yaml:"values,omitempty"`

	// MaxOccurs limits the number of values; 0 means unlimited.
	MaxOccurs int `yaml:"max_occurs,omitempty"`

	Severity Severity `yaml:"severity,omitempty"`
	Message  string   `yaml:"message,omitempty"`

	re *regexp.Regexp
}

func (r *FieldRule) compile() error {
	if r.Field == "" {
		return fmt.Errorf("rule without field")
	}
	switch r.Severity {
	case "":
		r.Severity = SeverityError
	case SeverityError, SeverityWarning:
	default:
		return fmt.Errorf("field %s: unknown severity %q", r.Field, r.Severity)
	}
	if r.Pattern != "" {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("field %s: invalid pattern %q: %w", r.Field, r.Pattern, err)
		}
		r.re = re
	}
	return nil
}

func (r *FieldRule) finding(code, msg string) Error {
	if r.Message != "" {
		msg = r.Message
	}
	return Error{Field: r.Field, Code: code, Message: msg}
}

func (r *FieldRule) check(item *content.Item, result *Result) {
	values := item.GetMetadata(r.Field)

	if r.Required && len(values) == 0 {
		result.add(r.Severity, r.finding("required", "value is required"))
		return
	}
	if r.MaxOccurs > 0 && len(values) > r.MaxOccurs {
		result.add(r.Severity, r.finding("max_occurs",
			fmt.Sprintf("%d values present, at most %d allowed", len(values), r.MaxOccurs)))
	}

	for _, mv := range values {
		if r.re != nil && !r.re.MatchString(mv.Value) {
			e := r.finding("pattern", fmt.Sprintf("%q does not match %s", mv.Value, r.Pattern))
			e.Field = mv.Field()
			result.add(r.Severity, e)
		}
		if len(r.Values) > 0 && !containsFold(r.Values, mv.Value) {
			e := r.finding("controlled_value", fmt.Sprintf("%q is not one of %s", mv.Value, strings.Join(r.Values, ", ")))
			e.Field = mv.Field()
			result.add(r.Severity, e)
		}
	}
}

func containsFold(list []string, value string) bool {
	value = strings.TrimSpace(value)
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// LoadRuleSet loads a validation profile from a YAML file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading validation file: %w", err)
	}
	rs, err := LoadRuleSetFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// LoadRuleSetFromBytes loads a validation profile from YAML bytes.
func LoadRuleSetFromBytes(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parsing validation YAML: %w", err)
	}
	for i := range rs.Rules {
		if err := rs.Rules[i].compile(); err != nil {
			return nil, err
		}
	}
	return &rs, nil
}

// Validator holds the validation profile of each metadata configuration.
type Validator struct {
	mu    sync.RWMutex
	rules map[string]*RuleSet
}

// NewValidator returns a Validator that runs only the built-in checks.
func NewValidator() *Validator {
	return &Validator{rules: map[string]*RuleSet{}}
}

// FromConfig loads the validation files named by the harvester's metadata
// formats.
func FromConfig(cfg config.HarvesterConfig) (*Validator, error) {
	v := NewValidator()
	for id, mf := range cfg.MetadataFormats {
		if mf.Validation == "" {
			continue
		}
		rs, err := LoadRuleSet(mf.Validation)
		if err != nil {
			return nil, fmt.Errorf("validation for %s: %w", id, err)
		}
		v.Set(id, rs)
	}
	return v, nil
}

// Set installs the profile for a metadata configuration.
func (v *Validator) Set(configID string, rs *RuleSet) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[configID] = rs
}

// Validate checks item with the profile of configID.
func (v *Validator) Validate(configID string, item *content.Item) *Result {
	v.mu.RLock()
	rs := v.rules[configID]
	v.mu.RUnlock()
	return Validate(item, rs)
}
