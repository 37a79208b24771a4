// Package transform applies conditional rewrite rules to harvested records.
//
// A rule set is a YAML document. Pre-transform rule sets edit the raw
// metadata XML of a record before it is crosswalked; fields name elements
// by local name ("title") or by prefix ("dc:title"). Post-transform rule
// sets edit the crosswalked metadata values; fields are metadata fields
// ("dc.contributor.author", wildcards allowed).
//
//	name: cleanup
//	rules:
//	  - name: drop-local-identifiers
//	    when: {field: "dc:identifier", matches: "^urn:local:"}
//	    then: {drop: true, match: "^urn:local:"}
package transform

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet contains the rules applied to one kind of record.
type RuleSet struct {
	// Name identifies this rule set
	Name string `yaml:"name" json:"name"`

	// Description documents what these rules are for
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Namespaces binds prefixes used in pre-transform fields. The common
	// Dublin Core prefixes are bound by default.
	Namespaces map[string]string `yaml:"namespaces,omitempty" json:"namespaces,omitempty"`

	// Rules is the ordered list of rules
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Rule defines a single conditional transformation.
type Rule struct {
	// Name identifies this rule for debugging/logging
	Name string `yaml:"name" json:"name"`

	// Description documents what this rule does
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Priority determines rule evaluation order (higher = first). Default is 0.
	Priority int `yaml:"priority,omitempty" json:"priority,omitempty"`

	// When defines the conditions that must be met for this rule to apply
	When Condition `yaml:"when" json:"when"`

	// Then defines the transformations to apply when conditions are met
	Then Action `yaml:"then" json:"then"`
}

// Condition defines when a rule should be applied. A field condition holds
// when any value of the field satisfies it.
type Condition struct {
	// Field is the element or metadata field to check
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// Equals matches exact value, ignoring case
	Equals string `yaml:"equals,omitempty" json:"equals,omitempty"`

	// Contains matches if the field contains this substring
	Contains string `yaml:"contains,omitempty" json:"contains,omitempty"`

	// Matches is a regex pattern to match against
	Matches string `yaml:"matches,omitempty" json:"matches,omitempty"`

	// In matches if the field value is in this list
	In []string `yaml:"in,omitempty" json:"in,omitempty"`

	// Exists checks if the field has any value
	Exists *bool `yaml:"exists,omitempty" json:"exists,omitempty"`

	// All requires all sub-conditions to match (AND)
	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`

	// Any requires at least one sub-condition to match (OR)
	Any []Condition `yaml:"any,omitempty" json:"any,omitempty"`

	// Not inverts the sub-condition
	Not *Condition `yaml:"not,omitempty" json:"not,omitempty"`

	re *regexp.Regexp
}

// Action defines what transformation to apply when a rule matches.
type Action struct {
	// Field is the field to change; defaults to the condition's field
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// Match restricts the action to values matching this regex
	Match string `yaml:"match,omitempty" json:"match,omitempty"`

	Uppercase bool `yaml:"uppercase,omitempty" json:"uppercase,omitempty"`
	Lowercase bool `yaml:"lowercase,omitempty" json:"lowercase,omitempty"`
	Trim      bool `yaml:"trim,omitempty" json:"trim,omitempty"`

	// Replace rewrites values with a regex substitution
	Replace *Replace `yaml:"replace,omitempty" json:"replace,omitempty"`

	// MapValue transforms values using a mapping table
	MapValue map[string]string `yaml:"map_value,omitempty" json:"map_value,omitempty"`

	// Set replaces every selected value, or adds one if the field is empty
	Set string `yaml:"set,omitempty" json:"set,omitempty"`

	// Drop removes the selected values
	Drop bool `yaml:"drop,omitempty" json:"drop,omitempty"`

	// CopyTo appends the selected values to another field
	CopyTo string `yaml:"copy_to,omitempty" json:"copy_to,omitempty"`

	// Multiple actions can be combined
	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty"`

	match *regexp.Regexp
}

// Replace is a regex substitution; With may use $1 style references.
type Replace struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	With    string `yaml:"with" json:"with"`

	re *regexp.Regexp
}

// Compile checks every regular expression and orders rules by priority.
// It must be called before Apply; the loaders call it.
func (rs *RuleSet) Compile() error {
	sort.SliceStable(rs.Rules, func(i, j int) bool {
		return rs.Rules[i].Priority > rs.Rules[j].Priority
	})
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if err := r.When.compile(); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if err := r.Then.compile(r.When.Field); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return nil
}

func (c *Condition) compile() error {
	if c.Matches != "" {
		re, err := regexp.Compile(c.Matches)
		if err != nil {
			return fmt.Errorf("invalid matches pattern %q: %w", c.Matches, err)
		}
		c.re = re
	}
	for i := range c.All {
		if err := c.All[i].compile(); err != nil {
			return err
		}
	}
	for i := range c.Any {
		if err := c.Any[i].compile(); err != nil {
			return err
		}
	}
	if c.Not != nil {
		return c.Not.compile()
	}
	return nil
}

func (a *Action) compile(defaultField string) error {
	if a.Field == "" {
		a.Field = defaultField
	}
	if a.Match != "" {
		re, err := regexp.Compile(a.Match)
		if err != nil {
			return fmt.Errorf("invalid match pattern %q: %w", a.Match, err)
		}
		a.match = re
	}
	if a.Replace != nil {
		re, err := regexp.Compile(a.Replace.Pattern)
		if err != nil {
			return fmt.Errorf("invalid replace pattern %q: %w", a.Replace.Pattern, err)
		}
		a.Replace.re = re
	}
	for i := range a.Actions {
		if err := a.Actions[i].compile(a.Field); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate checks if the condition matches. values returns the values of a
// field.
func (c *Condition) Evaluate(values func(field string) []string) bool {
	// Handle composite conditions first
	if len(c.All) > 0 {
		for i := range c.All {
			if !c.All[i].Evaluate(values) {
				return false
			}
		}
		return true
	}

	if len(c.Any) > 0 {
		for i := range c.Any {
			if c.Any[i].Evaluate(values) {
				return true
			}
		}
		return false
	}

	if c.Not != nil {
		return !c.Not.Evaluate(values)
	}

	// No condition means always match
	if c.Field == "" {
		return true
	}

	vals := values(c.Field)

	if c.Exists != nil {
		return (len(vals) > 0) == *c.Exists
	}

	for _, v := range vals {
		if c.matchValue(v) {
			return true
		}
	}
	return false
}

func (c *Condition) matchValue(value string) bool {
	switch {
	case c.Equals != "":
		return strings.EqualFold(strings.TrimSpace(value), c.Equals)
	case c.Contains != "":
		return strings.Contains(strings.ToLower(value), strings.ToLower(c.Contains))
	case c.Matches != "":
		if c.re == nil {
			matched, _ := regexp.MatchString(c.Matches, value)
			return matched
		}
		return c.re.MatchString(value)
	case len(c.In) > 0:
		for _, v := range c.In {
			if strings.EqualFold(strings.TrimSpace(value), v) {
				return true
			}
		}
		return false
	}
	// No specific condition, just check field exists
	return true
}

// rewrite applies the value-level parts of the action. It reports whether
// the value is kept.
func (a *Action) rewrite(value string) (string, bool) {
	if a.Drop {
		return value, false
	}
	if a.Trim {
		value = strings.TrimSpace(value)
	}
	if a.Replace != nil && a.Replace.re != nil {
		value = a.Replace.re.ReplaceAllString(value, a.Replace.With)
	}
	if mapped, ok := a.MapValue[value]; ok {
		value = mapped
	}
	if a.Uppercase {
		value = strings.ToUpper(value)
	}
	if a.Lowercase {
		value = strings.ToLower(value)
	}
	if a.Set != "" {
		value = a.Set
	}
	return value, true
}

func (a *Action) selects(value string) bool {
	return a.match == nil || a.match.MatchString(value)
}

// LoadRuleSet loads a rule set from a YAML file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	rs, err := LoadRuleSetFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// LoadRuleSetFromBytes loads a rule set from YAML bytes.
func LoadRuleSetFromBytes(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parsing rules YAML: %w", err)
	}
	if err := rs.Compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}
