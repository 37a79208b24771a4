package content

import (
	"fmt"
	"strings"
)

// Authority confidence values.
const (
	ConfidenceUnset    = -1
	ConfidenceNone     = 0
	ConfidenceAccepted = 600
)

// MetadataValue is one value of a schema.element[.qualifier] field.
type MetadataValue struct {
	Schema     string
	Element    string
	Qualifier  string
	Language   string
	Value      string
	Authority  string
	Confidence int
	Place      int
}

// Field renders the dotted field name.
func (mv MetadataValue) Field() string {
	if mv.Qualifier == "" {
		return mv.Schema + "." + mv.Element
	}
	return mv.Schema + "." + mv.Element + "." + mv.Qualifier
}

func (mv MetadataValue) String() string {
	if mv.Language != "" {
		return fmt.Sprintf("%s[%s]=%s", mv.Field(), mv.Language, mv.Value)
	}
	return mv.Field() + "=" + mv.Value
}

// ParseField splits "dc.contributor.author" into a value with schema, element
// and qualifier set. Missing parts are left empty.
func ParseField(field string) MetadataValue {
	parts := strings.SplitN(field, ".", 3)
	mv := MetadataValue{Confidence: ConfidenceUnset}
	if len(parts) > 0 {
		mv.Schema = parts[0]
	}
	if len(parts) > 1 {
		mv.Element = parts[1]
	}
	if len(parts) > 2 {
		mv.Qualifier = parts[2]
	}
	return mv
}

// Matches reports whether mv belongs to field, with the wildcard rules of
// Item.GetMetadata.
func (mv MetadataValue) Matches(field string) bool {
	schema, element, qualifier := splitField(field)
	return matchPart(schema, mv.Schema) && matchPart(element, mv.Element) && matchQualifier(qualifier, mv.Qualifier)
}
