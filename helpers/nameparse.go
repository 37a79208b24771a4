package helpers

import (
	"regexp"
	"strings"
)

// ParsedName holds the parts of a personal name.
type ParsedName struct {
	Full   string
	Given  string
	Middle string
	Family string
	Prefix string
	Suffix string
}

var (
	// Suffixes that appear after a name
	suffixes = []string{"Jr.", "Jr", "Sr.", "Sr", "III", "II", "IV", "PhD", "Ph.D.", "MD", "M.D.", "Esq.", "Esq"}

	// Name prefixes (nobiliary particles)
	prefixes = []string{"van", "von", "de", "del", "della", "di", "da", "le", "la", "du", "des", "den", "der", "ter", "ten"}

	// Pattern for "Last, First Middle" format
	invertedNameRegex = regexp.MustCompile(`^([^,]+),\s*(.+)$`)

	multiSpace = regexp.MustCompile(`\s+`)
)

// ParseName splits a name into its components. Both the repository's
// "Last, First" convention and "First Last" are accepted. It returns nil
// for an empty name.
func ParseName(name string) *ParsedName {
	name = strings.TrimSpace(multiSpace.ReplaceAllString(name, " "))
	if name == "" {
		return nil
	}

	result := &ParsedName{Full: name}

	if matches := invertedNameRegex.FindStringSubmatch(name); matches != nil {
		result.Family = strings.TrimSpace(matches[1])
		rest := strings.TrimSpace(matches[2])
		rest, result.Suffix = extractSuffix(rest)

		parts := strings.Fields(rest)
		if len(parts) > 0 {
			result.Given = parts[0]
		}
		if len(parts) > 1 {
			result.Middle = strings.Join(parts[1:], " ")
		}
		return result
	}

	name, result.Suffix = extractSuffix(name)
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return nil
	case 1:
		result.Family = parts[0]
		return result
	}

	familyStart := len(parts) - 1
	if familyStart > 1 && isPrefix(parts[familyStart-1]) {
		result.Prefix = parts[familyStart-1]
		familyStart--
	}
	result.Family = strings.Join(parts[familyStart:], " ")
	result.Given = parts[0]
	if familyStart > 1 {
		result.Middle = strings.Join(parts[1:familyStart], " ")
	}
	return result
}

// GivenNames returns the given and middle names joined.
func (p *ParsedName) GivenNames() string {
	return strings.TrimSpace(p.Given + " " + p.Middle)
}

// Inverted renders "Family, Given Middle, Suffix".
func (p *ParsedName) Inverted() string {
	out := p.Family
	if given := p.GivenNames(); given != "" {
		out += ", " + given
	}
	if p.Suffix != "" {
		out += ", " + p.Suffix
	}
	return out
}

func extractSuffix(name string) (string, string) {
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, ", "+suffix) {
			return strings.TrimSuffix(name, ", "+suffix), suffix
		}
		if strings.HasSuffix(name, " "+suffix) {
			return strings.TrimSuffix(name, " "+suffix), suffix
		}
	}
	return name, ""
}

func isPrefix(word string) bool {
	lower := strings.ToLower(word)
	for _, prefix := range prefixes {
		if lower == prefix {
			return true
		}
	}
	return false
}

// NormalizeName rewrites a personal name in the inverted form used for
// dc.contributor.* values.
func NormalizeName(name string) string {
	parsed := ParseName(name)
	if parsed == nil {
		return ""
	}
	return parsed.Inverted()
}
