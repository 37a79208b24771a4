package helpers

import "strings"

// Role describes what a dc.contributor.<qualifier> value means to the DOI
// agencies.
type Role struct {
	// Relator is the MARC relator code.
	Relator string
	// Creator marks roles that count as authorship.
	Creator bool
	// CrossRef is the contributor_role, "" when CrossRef has no equivalent.
	CrossRef string
	// DataCite is the contributorType used when the value is not a creator.
	DataCite string
}

// ContributorRoles maps dc.contributor qualifiers onto agency roles.
var ContributorRoles = map[string]Role{
	"":            {Relator: "ctb", DataCite: "Other"},
	"author":      {Relator: "aut", Creator: true, CrossRef: "author"},
	"editor":      {Relator: "edt", CrossRef: "editor", DataCite: "Editor"},
	"translator":  {Relator: "trl", CrossRef: "translator", DataCite: "Other"},
	"advisor":     {Relator: "ths", DataCite: "Supervisor"},
	"committee":   {Relator: "dgc", DataCite: "Supervisor"},
	"illustrator": {Relator: "ill", DataCite: "Other"},
	"other":       {Relator: "oth", DataCite: "Other"},
	"curator":     {Relator: "cur", DataCite: "DataCurator"},
	"sponsor":     {Relator: "spn", DataCite: "Sponsor"},
	"funder":      {Relator: "fnd", DataCite: "Funder"},
}

// RoleFor returns the role of a dc.contributor qualifier. Unknown
// qualifiers are plain contributors.
func RoleFor(qualifier string) Role {
	if role, ok := ContributorRoles[strings.ToLower(strings.TrimSpace(qualifier))]; ok {
		return role
	}
	return ContributorRoles[""]
}
