package harvest

import (
	"context"
	"errors"
	"sort"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/oai"
)

// Problem codes returned by Verify.
const (
	ProblemInvalidAddress       = "invalidAddress"
	ProblemNoSuchSet            = "noSuchSet"
	ProblemMetadataNotSupported = "metadataNotSupported"
	ProblemORENotSupported      = "oreNotSupported"
)

// Verify checks harvest settings against the provider and returns one
// "code: explanation" entry per problem found. An empty list means the
// settings can be used. withORE also requires the configured ORE format.
func (h *Harvester) Verify(ctx context.Context, source, set, configID string, withORE bool) []string {
	var problems []string

	client, err := h.client(source)
	if err != nil {
		return []string{ProblemInvalidAddress + ": " + err.Error()}
	}
	if _, err := client.Identify(ctx); err != nil {
		return []string{ProblemInvalidAddress + ": OAI server could not be reached: " + err.Error()}
	}

	mf, ok := h.cfg.MetadataFormat(configID)
	formats, err := client.ListMetadataFormats(ctx, "")
	switch {
	case err != nil:
		problems = append(problems, ProblemMetadataNotSupported+": unable to list the metadata formats of the OAI server: "+err.Error())
	case !ok:
		problems = append(problems, ProblemMetadataNotSupported+": metadata format "+configID+" is not configured")
	case oai.PrefixForNamespace(formats, mf.Namespace) == "":
		problems = append(problems, ProblemMetadataNotSupported+": the OAI server does not provide metadata in "+mf.Namespace)
	}
	if withORE && err == nil && oai.PrefixForNamespace(formats, h.cfg.OREFormat) == "" {
		problems = append(problems, ProblemORENotSupported+": the OAI server does not provide ORE dissemination in "+h.cfg.OREFormat)
	}

	if set != "" && set != content.SetAll {
		sets, err := client.ListSets(ctx)
		switch {
		case oai.HasCode(err, oai.CodeNoSetHierarchy):
			problems = append(problems, ProblemNoSuchSet+": the OAI server does not support sets")
		case err != nil:
			problems = append(problems, ProblemNoSuchSet+": unable to list the sets of the OAI server: "+err.Error())
		case !hasSet(sets, set):
			problems = append(problems, ProblemNoSuchSet+": the OAI server does not have a set with the spec "+set)
		}
	}
	return problems
}

func hasSet(sets []oai.Set, spec string) bool {
	for _, s := range sets {
		if s.Spec == spec {
			return true
		}
	}
	return false
}

// FormatInfo describes a harvestable metadata format.
type FormatInfo struct {
	ID        string
	Label     string
	Namespace string
}

// AvailableMetadataFormats lists the configured formats whose crosswalk is
// registered, sorted by id.
func (h *Harvester) AvailableMetadataFormats() []FormatInfo {
	var out []FormatInfo
	for _, id := range h.cfg.MetadataFormatIDs() {
		mf, _ := h.cfg.MetadataFormat(id)
		if _, err := h.formats.GetParser(mf.Crosswalk); err != nil {
			continue
		}
		label := mf.Label
		if label == "" {
			label = id
		}
		out = append(out, FormatInfo{ID: id, Label: label, Namespace: mf.Namespace})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsSettingsError reports whether err came from Run rejecting the
// collection's settings before harvesting started.
func IsSettingsError(err error) bool {
	var he *Error
	return errors.As(err, &he) && (he.Msg == msgNotHarvestable || he.Msg == msgNoDeclaration)
}
