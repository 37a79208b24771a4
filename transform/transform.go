package transform

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format/xmltree"
)

// Transformer holds the pre- and post-transform rule sets of each metadata
// configuration.
type Transformer struct {
	mu   sync.RWMutex
	pre  map[string]*RuleSet
	post map[string]*RuleSet
}

// New returns a Transformer without rule sets; every record passes through
// unchanged.
func New() *Transformer {
	return &Transformer{
		pre:  map[string]*RuleSet{},
		post: map[string]*RuleSet{},
	}
}

// FromConfig loads the rule set files named by the harvester's metadata
// formats.
func FromConfig(cfg config.HarvesterConfig) (*Transformer, error) {
	t := New()
	for id, mf := range cfg.MetadataFormats {
		if mf.PreTransform != "" {
			rs, err := LoadRuleSet(mf.PreTransform)
			if err != nil {
				return nil, fmt.Errorf("pre-transform for %s: %w", id, err)
			}
			t.SetPre(id, rs)
		}
		if mf.PostTransform != "" {
			rs, err := LoadRuleSet(mf.PostTransform)
			if err != nil {
				return nil, fmt.Errorf("post-transform for %s: %w", id, err)
			}
			t.SetPost(id, rs)
		}
	}
	return t, nil
}

// SetPre installs the pre-transform rule set of a metadata configuration.
func (t *Transformer) SetPre(configID string, rs *RuleSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pre[configID] = rs
}

// SetPost installs the post-transform rule set of a metadata configuration.
func (t *Transformer) SetPost(configID string, rs *RuleSet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.post[configID] = rs
}

// PreTransform rewrites the metadata XML of a record. Records without a
// configured rule set are returned unchanged.
func (t *Transformer) PreTransform(configID, metadataXML string) (string, error) {
	t.mu.RLock()
	rs := t.pre[configID]
	t.mu.RUnlock()
	if rs == nil || len(rs.Rules) == 0 {
		return metadataXML, nil
	}

	root, err := xmltree.Parse(strings.NewReader(metadataXML))
	if err != nil {
		return "", fmt.Errorf("pre-transform %s: %w", rs.Name, err)
	}
	fired := rs.ApplyToXML(root)
	if len(fired) == 0 {
		return metadataXML, nil
	}
	slog.Debug("pre-transform applied", "ruleset", rs.Name, "rules", fired)

	out, err := root.Marshal()
	if err != nil {
		return "", fmt.Errorf("pre-transform %s: %w", rs.Name, err)
	}
	return string(out), nil
}

// PostTransform rewrites the crosswalked metadata of item in place.
func (t *Transformer) PostTransform(configID string, item *content.Item) {
	t.mu.RLock()
	rs := t.post[configID]
	t.mu.RUnlock()
	if rs == nil {
		return
	}
	if fired := rs.ApplyToItem(item); len(fired) > 0 {
		slog.Debug("post-transform applied", "ruleset", rs.Name, "rules", fired)
	}
}
