package transform

import (
	"encoding/xml"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format/xmltree"
)

// DefaultNamespaces are bound in every pre-transform rule set.
var DefaultNamespaces = map[string]string{
	"dc":      "http://purl.org/dc/elements/1.1/",
	"dcterms": "http://purl.org/dc/terms/",
	"oai_dc":  "http://www.openarchives.org/OAI/2.0/oai_dc/",
	"dim":     "http://www.dspace.org/xmlns/dspace/dim",
	"mods":    "http://www.loc.gov/mods/v3",
}

// target is a record that rules read and edit.
type target interface {
	values(field string) []string
	// edit rewrites the selected values of a.Field and returns how many
	// values changed or were removed.
	edit(a *Action) int
	add(field, value string)
}

// apply runs every matching rule in priority order and returns the names of
// the rules that fired.
func (rs *RuleSet) apply(t target) []string {
	var fired []string
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		if !rule.When.Evaluate(t.values) {
			continue
		}
		applyAction(t, &rule.Then)
		fired = append(fired, rule.Name)
	}
	return fired
}

func applyAction(t target, a *Action) {
	if a.Field != "" {
		if a.CopyTo != "" {
			for _, v := range t.values(a.Field) {
				if a.selects(v) {
					t.add(a.CopyTo, v)
				}
			}
		}
		if a.Set != "" && len(t.values(a.Field)) == 0 {
			t.add(a.Field, a.Set)
		} else if a.changesValues() {
			t.edit(a)
		}
	}
	for i := range a.Actions {
		applyAction(t, &a.Actions[i])
	}
}

func (a *Action) changesValues() bool {
	return a.Drop || a.Trim || a.Uppercase || a.Lowercase || a.Set != "" ||
		a.Replace != nil || len(a.MapValue) > 0
}

// ApplyToItem runs rs against the metadata values of item.
func (rs *RuleSet) ApplyToItem(item *content.Item) []string {
	return rs.apply(&itemTarget{item: item})
}

type itemTarget struct {
	item *content.Item
}

func (t *itemTarget) values(field string) []string {
	return t.item.Values(field)
}

func (t *itemTarget) edit(a *Action) int {
	changed := 0
	kept := t.item.Metadata[:0]
	for _, mv := range t.item.Metadata {
		if !mv.Matches(a.Field) || !a.selects(mv.Value) {
			kept = append(kept, mv)
			continue
		}
		value, keep := a.rewrite(mv.Value)
		if !keep {
			changed++
			continue
		}
		if value != mv.Value {
			changed++
			mv.Value = value
		}
		kept = append(kept, mv)
	}
	t.item.Metadata = kept
	t.item.RenumberPlaces()
	return changed
}

func (t *itemTarget) add(field, value string) {
	t.item.AddMetadata(field, "", value)
}

// ApplyToXML runs rs against the elements of root.
func (rs *RuleSet) ApplyToXML(root *xmltree.Node) []string {
	ns := make(map[string]string, len(DefaultNamespaces)+len(rs.Namespaces))
	for k, v := range DefaultNamespaces {
		ns[k] = v
	}
	for k, v := range rs.Namespaces {
		ns[k] = v
	}
	return rs.apply(&xmlTarget{root: root, namespaces: ns})
}

type xmlTarget struct {
	root       *xmltree.Node
	namespaces map[string]string
}

// resolve splits "prefix:local". An empty space matches any namespace.
func (t *xmlTarget) resolve(field string) (xml.Name, bool) {
	prefix, local, found := strings.Cut(field, ":")
	if !found {
		return xml.Name{Local: field}, true
	}
	space, ok := t.namespaces[prefix]
	return xml.Name{Space: space, Local: local}, ok
}

func (t *xmlTarget) nodes(field string) []*xmltree.Node {
	name, ok := t.resolve(field)
	if !ok {
		return nil
	}
	var out []*xmltree.Node
	for _, n := range t.root.Descendants(name.Local) {
		if name.Space == "" || n.Name.Space == name.Space {
			out = append(out, n)
		}
	}
	return out
}

func (t *xmlTarget) values(field string) []string {
	var out []string
	for _, n := range t.nodes(field) {
		out = append(out, n.Value())
	}
	return out
}

func (t *xmlTarget) edit(a *Action) int {
	changed := 0
	for _, n := range t.nodes(a.Field) {
		current := n.Value()
		if !a.selects(current) {
			continue
		}
		value, keep := a.rewrite(current)
		if !keep {
			n.Remove()
			changed++
			continue
		}
		if value != current {
			n.Text = value
			changed++
		}
	}
	return changed
}

// add appends a new element next to the existing elements of the same
// name, or under the record root.
func (t *xmlTarget) add(field, value string) {
	name, ok := t.resolve(field)
	if !ok {
		return
	}
	parent := t.root
	if existing := t.nodes(field); len(existing) > 0 && existing[0].Parent != nil {
		parent = existing[0].Parent
	} else if name.Space == "" {
		name.Space = t.defaultSpace()
	}
	parent.AddChild(name.Space, name.Local, value)
}

// defaultSpace is the namespace of the record's first child element, which
// is where unprefixed new elements belong.
func (t *xmlTarget) defaultSpace() string {
	if len(t.root.Children) > 0 {
		return t.root.Children[0].Name.Space
	}
	return t.root.Name.Space
}
