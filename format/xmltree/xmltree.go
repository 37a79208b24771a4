// Package xmltree provides a small mutable XML element tree.
//
// Crosswalks read metadata payloads through it, and record transforms edit
// payloads in place before they are ingested:
//
//	root, err := xmltree.Parse(strings.NewReader(payload))
//	for _, n := range root.Descendants("title") {
//		n.Text = strings.TrimSpace(n.Text)
//	}
//	out, err := root.Marshal()
package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// XMLNamespace is the namespace bound to the reserved xml: prefix.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// Node is an element. Name.Space holds the namespace URI, not the prefix.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*Node
	Parent   *Node `xml:"-"`
}

// Parse reads the first element of r and everything below it.
func Parse(r io.Reader) (*Node, error) {
	decoder := xml.NewDecoder(r)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil, errors.New("no element found in XML")
		}
		if err != nil {
			return nil, fmt.Errorf("parsing XML: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return parseElement(decoder, start, nil)
		}
	}
}

// ParseString is Parse on a string.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}

// ParseAll returns every element whose local name is local, scanning the
// whole document. Matches nested inside a match are not reported
// separately. This finds records inside wrappers such as OAI-PMH envelopes.
func ParseAll(r io.Reader, local string) ([]*Node, error) {
	decoder := xml.NewDecoder(r)
	var results []*Node
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing XML: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != local {
			continue
		}
		n, err := parseElement(decoder, start, nil)
		if err != nil {
			return nil, fmt.Errorf("parsing element %d: %w", len(results), err)
		}
		results = append(results, n)
	}
	return results, nil
}

func parseElement(decoder *xml.Decoder, start xml.StartElement, parent *Node) (*Node, error) {
	n := &Node{Name: start.Name, Parent: parent}
	for _, attr := range start.Attr {
		if attr.Name.Space == "xmlns" || (attr.Name.Space == "" && attr.Name.Local == "xmlns") {
			continue
		}
		n.Attrs = append(n.Attrs, attr)
	}

	var text strings.Builder
	for {
		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("unexpected end of document inside <%s>", start.Name.Local)
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(decoder, t, n)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n.Text = text.String()
			return n, nil
		}
	}
}

// Value returns the trimmed text of n.
func (n *Node) Value() string {
	return strings.TrimSpace(n.Text)
}

// Attr returns the value of the attribute with the given local name.
func (n *Node) Attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// SetAttr sets or adds an attribute without a namespace.
func (n *Node) SetAttr(local, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name.Local == local {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Local: local}, Value: value})
}

// Lang returns xml:lang, or "".
func (n *Node) Lang() string {
	for _, a := range n.Attrs {
		if a.Name.Local == "lang" && (a.Name.Space == XMLNamespace || a.Name.Space == "xml") {
			return a.Value
		}
	}
	return ""
}

// Child returns the first direct child with local name, or nil.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

// ChildValue returns the trimmed text of the first child named local.
func (n *Node) ChildValue(local string) string {
	if c := n.Child(local); c != nil {
		return c.Value()
	}
	return ""
}

// ChildrenNamed returns direct children with local name.
func (n *Node) ChildrenNamed(local string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name.Local == local {
			out = append(out, c)
		}
	}
	return out
}

// Descendants returns every element below n with local name, in document
// order. An empty name matches every element.
func (n *Node) Descendants(local string) []*Node {
	var out []*Node
	n.Walk(func(d *Node) bool {
		if d != n && (local == "" || d.Name.Local == local) {
			out = append(out, d)
		}
		return true
	})
	return out
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// AddChild appends a new element and returns it.
func (n *Node) AddChild(space, local, text string) *Node {
	c := &Node{Name: xml.Name{Space: space, Local: local}, Text: text, Parent: n}
	n.Children = append(n.Children, c)
	return c
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	if n.Parent == nil {
		return
	}
	siblings := n.Parent.Children
	for i, c := range siblings {
		if c == n {
			n.Parent.Children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.Parent = nil
}

// Encode writes n through enc.
func (n *Node) Encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: n.Name, Attr: n.Attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if n.Text != "" && len(n.Children) == 0 {
		if err := enc.EncodeToken(xml.CharData(n.Text)); err != nil {
			return err
		}
	}
	for _, c := range n.Children {
		if err := c.Encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Marshal renders n without an XML declaration.
func (n *Node) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := n.Encode(enc); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
