/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Element is one node of a generic XML document tree. API responses carry no
// fixed schema (shape depends on the requested shards), so responses are
// decoded into a tree and navigated by tag name.
type Element struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Element
}

// ParseXML decodes an XML document into an element tree rooted at the
// document's root element.
func ParseXML(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	root, err := decodeElement(dec)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("document contains no elements")
	}
	return root, nil
}

// decodeElement reads tokens up to and including the next start element and
// returns its fully decoded subtree. Returns nil when the stream ends before
// any element starts.
func decodeElement(dec *xml.Decoder) (*Element, error) {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		return decodeSubtree(dec, start)
	}
}

func decodeSubtree(dec *xml.Decoder, start xml.StartElement) (*Element, error) {
	el := &Element{Name: start.Name.Local}
	if len(start.Attr) != 0 {
		el.Attrs = make(map[string]string, len(start.Attr))
		for _, attr := range start.Attr {
			el.Attrs[attr.Name.Local] = attr.Value
		}
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeSubtree(dec, t)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			el.Text = strings.TrimSpace(text.String())
			return el, nil
		}
	}
}

// Find returns the first direct child with the given tag name, nil if none.
// Tag names are matched case-insensitively.
func (e *Element) Find(name string) *Element {
	for _, child := range e.Children {
		if strings.EqualFold(child.Name, name) {
			return child
		}
	}
	return nil
}

// FindAll returns all direct children with the given tag name.
func (e *Element) FindAll(name string) []*Element {
	var found []*Element
	for _, child := range e.Children {
		if strings.EqualFold(child.Name, name) {
			found = append(found, child)
		}
	}
	return found
}

// Get returns the text of the first direct child with the given tag name,
// empty string if none.
func (e *Element) Get(name string) string {
	if child := e.Find(name); child != nil {
		return child.Text
	}
	return ""
}

// Attr returns the value of the named attribute, empty string if not present.
func (e *Element) Attr(name string) string {
	return e.Attrs[name]
}
