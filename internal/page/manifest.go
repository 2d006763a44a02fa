package page

import (
	"fmt"
	"io"
	"os"

	"github.com/patrickwarner/embedpool/internal/models"
	"gopkg.in/yaml.v3"
)

// Manifest describes a page: its initial viewport, layout containers and
// demo slots.
type Manifest struct {
	Viewport   models.Viewport `yaml:"viewport"`
	Containers []Node          `yaml:"containers"`
	Demos      []Node          `yaml:"demos"`
}

// Node is one element of the manifest. Offsets are relative to Parent.
type Node struct {
	ID      string  `yaml:"id"`
	Parent  string  `yaml:"parent,omitempty"`
	Top     float64 `yaml:"top"`
	Left    float64 `yaml:"left"`
	Height  float64 `yaml:"height"`
	Width   float64 `yaml:"width"`
	Source  string  `yaml:"source,omitempty"`
	Payload string  `yaml:"payload,omitempty"`
}

// LoadManifest reads a YAML manifest file and builds its document.
func LoadManifest(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	return ParseManifest(f)
}

// ParseManifest builds a document from a YAML manifest.
func ParseManifest(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return m.Build()
}

// Build creates the document. Parents must be declared before children;
// containers come before demos in document order.
func (m Manifest) Build() (*Document, error) {
	doc := NewDocument(m.Viewport)

	add := func(n Node, classes ...string) (*Element, error) {
		el := NewElement(n.ID, classes...)
		el.OffsetTop, el.OffsetLeft = n.Top, n.Left
		el.OffsetHeight, el.OffsetWidth = n.Height, n.Width
		if n.Parent != "" {
			parent, ok := doc.ByID(n.Parent)
			if !ok {
				return nil, fmt.Errorf("element %s: unknown parent %q", n.ID, n.Parent)
			}
			el.Parent = parent
		}
		if err := doc.Append(el); err != nil {
			return nil, err
		}
		return el, nil
	}

	for _, n := range m.Containers {
		if _, err := add(n, "container"); err != nil {
			return nil, err
		}
	}
	for _, n := range m.Demos {
		if n.ID == "" {
			return nil, ErrMissingID
		}
		el, err := add(n, SlotClass)
		if err != nil {
			return nil, err
		}
		if n.Source != "" {
			el.SetAttr(AttrSource, n.Source)
		}
		if n.Payload != "" {
			el.SetAttr(AttrPayload, n.Payload)
		}
	}
	return doc, nil
}
