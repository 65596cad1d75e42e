package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dgallion1/treegest/internal/element"
	"gopkg.in/yaml.v3"
)

// ErrInvalidSnapshot is returned for snapshot documents that do not describe
// an element tree.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the serialized form of an element tree.
type Snapshot struct {
	Title string           `json:"title,omitempty" yaml:"title,omitempty"`
	Root  *SnapshotElement `json:"root" yaml:"root"`
}

// SnapshotElement is one element of a Snapshot.
type SnapshotElement struct {
	ID       string            `json:"id,omitempty" yaml:"id,omitempty"`
	Type     string            `json:"type" yaml:"type"`
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Text     string            `json:"text,omitempty" yaml:"text,omitempty"`
	States   []string          `json:"states,omitempty" yaml:"states,omitempty"`
	Bounds   *element.Rect     `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Children []SnapshotElement `json:"children,omitempty" yaml:"children,omitempty"`
}

// SnapshotSource loads YAML (or JSON) element snapshots. A document is either
// a Snapshot or a bare SnapshotElement used as the root.
type SnapshotSource struct {
	JSON bool
}

func (s *SnapshotSource) Load(r io.Reader, filename string) (*element.Tree, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	var bare SnapshotElement
	if s.JSON {
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		if snap.Root == nil {
			if err := json.Unmarshal(raw, &bare); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
			}
		}
	} else {
		if err := yaml.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		if snap.Root == nil {
			if err := yaml.Unmarshal(raw, &bare); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
			}
		}
	}
	if snap.Root == nil {
		if bare.Type == "" {
			return nil, fmt.Errorf("%w: no root element", ErrInvalidSnapshot)
		}
		snap.Root = &bare
	}

	title := snap.Title
	if title == "" {
		title = titleFromFilename(filename)
	}
	root, err := snapshotNode(*snap.Root)
	if err != nil {
		return nil, err
	}
	return finish(title, root), nil
}

func snapshotNode(se SnapshotElement) (*element.Node, error) {
	t, ok := element.ParseType(se.Type)
	if !ok {
		return nil, fmt.Errorf("%w: element %q has unknown type %q", ErrInvalidSnapshot, se.ID, se.Type)
	}
	n := element.NewNode(se.ID, t).
		SetName(se.Name).
		SetText(se.Text).
		SetStates(element.ParseStates(se.States))
	if se.Bounds != nil {
		n.SetBounds(*se.Bounds)
	}
	for _, c := range se.Children {
		child, err := snapshotNode(c)
		if err != nil {
			return nil, err
		}
		n.Append(child)
	}
	return n, nil
}

// ToSnapshot converts a tree back into its serialized form.
func ToSnapshot(tree *element.Tree) Snapshot {
	snap := Snapshot{Title: tree.Title}
	if tree.Root != nil {
		root := toSnapshotElement(tree.Root)
		snap.Root = &root
	}
	return snap
}

func toSnapshotElement(n *element.Node) SnapshotElement {
	se := SnapshotElement{
		ID:     n.ID(),
		Type:   n.Type().String(),
		Name:   n.Name(),
		Text:   n.RawText(),
		States: n.States().Names(),
	}
	if b := n.Bounds(); !b.IsZero() {
		se.Bounds = &b
	}
	for _, c := range n.Kids() {
		se.Children = append(se.Children, toSnapshotElement(c))
	}
	return se
}

// WriteSnapshot encodes tree as YAML, or JSON when asJSON is set.
func WriteSnapshot(w io.Writer, tree *element.Tree, asJSON bool) error {
	snap := ToSnapshot(tree)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return err
	}
	return enc.Close()
}
