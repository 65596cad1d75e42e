// Package element models the read-only UI element graph that the visual tree
// serializer consumes, plus an in-memory snapshot implementation used by every
// element source in this repository.
package element

import (
	"errors"
	"strings"
)

// ErrUnknownElement is returned when a seed id does not name an element in a tree.
var ErrUnknownElement = errors.New("unknown element")

// Type is the kind of a visual element. Its String form is the tag name used
// in serialized output.
type Type int

const (
	Unknown Type = iota
	Label
	TextEdit
	Document
	Button
	Hyperlink
	Image
	CheckBox
	RadioButton
	ComboBox
	ListView
	ListViewItem
	TreeView
	TreeViewItem
	DataGrid
	DataGridItem
	TabControl
	TabItem
	Table
	TableRow
	Menu
	MenuItem
	Slider
	ScrollBar
	ProgressBar
	Panel
	TopLevel
	Screen
)

var typeNames = [...]string{
	Unknown:      "Unknown",
	Label:        "Label",
	TextEdit:     "TextEdit",
	Document:     "Document",
	Button:       "Button",
	Hyperlink:    "Hyperlink",
	Image:        "Image",
	CheckBox:     "CheckBox",
	RadioButton:  "RadioButton",
	ComboBox:     "ComboBox",
	ListView:     "ListView",
	ListViewItem: "ListViewItem",
	TreeView:     "TreeView",
	TreeViewItem: "TreeViewItem",
	DataGrid:     "DataGrid",
	DataGridItem: "DataGridItem",
	TabControl:   "TabControl",
	TabItem:      "TabItem",
	Table:        "Table",
	TableRow:     "TableRow",
	Menu:         "Menu",
	MenuItem:     "MenuItem",
	Slider:       "Slider",
	ScrollBar:    "ScrollBar",
	ProgressBar:  "ProgressBar",
	Panel:        "Panel",
	TopLevel:     "TopLevel",
	Screen:       "Screen",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return typeNames[Unknown]
	}
	return typeNames[t]
}

// ParseType maps a tag name back to a Type, ignoring case. Unrecognized names
// map to Unknown with ok=false.
func ParseType(s string) (Type, bool) {
	s = strings.TrimSpace(s)
	for i, name := range typeNames {
		if strings.EqualFold(name, s) {
			return Type(i), true
		}
	}
	return Unknown, false
}

// IsTextBearing reports whether the element kind carries its payload as text
// rather than as a name.
func (t Type) IsTextBearing() bool {
	return t == Label || t == TextEdit || t == Document
}

// IsContainer reports whether the element kind is a layout container whose
// bounds are worth reporting.
func (t Type) IsContainer() bool {
	return t == Document || t == Panel || t == TopLevel || t == Screen
}

// States is a bitset of element states.
type States uint32

const (
	Offscreen States = 1 << iota
	Disabled
	Focused
	Selected
	ReadOnly
	Password

	None States = 0
)

var stateNames = []struct {
	state States
	name  string
}{
	{Offscreen, "offscreen"},
	{Disabled, "disabled"},
	{Focused, "focused"},
	{Selected, "selected"},
	{ReadOnly, "readonly"},
	{Password, "password"},
}

// Has reports whether every state in mask is set.
func (s States) Has(mask States) bool { return s&mask == mask }

// Any reports whether at least one state in mask is set.
func (s States) Any(mask States) bool { return s&mask != 0 }

// Names lists the set states in declaration order.
func (s States) Names() []string {
	var out []string
	for _, sn := range stateNames {
		if s.Has(sn.state) {
			out = append(out, sn.name)
		}
	}
	return out
}

// ParseStates builds a bitset from state names. Unknown names are ignored.
func ParseStates(names []string) States {
	var s States
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		for _, sn := range stateNames {
			if sn.name == n {
				s |= sn.state
			}
		}
	}
	return s
}

// Rect is a bounding rectangle in device pixels, relative to the screen.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// IsZero reports whether the rectangle carries no geometry.
func (r Rect) IsZero() bool { return r == Rect{} }

// Element is one node of an externally owned visual tree. Implementations are
// read-only from the consumer's point of view and must tolerate repeated calls.
// Navigation methods return nil (or an empty slice) when the neighbor does not
// exist; they must return an untyped nil, never a typed nil pointer.
type Element interface {
	// ID is unique within one tree snapshot.
	ID() string
	Type() Type
	// Name is the accessible name, empty when absent.
	Name() string
	// Text returns the textual content. maxLength < 0 means no limit.
	Text(maxLength int) string
	States() States
	Bounds() Rect

	Parent() Element
	Children() []Element
	PreviousSibling() Element
	NextSibling() Element
}
