// Package browser captures element trees from live web pages through the
// Chrome accessibility tree.
package browser

import (
	"fmt"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/go-rod/rod/lib/proto"
)

// BoxFunc resolves the bounding box of a DOM node. ok=false leaves the
// element without geometry.
type BoxFunc func(id proto.DOMBackendNodeID) (r element.Rect, ok bool)

var roleTypes = map[string]element.Type{
	"button":           element.Button,
	"togglebutton":     element.Button,
	"popupbutton":      element.Button,
	"link":             element.Hyperlink,
	"checkbox":         element.CheckBox,
	"switch":           element.CheckBox,
	"menuitemcheckbox": element.MenuItem,
	"radio":            element.RadioButton,
	"menuitemradio":    element.MenuItem,
	"combobox":         element.ComboBox,
	"listbox":          element.ListView,
	"list":             element.ListView,
	"option":           element.ListViewItem,
	"listitem":         element.ListViewItem,
	"listboxoption":    element.ListViewItem,
	"tree":             element.TreeView,
	"treeitem":         element.TreeViewItem,
	"grid":             element.DataGrid,
	"treegrid":         element.DataGrid,
	"table":            element.Table,
	"row":              element.TableRow,
	"cell":             element.Label,
	"gridcell":         element.Label,
	"columnheader":     element.Label,
	"rowheader":        element.Label,
	"tablist":          element.TabControl,
	"tab":              element.TabItem,
	"menu":             element.Menu,
	"menubar":          element.Menu,
	"menuitem":         element.MenuItem,
	"slider":           element.Slider,
	"spinbutton":       element.Slider,
	"scrollbar":        element.ScrollBar,
	"progressbar":      element.ProgressBar,
	"meter":            element.ProgressBar,
	"textbox":          element.TextEdit,
	"searchbox":        element.TextEdit,
	"textfield":        element.TextEdit,
	"image":            element.Image,
	"img":              element.Image,
	"statictext":       element.Label,
	"labeltext":        element.Label,
	"heading":          element.Label,
	"paragraph":        element.Label,
	"caption":          element.Label,
	"rootwebarea":      element.Document,
	"webarea":          element.Document,
	"document":         element.Document,
	"article":          element.Document,
	"iframe":           element.Document,
	"dialog":           element.TopLevel,
	"alertdialog":      element.TopLevel,
	"window":           element.TopLevel,
}

// roleType maps an ARIA or Chrome internal role onto an element type. Any
// other role is a generic Panel.
func roleType(role string) element.Type {
	if t, ok := roleTypes[strings.ToLower(role)]; ok {
		return t
	}
	return element.Panel
}

// FromAXNodes converts the flat node list of Accessibility.getFullAXTree into
// an element tree. Ignored nodes and inline text boxes are flattened into
// their nearest kept ancestor. The result is rooted at a TopLevel named title.
func FromAXNodes(title string, nodes []*proto.AccessibilityAXNode, boxes BoxFunc) *element.Tree {
	byID := make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes))
	for _, n := range nodes {
		if n != nil {
			byID[n.NodeID] = n
		}
	}

	root := element.NewNode("window", element.TopLevel).SetName(title)
	seen := make(map[proto.AccessibilityAXNodeID]bool, len(nodes))

	var convert func(ax *proto.AccessibilityAXNode, parent *element.Node)
	convert = func(ax *proto.AccessibilityAXNode, parent *element.Node) {
		if seen[ax.NodeID] {
			return
		}
		seen[ax.NodeID] = true

		into := parent
		if !skipped(ax) {
			into = parent.Append(axElement(ax, boxes))
		}
		for _, cid := range ax.ChildIDs {
			if child, ok := byID[cid]; ok {
				convert(child, into)
			}
		}
	}

	for _, n := range nodes {
		if n == nil {
			continue
		}
		if _, hasParent := byID[n.ParentID]; n.ParentID == "" || !hasParent {
			convert(n, root)
		}
	}

	if b := root.Kids(); len(b) == 1 && b[0].Type() == element.Document {
		root.SetBounds(b[0].Bounds())
	}
	return element.NewTree(title, root)
}

func skipped(ax *proto.AccessibilityAXNode) bool {
	if ax.Ignored {
		return true
	}
	role := strings.ToLower(axString(ax.Role))
	return role == "inlinetextbox" || role == "none" || role == "presentation" || role == "linebreak"
}

func axElement(ax *proto.AccessibilityAXNode, boxes BoxFunc) *element.Node {
	t := roleType(axString(ax.Role))
	n := element.NewNode(fmt.Sprintf("ax%s", ax.NodeID), t).SetName(strings.TrimSpace(axString(ax.Name)))

	switch t {
	case element.TextEdit, element.ComboBox, element.Slider, element.ProgressBar:
		n.SetText(axString(ax.Value))
	}

	var states element.States
	for _, p := range ax.Properties {
		if p == nil {
			continue
		}
		on := axTrue(p.Value)
		switch string(p.Name) {
		case "focused":
			if on {
				states |= element.Focused
			}
		case "disabled":
			if on {
				states |= element.Disabled
			}
		case "selected", "checked", "pressed":
			if on {
				states |= element.Selected
			}
		case "readonly":
			if on {
				states |= element.ReadOnly
			}
		case "hidden":
			if on {
				states |= element.Offscreen
			}
		}
	}
	n.SetStates(states)

	if boxes != nil && ax.BackendDOMNodeID != 0 && t.IsContainer() {
		if r, ok := boxes(ax.BackendDOMNodeID); ok {
			n.SetBounds(r)
		}
	}
	return n
}

func axString(v *proto.AccessibilityAXValue) string {
	if v == nil || v.Value.Nil() {
		return ""
	}
	switch x := v.Value.Val().(type) {
	case string:
		return x
	case bool, float64, int:
		return fmt.Sprint(x)
	}
	return ""
}

// axTrue accepts booleans and the "true"/"mixed" tristate tokens.
func axTrue(v *proto.AccessibilityAXValue) bool {
	if v == nil || v.Value.Nil() {
		return false
	}
	switch x := v.Value.Val().(type) {
	case bool:
		return x
	case string:
		return x == "true" || x == "mixed"
	}
	return false
}

// quadRect converts a DOM box-model quad into an axis-aligned rectangle.
func quadRect(q proto.DOMQuad, width, height int) element.Rect {
	if len(q) < 8 {
		return element.Rect{Width: width, Height: height}
	}
	minX, minY := q[0], q[1]
	for i := 2; i+1 < len(q); i += 2 {
		minX = min(minX, q[i])
		minY = min(minY, q[i+1])
	}
	return element.Rect{X: int(minX), Y: int(minY), Width: width, Height: height}
}
