package visualtree

import (
	"strings"

	"github.com/dgallion1/treegest/internal/element"
)

var interactiveTypes = map[element.Type]bool{
	element.Button:       true,
	element.Hyperlink:    true,
	element.CheckBox:     true,
	element.RadioButton:  true,
	element.ComboBox:     true,
	element.ListView:     true,
	element.ListViewItem: true,
	element.TreeView:     true,
	element.TreeViewItem: true,
	element.DataGrid:     true,
	element.DataGridItem: true,
	element.TabControl:   true,
	element.TabItem:      true,
	element.Menu:         true,
	element.MenuItem:     true,
	element.Slider:       true,
	element.ScrollBar:    true,
	element.ProgressBar:  true,
	element.TextEdit:     true,
	element.Table:        true,
	element.TableRow:     true,
}

const attentionStates = element.Focused | element.Selected

// classify sets the render flags of every node below roots. Informativeness
// is computed at every level so callers can inspect it; Detailed simply keeps
// everything.
func (b *Builder) classify(roots []*node) {
	for _, r := range roots {
		b.mark(r)
	}
}

func (b *Builder) mark(n *node) bool {
	count := 0
	for _, c := range n.children {
		if b.mark(c) {
			count++
		}
	}
	n.informativeChildCount = count

	self := b.selfInformative(n)
	n.hasInformativeContent = self || count > 0

	switch {
	case self || b.opts.Detail == Detailed:
		n.shouldRender = true
	case b.opts.Detail == Compact:
		n.shouldRender = keepCompact(n)
	case b.opts.Detail == Minimal:
		n.shouldRender = n.parent == nil && count > 0
	default:
		n.shouldRender = count > 0
	}
	return n.hasInformativeContent
}

func (b *Builder) selfInformative(n *node) bool {
	for _, line := range n.contents {
		if strings.TrimSpace(line) != "" {
			return true
		}
	}
	if strings.TrimSpace(n.description) != "" {
		return true
	}
	if interactiveTypes[n.el.Type()] || n.el.States().Any(attentionStates) {
		return true
	}
	_, seed := b.seedIDs[n.id]
	return seed
}

// keepCompact retains structural containers that group informative content.
func keepCompact(n *node) bool {
	count := n.informativeChildCount
	if n.parent == nil && count > 0 {
		return true
	}
	switch n.el.Type() {
	case element.Screen, element.TopLevel, element.Panel:
		return count > 1
	case element.Document:
		return count > 0
	}
	return false
}
