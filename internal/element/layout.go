package element

import "strings"

// Flow layout constants, in pixels.
const (
	DefaultLayoutWidth = 1280
	lineHeight         = 20
	charWidth          = 8
	containerPadding   = 8
	containerIndent    = 16
	minLayoutWidth     = 64
)

// Layout synthesizes bounding boxes for sources that have no geometry of their
// own (documents). Blocks are stacked top to bottom, containers indent and pad
// their children. Nodes that already carry bounds keep them, and their
// children are placed inside them.
func (t *Tree) Layout(width int) {
	if t.Root == nil {
		return
	}
	if width <= 0 {
		width = DefaultLayoutWidth
	}
	layoutNode(t.Root, 0, 0, width)
}

func layoutNode(n *Node, x, y, w int) int {
	explicit := !n.bounds.IsZero()
	if explicit {
		x, y, w = n.bounds.X, n.bounds.Y, n.bounds.Width
	}

	h := 0
	if n.text != "" {
		h = lineHeight * (strings.Count(n.text, "\n") + 1)
	} else if n.name != "" && !n.typ.IsContainer() {
		h = lineHeight
	}

	if len(n.children) > 0 {
		cx, cw := x, w
		cy := y + h
		if n.typ.IsContainer() {
			cx += containerIndent
			cw = max(w-2*containerIndent, minLayoutWidth)
			cy += containerPadding
		}
		for _, c := range n.children {
			cy += layoutNode(c, cx, cy, cw)
		}
		h = cy - y
		if n.typ.IsContainer() {
			h += containerPadding
		}
	}
	if h == 0 {
		h = lineHeight
	}

	if explicit {
		return n.bounds.Height
	}
	if !n.typ.IsContainer() && len(n.children) == 0 {
		// leaves are as wide as their longest line
		longest := 0
		for _, line := range strings.Split(n.text+n.name, "\n") {
			longest = max(longest, len([]rune(line)))
		}
		w = min(w, max(longest*charWidth, minLayoutWidth))
	}
	n.bounds = Rect{X: x, Y: y, Width: w, Height: h}
	return h
}
