package visualtree

import (
	"strconv"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
)

const inaccessibleWarning = "XML content may be inaccessible!"

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escape(s string) string { return xmlEscaper.Replace(s) }

// warningThreshold is the width and height an empty container must exceed to
// be flagged. Zero disables the warning.
func warningThreshold(d DetailLevel) int {
	switch d {
	case Detailed:
		return 64
	case Compact:
		return 256
	default:
		return 0
	}
}

type serializer struct {
	sb     strings.Builder
	detail DetailLevel
	ids    *IDMap
}

func serialize(roots []*node, detail DetailLevel, ids *IDMap) string {
	s := &serializer{detail: detail, ids: ids}
	for _, r := range roots {
		s.write(r, 0)
	}
	return strings.TrimRight(s.sb.String(), " \t\r\n")
}

func (s *serializer) write(n *node, indent int) {
	if !n.shouldRender {
		for _, c := range n.children {
			s.write(c, indent)
		}
		return
	}

	pad := strings.Repeat("  ", indent)
	typ := n.el.Type()
	name := typ.String()

	s.sb.WriteString(pad)
	s.sb.WriteByte('<')
	s.sb.WriteString(name)
	s.attr("id", strconv.Itoa(s.ids.add(n.el)))

	withBounds := typ.IsContainer() && s.detail != Minimal
	var bounds element.Rect
	if withBounds {
		bounds = n.el.Bounds()
		s.attr("x", strconv.Itoa(bounds.X))
		s.attr("y", strconv.Itoa(bounds.Y))
		s.attr("width", strconv.Itoa(bounds.Width))
		s.attr("height", strconv.Itoa(bounds.Height))
	}
	if n.description != "" {
		s.attr("description", escape(n.description))
	}
	if len(n.contents) == 1 {
		s.attr("content", escape(n.contents[0]))
	}

	// a single content line already went out as an attribute
	if len(n.children) == 0 && len(n.contents) <= 1 {
		if len(n.contents) == 0 && withBounds {
			if limit := warningThreshold(s.detail); limit > 0 && bounds.Width > limit && bounds.Height > limit {
				s.attr("warning", inaccessibleWarning)
			}
		}
		s.sb.WriteString("/>\n")
		return
	}

	s.sb.WriteString(">\n")
	if len(n.contents) > 1 {
		for _, line := range n.contents {
			if strings.TrimSpace(line) == "" {
				continue
			}
			s.sb.WriteString(pad)
			s.sb.WriteString("  ")
			s.sb.WriteString(escape(line))
			s.sb.WriteByte('\n')
		}
	}
	for _, c := range n.children {
		s.write(c, indent+1)
	}
	s.sb.WriteString(pad)
	s.sb.WriteString("</")
	s.sb.WriteString(name)
	s.sb.WriteString(">\n")
}

func (s *serializer) attr(key, value string) {
	s.sb.WriteByte(' ')
	s.sb.WriteString(key)
	s.sb.WriteString(`="`)
	s.sb.WriteString(value)
	s.sb.WriteByte('"')
}
