package source

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownSource handles Markdown files using goldmark.
type MarkdownSource struct{}

func (s *MarkdownSource) Load(r io.Reader, filename string) (*element.Tree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	title := titleFromFilename(filename)
	root := element.NewNode("", element.Document).SetName(title)

	// Headings open sections; everything else lands in the innermost one.
	o := newOutline(root)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			o.heading(string(h.Text(src)), h.Level)
			continue
		}
		markdownBlock(n, src, o.current())
	}

	return finish(title, root), nil
}

func markdownBlock(n ast.Node, src []byte, parent *element.Node) {
	switch b := n.(type) {
	case *ast.ThematicBreak:
		return

	case *ast.List:
		list := parent.Append(element.NewNode("", element.ListView))
		for item := b.FirstChild(); item != nil; item = item.NextSibling() {
			li := list.Append(element.NewNode("", element.ListViewItem))
			var texts []string
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				switch c.(type) {
				case *ast.Paragraph, *ast.TextBlock:
					if t := extractText(c, src); t != "" {
						texts = append(texts, t)
					}
					appendInlineElements(c, src, li)
				default:
					markdownBlock(c, src, li)
				}
			}
			li.SetText(strings.Join(texts, "\n"))
		}

	case *ast.FencedCodeBlock:
		edit := parent.Append(codeBlock(b, src))
		if lang := b.Language(src); len(lang) > 0 {
			edit.SetName(string(lang))
		}

	case *ast.CodeBlock:
		parent.Append(codeBlock(b, src))

	case *ast.Blockquote:
		quote := parent.Append(element.NewNode("", element.Panel))
		for c := b.FirstChild(); c != nil; c = c.NextSibling() {
			markdownBlock(c, src, quote)
		}

	default:
		t := extractText(n, src)
		if t == "" {
			return
		}
		label := parent.Append(element.NewNode("", element.Label).SetText(t))
		appendInlineElements(n, src, label)
	}
}

// codeBlock renders a code block as a read-only text field.
func codeBlock(n ast.Node, src []byte) *element.Node {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(src))
	}
	return element.NewNode("", element.TextEdit).
		SetText(strings.TrimRight(buf.String(), "\n")).
		AddStates(element.ReadOnly)
}

// appendInlineElements adds links and images found under n as children of
// parent.
func appendInlineElements(n ast.Node, src []byte, parent *element.Node) {
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch l := c.(type) {
		case *ast.Link:
			parent.Append(element.NewNode("", element.Hyperlink).
				SetName(extractText(l, src)).
				SetText(string(l.Destination)))
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			parent.Append(element.NewNode("", element.Hyperlink).SetText(string(l.URL(src))))
			return ast.WalkSkipChildren, nil
		case *ast.Image:
			parent.Append(element.NewNode("", element.Image).SetName(extractText(l, src)))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		if n.FirstChild() == nil {
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				buf.Write(line.Value(src))
			}
		}
	}
	// Also handle inline children.
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			// Recurse for nested inlines.
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
