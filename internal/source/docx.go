package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/fumiama/go-docx"
)

// DOCXSource handles .docx files.
type DOCXSource struct{}

func (s *DOCXSource) Load(r io.Reader, filename string) (*element.Tree, error) {
	// go-docx needs a ReaderAt and size.
	tmp, size, cleanup, err := spool(r, "treegest-docx-*.docx")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	doc, err := docx.Parse(tmp, size)
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	title := titleFromFilename(filename)
	root := element.NewNode("", element.Document).SetName(title)
	o := newOutline(root)

	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			text := docxParagraphText(it)
			if text == "" {
				continue
			}
			if level := docxHeadingLevel(it); level > 0 {
				o.heading(text, level)
				continue
			}
			o.add(element.NewNode("", element.Label).SetText(text))
		case *docx.Table:
			o.add(docxTable(it))
		}
	}

	return finish(title, root), nil
}

func docxTable(t *docx.Table) *element.Node {
	table := element.NewNode("", element.Table)
	for _, tr := range t.TableRows {
		row := table.Append(element.NewNode("", element.TableRow))
		for _, tc := range tr.TableCells {
			var parts []string
			for _, p := range tc.Paragraphs {
				if text := docxParagraphText(p); text != "" {
					parts = append(parts, text)
				}
			}
			row.Append(element.NewNode("", element.Label).SetText(strings.Join(parts, "\n")))
		}
	}
	return table
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") {
		if style == "title" {
			return 1
		}
		return 0
	}
	switch strings.TrimPrefix(style, "heading") {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
