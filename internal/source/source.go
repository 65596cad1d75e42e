// Package source builds element trees from documents and snapshots so the
// visual tree serializer can run without a live UI.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
)

// ErrUnsupported is returned for file extensions no source handles.
var ErrUnsupported = errors.New("unsupported file extension")

// Source converts raw bytes into an element tree.
type Source interface {
	Load(r io.Reader, filename string) (*element.Tree, error)
}

var byExtension = map[string]func() Source{
	".txt":      func() Source { return &TextSource{} },
	".md":       func() Source { return &MarkdownSource{} },
	".markdown": func() Source { return &MarkdownSource{} },
	".csv":      func() Source { return &CSVSource{} },
	".html":     func() Source { return &HTMLSource{} },
	".htm":      func() Source { return &HTMLSource{} },
	".pdf":      func() Source { return &PDFSource{} },
	".docx":     func() Source { return &DOCXSource{} },
	".yaml":     func() Source { return &SnapshotSource{} },
	".yml":      func() Source { return &SnapshotSource{} },
	".json":     func() Source { return &SnapshotSource{JSON: true} },
}

// ForFile returns the source for a filename.
func ForFile(filename string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	newSource, ok := byExtension[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	return newSource(), nil
}

// IsSupported checks if a file extension is supported.
func IsSupported(filename string) bool {
	_, ok := byExtension[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extensions lists the supported extensions, sorted.
func Extensions() []string {
	out := make([]string, 0, len(byExtension))
	for ext := range byExtension {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// LoadFile opens path and loads it with the matching source.
func LoadFile(path string) (*element.Tree, error) {
	src, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return src.Load(f, filepath.Base(path))
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// finish indexes the tree and lays it out.
func finish(title string, root *element.Node) *element.Tree {
	tree := element.NewTree(title, root)
	tree.Layout(element.DefaultLayoutWidth)
	return tree
}

// spool copies r to a temp file for libraries that need a ReaderAt and size.
// The caller must call cleanup.
func spool(r io.Reader, pattern string) (f *os.File, size int64, cleanup func(), err error) {
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup = func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	size, err = io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("seek temp file: %w", err)
	}
	return tmp, size, cleanup, nil
}

// outline nests heading sections by level. Each heading becomes a Panel
// named after it; content goes to the innermost open section.
type outline struct {
	stack []outlineEntry
}

type outlineEntry struct {
	node  *element.Node
	level int
}

func newOutline(root *element.Node) *outline {
	return &outline{stack: []outlineEntry{{node: root}}}
}

func (o *outline) current() *element.Node {
	return o.stack[len(o.stack)-1].node
}

func (o *outline) heading(title string, level int) *element.Node {
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	panel := o.current().Append(element.NewNode("", element.Panel).SetName(title))
	o.stack = append(o.stack, outlineEntry{node: panel, level: level})
	return panel
}

func (o *outline) add(n *element.Node) *element.Node {
	return o.current().Append(n)
}

// paragraphs splits text on blank lines, keeping single newlines.
func paragraphs(text string) []string {
	var out []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, "\n"))
			current = current[:0]
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	flush()
	return out
}
