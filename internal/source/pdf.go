package source

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFSource handles PDF files. It tries the Go library first,
// then falls back to pdftotext if enabled.
type PDFSource struct {
	FallbackPdftotext bool
}

func (s *PDFSource) Load(r io.Reader, filename string) (*element.Tree, error) {
	// ledongthuc/pdf requires a file on disk.
	tmp, _, cleanup, err := spool(r, "treegest-pdf-*.pdf")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	tmp.Close()

	text, err := extractPDFText(tmp.Name())
	if err != nil && s.FallbackPdftotext {
		text, err = extractPdftotext(tmp.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	title := titleFromFilename(filename)
	root := element.NewNode("", element.Document).SetName(title)

	// Pages are separated by form feeds.
	for i, page := range strings.Split(text, "\f") {
		paras := paragraphs(page)
		if len(paras) == 0 {
			continue
		}
		panel := root.Append(element.NewNode(fmt.Sprintf("page-%d", i+1), element.Panel).
			SetName(fmt.Sprintf("Page %d", i+1)))
		for _, p := range paras {
			panel.Append(element.NewNode("", element.Label).SetText(p))
		}
	}

	return finish(title, root), nil
}

func extractPDFText(path string) (string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		if i > 1 {
			buf.WriteString("\f")
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
