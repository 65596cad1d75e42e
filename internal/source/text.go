package source

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
)

// TextSource handles plain text files.
type TextSource struct{}

func (s *TextSource) Load(r io.Reader, filename string) (*element.Tree, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var paras []string
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				paras = append(paras, current.String())
				current.Reset()
			}
		} else {
			if current.Len() > 0 {
				current.WriteString("\n")
			}
			current.WriteString(line)
		}
	}
	if current.Len() > 0 {
		paras = append(paras, current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	title := titleFromFilename(filename)
	root := element.NewNode("", element.Document).SetName(title)

	// Each paragraph becomes a label.
	for _, para := range paras {
		root.Append(element.NewNode("", element.Label).SetText(para))
	}

	return finish(title, root), nil
}
