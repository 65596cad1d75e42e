package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/treegest/internal/element"
)

// CSVSource handles CSV files. The first record is the header row; every
// other record becomes a TableRow of cells named by their column header.
type CSVSource struct{}

func (s *CSVSource) Load(r io.Reader, filename string) (*element.Tree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	title := titleFromFilename(filename)
	root := element.NewNode("", element.Document).SetName(title)
	table := root.Append(element.NewNode("", element.Table).SetName(title))

	if len(records) == 0 {
		return finish(title, root), nil
	}

	headers := records[0]
	for i, rec := range records[1:] {
		row := table.Append(element.NewNode("", element.TableRow).SetName(fmt.Sprintf("Row %d", i+2)))
		for j, cell := range rec {
			cell = strings.TrimSpace(cell)
			label := row.Append(element.NewNode("", element.Label).SetText(cell))
			if cell == "" {
				continue
			}
			if j < len(headers) && strings.TrimSpace(headers[j]) != "" {
				label.SetName(strings.TrimSpace(headers[j]))
			} else {
				label.SetName(fmt.Sprintf("Column %d", j+1))
			}
		}
	}

	return finish(title, root), nil
}
