package source

import (
	"strings"
	"testing"

	"github.com/dgallion1/treegest/internal/element"
)

func TestCSVSource_RowsAndCells(t *testing.T) {
	input := "name,age\nalice,30\nbob,\ncarol,41,extra\n"
	s := &CSVSource{}
	tree, err := s.Load(strings.NewReader(input), "people.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tables := ofType(tree.Root, element.Table)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	rows := tables[0].Kids()
	if len(rows) != 3 {
		t.Fatalf("expected 3 data rows, got %d", len(rows))
	}
	if rows[0].Type() != element.TableRow || rows[0].Name() != "Row 2" {
		t.Errorf("unexpected first row %s %q", rows[0].Type(), rows[0].Name())
	}

	cells := rows[0].Kids()
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if cells[0].Name() != "name" || cells[0].RawText() != "alice" {
		t.Errorf("unexpected cell %q=%q", cells[0].Name(), cells[0].RawText())
	}
	if cells[1].Name() != "age" || cells[1].RawText() != "30" {
		t.Errorf("unexpected cell %q=%q", cells[1].Name(), cells[1].RawText())
	}

	// Empty cells carry no name so they do not render as content.
	if empty := rows[1].Kids()[1]; empty.Name() != "" || empty.RawText() != "" {
		t.Errorf("expected blank cell, got %q=%q", empty.Name(), empty.RawText())
	}
	if extra := rows[2].Kids()[2]; extra.Name() != "Column 3" {
		t.Errorf("expected positional name for extra column, got %q", extra.Name())
	}
}

func TestCSVSource_Empty(t *testing.T) {
	s := &CSVSource{}
	tree, err := s.Load(strings.NewReader(""), "none.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tables := ofType(tree.Root, element.Table)
	if len(tables) != 1 || len(tables[0].Kids()) != 0 {
		t.Errorf("expected an empty table")
	}
}
