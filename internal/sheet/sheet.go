// Package sheet reads the first worksheet of an .xlsx or .xls upload into
// a table of rows keyed by the header row.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/starford/cardsmith/internal/convert"
)

// ErrUnsupportedFormat is returned for files that are neither .xlsx nor .xls.
var ErrUnsupportedFormat = errors.New("sheet: unsupported file format")

// Table is the parsed content of a worksheet.
type Table struct {
	Columns []string      `json:"columns"`
	Rows    []convert.Row `json:"rows"`
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Preview returns at most n leading rows.
func (t *Table) Preview(n int) []convert.Row {
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// Read parses data according to the extension of filename.
func Read(filename string, data []byte) (*Table, error) {
	var (
		cells [][]string
		err   error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		cells, err = readXLSX(data)
	case ".xls":
		cells, err = readXLS(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, err
	}
	return FromCells(cells), nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sheet: open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("sheet: read %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readXLS(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("sheet: open xls: %w", err)
	}
	first := wb.GetSheet(0)
	if first == nil {
		return nil, nil
	}
	return xlsCells(int(first.MaxRow), func(i int) xlsRow {
		if r := first.Row(i); r != nil {
			return r
		}
		return nil
	}), nil
}

// xlsRow is the part of *xls.Row used to read cells.
type xlsRow interface {
	FirstCol() int
	LastCol() int
	Col(int) string
}

// xlsCells reads rows 0..maxRow. A sheet whose only row is the header has
// maxRow 0 and still yields that row.
func xlsCells(maxRow int, row func(int) xlsRow) [][]string {
	out := make([][]string, 0, maxRow+1)
	for i := 0; i <= maxRow; i++ {
		r := row(i)
		if r == nil {
			out = append(out, nil)
			continue
		}
		cells := make([]string, max(r.LastCol(), 0))
		for j := max(r.FirstCol(), 0); j < len(cells); j++ {
			cells[j] = r.Col(j)
		}
		out = append(out, cells)
	}
	return out
}

// FromCells builds a table from raw cells. The first row is the header:
// blank header cells become "Unnamed: <index>" and repeated names get a
// ".<n>" suffix. Missing cells are empty strings and rows with no
// non-blank cell are skipped.
func FromCells(cells [][]string) *Table {
	t := &Table{Columns: []string{}, Rows: []convert.Row{}}
	if len(cells) == 0 {
		return t
	}

	width := 0
	for _, r := range cells {
		width = max(width, len(r))
	}
	t.Columns = headers(cells[0], width)

	for _, r := range cells[1:] {
		if blank(r) {
			continue
		}
		row := make(convert.Row, width)
		for i, col := range t.Columns {
			v := ""
			if i < len(r) {
				v = strings.TrimSpace(r[i])
			}
			row[i] = convert.Cell{Column: col, Value: v}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func headers(first []string, width int) []string {
	out := make([]string, width)
	seen := make(map[string]int, width)
	for i := range out {
		name := ""
		if i < len(first) {
			name = strings.TrimSpace(first[i])
		}
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

func blank(r []string) bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
