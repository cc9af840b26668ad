// Package html extracts tabular data from HTML documents.
//
// Every <table> in the document is read (nested tables are read on their
// own), the first row of each is used as its header, and the table with the
// most data cells wins. Cell text has tags removed and whitespace collapsed.
package html

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"propetl/pkg/records"
)

// ErrNoTable is returned when the document has no table with at least one
// data row.
var ErrNoTable = errors.New("html: no non-empty table")

// maxColspan bounds colspan expansion for malformed documents.
const maxColspan = 1000

// table is one extracted <table>, header row first.
type table struct {
	rows [][]string
}

// width is the widest row in the table.
func (t table) width() int {
	w := 0
	for _, r := range t.rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// cells is data rows × columns; the header row does not count.
func (t table) cells() int {
	if len(t.rows) < 2 {
		return 0
	}
	return (len(t.rows) - 1) * t.width()
}

// ParseTables parses an HTML document and returns its largest table.
func ParseTables(r io.Reader) (*records.Batch, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("html: parse: %w", err)
	}

	var best *table
	bestCells := 0
	for _, t := range findTables(doc) {
		t := t
		if c := t.cells(); c > bestCells {
			best, bestCells = &t, c
		}
	}
	if best == nil {
		return nil, ErrNoTable
	}
	return best.batch(), nil
}

// batch converts the table into records keyed by its header row. Missing
// trailing cells become nil; blank header cells are named "Unnamed: N".
func (t table) batch() *records.Batch {
	w := t.width()
	headers := make([]string, w)
	for i := 0; i < w; i++ {
		if i < len(t.rows[0]) && t.rows[0][i] != "" {
			headers[i] = t.rows[0][i]
			continue
		}
		headers[i] = "Unnamed: " + strconv.Itoa(i)
	}

	b := &records.Batch{Columns: headers, Rows: make([]records.Record, 0, len(t.rows)-1), Lines: make([]int, 0, len(t.rows)-1)}
	for j, row := range t.rows[1:] {
		rec := make(records.Record, w)
		for i, h := range headers {
			if i < len(row) && row[i] != "" {
				rec[h] = row[i]
			} else {
				rec[h] = nil
			}
		}
		b.Append(rec, j+records.FirstDataLine)
	}
	return b
}

// findTables returns every table in document order.
func findTables(n *html.Node) []table {
	var out []table
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			out = append(out, readTable(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// readTable collects the rows owned by t, skipping rows of nested tables.
func readTable(t *html.Node) table {
	var tb table
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				// nested table: read separately by findTables
			case atom.Tr:
				if row := readRow(c); len(row) > 0 {
					tb.rows = append(tb.rows, row)
				}
			default:
				walk(c)
			}
		}
	}
	walk(t)
	return tb
}

func readRow(tr *html.Node) []string {
	var row []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
			continue
		}
		text := CollapseWhitespace(textContent(c))
		span := 1
		if v, err := strconv.Atoi(attr(c, "colspan")); err == nil && v > 1 {
			span = min(v, maxColspan)
		}
		for i := 0; i < span; i++ {
			row = append(row, text)
		}
	}
	return row
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
				return
			}
			if n.DataAtom == atom.Br {
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
