package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"

	"cloud.google.com/go/civil"
)

// ErrConflict is returned by ledger stores when a concurrent writer won
// the read-modify-write race; callers should redo the fetch and append.
var ErrConflict = errors.New("ledger: version conflict")

// baseHeader is the fixed 9-column schema. New ledgers additionally get
// the advisory duplicate-score column.
var baseHeader = []string{
	"Service Date",
	"Payment Date",
	"Vendor/Provider",
	"Category",
	"Description",
	"Amount",
	"Receipt URI",
	"Reimbursed",
	"Notes",
}

const scoreHeader = "Duplicate Score"

// Entry is one archived, accepted transaction. Reimbursed is always "No"
// and Notes always empty at creation; rows are never mutated after
// append.
type Entry struct {
	ServiceDate *civil.Date
	PaymentDate *civil.Date
	Provider    string
	Category    string
	Description string
	Amount      float64
	ReceiptURI  string
}

// Ledger is the in-memory form of the CSV ledger: a header row plus zero
// or more data rows, append-only.
type Ledger struct {
	header []string
	rows   [][]string
}

// New creates an empty ledger with the 10-column header (baseline schema
// plus the duplicate-score extension).
func New() *Ledger {
	header := make([]string, 0, len(baseHeader)+1)
	header = append(header, baseHeader...)
	header = append(header, scoreHeader)
	return &Ledger{header: header}
}

// Parse reads an externally supplied CSV ledger. Both the 9-column
// baseline and the 10-column variant are accepted; the existing header is
// kept as-is so appends never rewrite prior state. Rows with malformed
// amounts are left untouched (they score 0 for duplicate purposes only).
func Parse(data []byte) (*Ledger, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ledger: parsing csv: %w", err)
	}
	if len(records) == 0 {
		return New(), nil
	}
	return &Ledger{header: records[0], rows: records[1:]}, nil
}

// Len returns the number of data rows.
func (l *Ledger) Len() int { return len(l.rows) }

// Append scores the entry against the current rows, then appends exactly
// one row after all existing rows. Prior rows are never reordered or
// rewritten. Returns the duplicate score attached to the new row.
func (l *Ledger) Append(e Entry) int {
	score := DuplicateScore(l, e)

	row := []string{
		formatDate(e.ServiceDate),
		formatDate(e.PaymentDate),
		e.Provider,
		e.Category,
		e.Description,
		fmt.Sprintf("%.2f", e.Amount),
		e.ReceiptURI,
		"No",
		"",
	}
	if l.column(scoreHeader) >= 0 {
		cell := ""
		if score > 0 {
			cell = strconv.Itoa(score)
		}
		row = append(row, cell)
	}

	l.rows = append(l.rows, row)
	return score
}

// Bytes serializes the ledger back to CSV.
func (l *Ledger) Bytes() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(l.header)
	for _, row := range l.rows {
		_ = w.Write(row)
	}
	w.Flush()
	return buf.Bytes()
}

// column returns the index of the named header column, or -1.
func (l *Ledger) column(name string) int {
	for i, h := range l.header {
		if h == name {
			return i
		}
	}
	return -1
}

// cell returns the row value for the named column, or "" when the column
// is missing or the row is short.
func (l *Ledger) cell(row []string, name string) string {
	idx := l.column(name)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func formatDate(d *civil.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
