package index

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// table reads one CSV file, addressing columns by header name.
type table struct {
	name string
	f    *os.File
	r    *csv.Reader
	cols map[string]int
	line int
	rec  []string
}

func openTable(name, path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Table: name, Err: err}
	}
	r := csv.NewReader(bufio.NewReaderSize(f, 1<<20))
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			err = errors.New("empty file, expected a header row")
		}
		return nil, &ParseError{Table: name, Line: 1, Err: err}
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return &table{name: name, f: f, r: r, cols: cols, line: 1}, nil
}

func (t *table) Close() error { return t.f.Close() }

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

// require fails unless every column is present in the header.
func (t *table) require(cols ...string) error {
	for _, c := range cols {
		if !t.has(c) {
			return &ParseError{Table: t.name, Line: 1, Column: c, Err: errors.New("required column missing")}
		}
	}
	return nil
}

// firstOf returns the first of cols present in the header.
func (t *table) firstOf(cols ...string) (string, error) {
	for _, c := range cols {
		if t.has(c) {
			return c, nil
		}
	}
	return "", &ParseError{
		Table:  t.name,
		Line:   1,
		Column: strings.Join(cols, "|"),
		Err:    errors.New("required column missing"),
	}
}

// next advances to the following row. It returns io.EOF at the end.
func (t *table) next() error {
	rec, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return &ParseError{Table: t.name, Line: pe.Line, Err: pe.Err}
		}
		return &ParseError{Table: t.name, Line: t.line + 1, Err: err}
	}
	t.line++
	t.rec = rec
	return nil
}

func (t *table) str(col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(t.rec) {
		return ""
	}
	return t.rec[i]
}

func (t *table) int(col string) (int64, error) {
	v := t.str(col)
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, t.errorf(col, "invalid integer %q", v)
	}
	return n, nil
}

func (t *table) errorf(col, format string, args ...any) error {
	return &ParseError{Table: t.name, Line: t.line, Column: col, Err: fmt.Errorf(format, args...)}
}
