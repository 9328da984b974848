// Package cutting builds the cutting report from the two workbooks exported by
// the window manufacturing software: the Cut Optimisation, listing the bars of
// each profile and the cuts made from them, and the Assembly List, listing the
// accessories needed per position.
package cutting

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetName is the sheet holding the data in both workbooks.
const SheetName = "Table p. 1"

// Header cell locations.
const (
	titleCell          = "C2"
	dateCell           = "N2"
	projectCell        = "N3"
	personInChargeCell = "R7"
)

var (
	ErrWorkbook      = errors.New("could not read workbook")
	ErrMissingSheet  = errors.New("workbook has no " + SheetName + " sheet")
	ErrWrongFileType = errors.New("wrong file type")
	ErrUnknownKind   = errors.New("unknown workbook kind")
)

// Kind identifies one of the two input workbooks.
type Kind string

const (
	CutOptimisation Kind = "cut_optimisation"
	AssemblyList    Kind = "assembly_list"
)

// marker is the text which identifies a workbook of this kind.
func (k Kind) marker() (string, error) {
	switch k {
	case CutOptimisation:
		return "Cut Optimisation", nil
	case AssemblyList:
		return "Assembly List", nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownKind, string(k))
}

// Cell is a single non-empty cell.
type Cell struct {
	Name  string // for example "B12"
	Col   int
	Row   int
	Value string
}

// Sheet holds the non-empty cells of a worksheet in row-major order.
type Sheet struct {
	Cells  []Cell
	byName map[string]string
}

// Value returns the value of the named cell, or "".
func (s *Sheet) Value(name string) string {
	return s.byName[name]
}

// Contains reports whether any cell contains substr.
func (s *Sheet) Contains(substr string) bool {
	for _, c := range s.Cells {
		if strings.Contains(c.Value, substr) {
			return true
		}
	}
	return false
}

// ReadSheet reads the data sheet of an xlsx workbook.
func ReadSheet(content []byte) (*Sheet, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: no content", ErrWorkbook)
	}
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkbook, err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(SheetName)
	if err != nil || idx < 0 {
		return nil, ErrMissingSheet
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkbook, err)
	}
	return newSheet(rows)
}

// newSheet builds a Sheet from rows of cell values as returned by
// excelize.File.GetRows.
func newSheet(rows [][]string) (*Sheet, error) {
	s := &Sheet{byName: map[string]string{}}
	for r, row := range rows {
		for c, v := range row {
			if v == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrWorkbook, err)
			}
			s.Cells = append(s.Cells, Cell{Name: name, Col: c + 1, Row: r + 1, Value: v})
			s.byName[name] = v
		}
	}
	return s, nil
}

// Header is the project information printed at the top of both workbooks.
type Header struct {
	Kind           Kind   `json:"kind"`
	Title          string `json:"title"`
	Date           string `json:"date"`
	Project        string `json:"project"`
	PersonInCharge string `json:"person_in_charge"`
}

// Inspect checks content is a workbook of the given kind and returns its
// header.
func Inspect(content []byte, kind Kind) (Header, error) {
	s, err := readKind(content, kind)
	if err != nil {
		return Header{}, err
	}
	return Header{
		Kind:           kind,
		Title:          strings.TrimSpace(s.Value(titleCell)),
		Date:           strings.TrimSpace(s.Value(dateCell)),
		Project:        strings.TrimSpace(s.Value(projectCell)),
		PersonInCharge: strings.TrimSpace(s.Value(personInChargeCell)),
	}, nil
}

// readKind reads the data sheet and checks it carries the kind's marker.
func readKind(content []byte, kind Kind) (*Sheet, error) {
	marker, err := kind.marker()
	if err != nil {
		return nil, err
	}
	s, err := ReadSheet(content)
	if err != nil {
		return nil, err
	}
	if !s.Contains(marker) {
		return nil, fmt.Errorf("%w: not a %s workbook", ErrWrongFileType, marker)
	}
	return s, nil
}
