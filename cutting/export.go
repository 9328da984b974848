package cutting

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Report workbook sheets and their column headings.
const (
	ProfileSheet     = "Profile"
	AccessoriesSheet = "Accesorii"
)

var (
	profileColumns     = []any{"Cod", "Culoare", "Pozitie", "Lungime (mm)"}
	accessoriesColumns = []any{"Cod", "Cant.", "Pozitie"}
)

// Export writes the report as an xlsx workbook.
func Export(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ProfileSheet); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if _, err := f.NewSheet(AccessoriesSheet); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	profiles := [][]any{profileColumns}
	for _, p := range r.Profiles {
		profiles = append(profiles, []any{p.PartNumber, p.Colour, p.Position, p.Length})
	}
	if err := writeRows(f, ProfileSheet, profiles); err != nil {
		return nil, err
	}

	accessories := [][]any{accessoriesColumns}
	for _, a := range r.Accessories {
		accessories = append(accessories, []any{a.PartNumber, a.Qty, a.Position})
	}
	if err := writeRows(f, AccessoriesSheet, accessories); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("export %s: %w", sheet, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename is the name offered for an exported report, such as
// "raport_Casa-Popescu_2025-03-01.xlsx".
func Filename(projectName, projectDate string) string {
	parts := []string{"raport"}
	for _, p := range []string{projectName, projectDate} {
		p = strings.Trim(unsafeFilename.ReplaceAllString(strings.TrimSpace(p), "-"), "-")
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "_") + ".xlsx"
}
