package cutting

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoPosition is returned for an Assembly List without a position header.
var ErrNoPosition = errors.New("no position found in assembly list")

// cutColumns are the Cut Optimisation columns holding data.
var cutColumns = []byte{'B', 'D', 'J', 'R'}

// CutOptimisationRows groups the data cells of a Cut Optimisation sheet by row,
// in ascending row order, joining the values of each row with a space.
func CutOptimisationRows(s *Sheet) []string {
	grouped := map[int][]string{}
	for _, c := range s.Cells {
		colName, err := excelize.ColumnNumberToName(c.Col)
		if err != nil || !isCutColumn(colName) {
			continue
		}
		grouped[c.Row] = append(grouped[c.Row], c.Value)
	}

	rowNumbers := make([]int, 0, len(grouped))
	for r := range grouped {
		rowNumbers = append(rowNumbers, r)
	}
	sort.Ints(rowNumbers)

	rows := make([]string, len(rowNumbers))
	for i, r := range rowNumbers {
		rows[i] = strings.Join(grouped[r], " ")
	}
	return rows
}

func isCutColumn(colName string) bool {
	last := colName[len(colName)-1]
	for _, c := range cutColumns {
		if last == c {
			return true
		}
	}
	return false
}

// ------------------------------------------------------------------------------
// Assembly List
// ------------------------------------------------------------------------------

var (
	positionHeader = regexp.MustCompile(`^Position: \d{3}$`)

	quantityHeader = regexp.MustCompile(`Quantity:\s*([\d,]+(?:\.\d+)?)\s*Pcs`)
	positionQty    = regexp.MustCompile(`Quantity:\s*(\d+)`)

	numberPattern  = regexp.MustCompile(`^(?:[1-9]\d{0,2}(?:,\d{3})*|\d{1,2})(\.\d+)?$`)
	multiplication = regexp.MustCompile(`\d{1,3}(,\d{3})*\*\d{1,3}`)
	unitPattern    = regexp.MustCompile(`pc|mm|cm|m`)

	partNumberPattern = regexp.MustCompile(`^\d{6}$|^[A-Za-z]{7}\d{4}$|[zZ]\d{3}`)
)

// blankCell ends a list of quantities or part numbers.
const blankCell = " "

// Position is the block of Assembly List cells following a position header.
type Position struct {
	Name  string // "001" for "Position: 001"
	Cells []Cell
}

// PartsQty holds the accessory quantity lines of a position, such as
// "4 (8) pc", and the position quantity in force when they were read.
type PartsQty struct {
	Lines    []string `json:"lines"`
	Quantity float64  `json:"quantity"`
}

// Assembly is the data extracted from an Assembly List.
type Assembly struct {
	Positions   []string            `json:"positions"`
	PartsQty    map[string]PartsQty `json:"parts_qty"`
	PartNumbers map[string][]string `json:"part_numbers"`
	PositionQty map[string]int      `json:"position_qty"`
}

// AssemblyPositions splits the sheet into positions. Cells before the first
// position header are ignored.
func AssemblyPositions(s *Sheet) ([]Position, error) {
	var positions []Position
	for _, c := range s.Cells {
		if positionHeader.MatchString(c.Value) {
			name := strings.TrimSpace(strings.TrimPrefix(c.Value, "Position:"))
			positions = append(positions, Position{Name: name})
			continue
		}
		if len(positions) == 0 {
			continue
		}
		p := &positions[len(positions)-1]
		p.Cells = append(p.Cells, c)
	}
	if len(positions) == 0 {
		return nil, ErrNoPosition
	}
	return positions, nil
}

// ExtractAssembly reads the parts quantities, part numbers and position
// quantities of each position.
func ExtractAssembly(positions []Position) *Assembly {
	a := &Assembly{
		PartsQty:    map[string]PartsQty{},
		PartNumbers: map[string][]string{},
		PositionQty: map[string]int{},
	}
	seen := map[string]bool{}
	for _, p := range positions {
		if !seen[p.Name] {
			a.Positions = append(a.Positions, p.Name)
			seen[p.Name] = true
		}
	}

	// The quantity state carries across positions, as the list of a position
	// may continue after a page break.
	var (
		inQuantities bool
		quantity     float64
	)
	for _, p := range positions {
		for _, c := range p.Cells {
			switch {
			case strings.Contains(c.Value, "Quantity"):
				inQuantities = true
				if m := quantityHeader.FindStringSubmatch(c.Value); m != nil {
					if q, err := parseNumber(m[1]); err == nil && q > 0 {
						quantity = q
					}
				}
			case inQuantities && c.Value == blankCell:
				inQuantities = false
			case inQuantities && isQuantityLine(c.Value):
				pq := a.PartsQty[p.Name]
				pq.Lines = append(pq.Lines, c.Value)
				pq.Quantity = quantity
				a.PartsQty[p.Name] = pq
			}
		}
	}

	var inNumbers bool
	for _, p := range positions {
		for _, c := range p.Cells {
			switch {
			case c.Value == "Number":
				inNumbers = true
			case inNumbers && c.Value == blankCell:
				inNumbers = false
			case inNumbers && partNumberPattern.MatchString(c.Value):
				a.PartNumbers[p.Name] = append(a.PartNumbers[p.Name], c.Value)
			}
		}
	}

	for _, p := range positions {
		for _, c := range p.Cells {
			if !strings.Contains(c.Value, "Quantity") {
				continue
			}
			m := positionQty.FindStringSubmatch(c.Value)
			if m == nil {
				continue
			}
			if q, err := strconv.Atoi(m[1]); err == nil && q > 0 {
				a.PositionQty[p.Name] = q
			}
		}
	}
	return a
}

// isQuantityLine reports whether v is a "qty total unit" line, where total
// may be parenthesised and may be a multiplication such as "1,200*2".
func isQuantityLine(v string) bool {
	fields := strings.Split(v, " ")
	if len(fields) < 3 {
		return false
	}
	qty, total, unit := fields[0], fields[1], fields[2]
	if qty == "" || total == "" || unit == "" {
		return false
	}
	total = strings.NewReplacer("(", "", ")", "").Replace(total)
	return numberPattern.MatchString(qty) &&
		(numberPattern.MatchString(total) || multiplication.MatchString(total)) &&
		unitPattern.MatchString(unit)
}

// parseNumber parses numbers such as "1,250.5".
func parseNumber(s string) (float64, error) {
	n, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return n, nil
}
