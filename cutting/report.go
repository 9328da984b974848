package cutting

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrLengthExceedsProject = errors.New("length is greater than the total project length")
	ErrAccessoryMismatch    = errors.New("accessory quantities and part numbers do not match")
)

// ProfileRow is a line of the profile report: the length of a profile
// needed for a position, wastage included.
type ProfileRow struct {
	PartNumber string `json:"part_number"`
	Colour     string `json:"colour"`
	Position   string `json:"position"`
	Length     string `json:"length"`
}

// Accessory is a line of the accessories report.
type Accessory struct {
	PartNumber string  `json:"part_number"`
	Qty        float64 `json:"qty"`
	Position   string  `json:"position"`
}

// Report is the cutting report of a project.
type Report struct {
	ProjectName string       `json:"project_name"`
	ProjectDate string       `json:"project_date"`
	Profiles    []ProfileRow `json:"profiles"`
	Accessories []Accessory  `json:"accessories"`
	Positions   []string     `json:"positions"`
}

// BuildReport spreads the wastage of each process over its positions in
// proportion to their cut length, and pairs the Assembly List quantities with
// their part numbers.
func BuildReport(processes []*Process, assembly *Assembly) (*Report, error) {
	var projectLength float64
	for _, p := range processes {
		projectLength += p.TotalLength
	}

	r := &Report{Profiles: []ProfileRow{}, Accessories: []Accessory{}, Positions: []string{}}
	seenPositions := map[string]bool{}

	for _, p := range processes {
		done := map[string]bool{}
		for _, c := range p.Cuts {
			if !seenPositions[c.Position] {
				r.Positions = append(r.Positions, c.Position)
				seenPositions[c.Position] = true
			}
			if done[c.Position] {
				continue
			}
			part := p.PositionLength(c.Position)
			if part <= 0 {
				// nothing is cut for the position, so it takes no wastage
				continue
			}
			if part > projectLength {
				return nil, fmt.Errorf("%w: position %s of %s", ErrLengthExceedsProject, c.Position, p.PartNumber)
			}
			percentage := round2(part * 100 / p.CutLength)
			share := round2(percentage / 100 * p.Wastage)
			r.Profiles = append(r.Profiles, ProfileRow{
				PartNumber: p.PartNumber,
				Colour:     p.Colour,
				Position:   c.Position,
				Length:     fmt.Sprintf("%.1f", part+share),
			})
			done[c.Position] = true
		}
	}

	if assembly == nil {
		return r, nil
	}
	for _, pos := range assembly.Positions {
		pq, ok := assembly.PartsQty[pos]
		if !ok {
			continue
		}
		numbers := assembly.PartNumbers[pos]
		if len(numbers) < len(pq.Lines) {
			return nil, fmt.Errorf("%w: position %s has %d quantities and %d part numbers",
				ErrAccessoryMismatch, pos, len(pq.Lines), len(numbers))
		}
		for i, line := range pq.Lines {
			qty, err := parseNumber(strings.Fields(line)[0])
			if err != nil {
				return nil, fmt.Errorf("position %s: %w", pos, err)
			}
			r.Accessories = append(r.Accessories, Accessory{
				PartNumber: numbers[i],
				Qty:        qty,
				Position:   pos,
			})
		}
	}
	return r, nil
}
