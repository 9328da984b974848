package cutting

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrProfileInfo is returned for a profile header row missing its part
// number, piece count, bar length or colour.
var ErrProfileInfo = errors.New("could not extract profile info")

// NoColour is the colour code of profiles without a recognised coating.
const NoColour = "NO_COLOR"

var (
	frtPartNumber     = regexp.MustCompile(`(?m)^FRT\s+(ZZZCONS\d+)`)
	cortizoPartNumber = regexp.MustCompile(`Cortizo (\d+)`)
	piecesPattern     = regexp.MustCompile(`(\d+) Pcs`)
	barLengthPattern  = regexp.MustCompile(`@ ([\d,]+) mm`)
	colourPattern     = regexp.MustCompile(`Colour: (.+)`)
	peCodePattern     = regexp.MustCompile(`PE(\d+)TD`)

	cutRowPattern = regexp.MustCompile(`^(\d+)\s+(\d{1,3}(?:,\d{3})*(?:\.\d+)?)\s+(\d{3})$`)
)

// CutRow is a single cutting instruction: qty pieces of length mm for a
// position.
type CutRow struct {
	Qty      int     `json:"qty"`
	Length   float64 `json:"length"`
	Position string  `json:"position"`
}

// Profile is a profile header row of the Cut Optimisation and the cuts listed
// under it.
type Profile struct {
	PartNumber  string   `json:"part_number"`
	Pcs         int      `json:"pcs"`
	BarLength   float64  `json:"bar_length"`
	TotalLength float64  `json:"total_length"`
	Colour      string   `json:"colour"`
	Cuts        []CutRow `json:"cuts"`
}

// isProfileHeader reports whether a row starts a new profile.
func isProfileHeader(row string) bool {
	return (strings.Contains(row, "Cortizo") && row != "Cortizo") ||
		(strings.Contains(row, "FRT") && row != "FRT")
}

// ParseProfiles reads the profiles from the rows of a Cut Optimisation
// sheet. Rows before the first profile header are ignored.
func ParseProfiles(rows []string) ([]Profile, error) {
	var profiles []Profile
	for i, row := range rows {
		if !isProfileHeader(row) {
			continue
		}
		p, err := parseProfileHeader(row)
		if err != nil {
			return nil, err
		}
		p.Cuts = parseCutRows(rows[i+1:])
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// parseCutRows reads cut rows up to the next profile header.
func parseCutRows(rows []string) []CutRow {
	var cuts []CutRow
	for _, row := range rows {
		if isProfileHeader(row) {
			break
		}
		if c, ok := parseCutRow(row); ok {
			cuts = append(cuts, c)
		}
	}
	return cuts
}

// parseCutRow reads a "qty length position" row. Rows that cut nothing are
// skipped.
func parseCutRow(row string) (CutRow, bool) {
	m := cutRowPattern.FindStringSubmatch(row)
	if m == nil {
		return CutRow{}, false
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil {
		return CutRow{}, false
	}
	length, err := parseNumber(m[2])
	if err != nil {
		return CutRow{}, false
	}
	if qty == 0 || length == 0 {
		return CutRow{}, false
	}
	return CutRow{Qty: qty, Length: length, Position: m[3]}, true
}

func parseProfileHeader(row string) (Profile, error) {
	fail := fmt.Errorf("%w for %s", ErrProfileInfo, row)

	var p Profile
	if m := frtPartNumber.FindStringSubmatch(row); m != nil {
		p.PartNumber = m[1]
	} else if m := cortizoPartNumber.FindStringSubmatch(row); m != nil {
		p.PartNumber = m[1]
	} else {
		return p, fail
	}

	m := piecesPattern.FindStringSubmatch(row)
	if m == nil {
		return p, fail
	}
	pcs, err := strconv.Atoi(m[1])
	if err != nil || pcs == 0 {
		return p, fail
	}

	m = barLengthPattern.FindStringSubmatch(row)
	if m == nil {
		return p, fail
	}
	length, err := parseNumber(m[1])
	if err != nil || length == 0 {
		return p, fail
	}

	m = colourPattern.FindStringSubmatch(row)
	if m == nil {
		return p, fail
	}
	colour := strings.TrimSpace(m[1])
	if colour == "" {
		return p, fail
	}

	p.Pcs = pcs
	p.BarLength = length
	p.TotalLength = float64(pcs) * length
	p.Colour = ColourCode(colour)
	return p, nil
}

// ColourCode maps a colour description to the code used in the report.
func ColourCode(colour string) string {
	switch {
	case strings.HasPrefix(colour, "Special 2 Powder Coating"):
		if m := peCodePattern.FindStringSubmatch(colour); m != nil {
			return "T" + m[1] + "T" + m[1]
		}
	case strings.HasPrefix(colour, "Special 3 Powder Coating"):
		return "Sublimare"
	}
	return NoColour
}
