package cutting

// Process is the cutting of one profile's bars: the total bar length, the
// length cut from it and the remaining wastage.
type Process struct {
	Profile
	CutLength   float64 // sum of qty x length over the cuts
	Wastage     float64
	perPosition map[string]float64
}

// NewProcess cuts the bars of p.
func NewProcess(p Profile) *Process {
	proc := &Process{
		Profile:     p,
		perPosition: map[string]float64{},
	}
	for _, c := range p.Cuts {
		l := float64(c.Qty) * c.Length
		proc.CutLength += l
		proc.perPosition[c.Position] += l
	}
	proc.Wastage = p.TotalLength - proc.CutLength
	return proc
}

// NewProcesses cuts each profile in turn.
func NewProcesses(profiles []Profile) []*Process {
	processes := make([]*Process, len(profiles))
	for i, p := range profiles {
		processes[i] = NewProcess(p)
	}
	return processes
}

// PositionLength is the total length cut for a position.
func (p *Process) PositionLength(position string) float64 {
	return p.perPosition[position]
}
