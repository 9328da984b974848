package cutting

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/rorycl/cutplan/commands"
)

// InspectArgs are the arguments of inspect_workbook.
type InspectArgs struct {
	Kind    Kind   `json:"kind"`
	Content []byte `json:"content"`
}

// Validate fulfils commands.Validatable.
func (a *InspectArgs) Validate(v *commands.Validator) {
	_, err := a.Kind.marker()
	v.Check(err == nil, "kind", fmt.Sprintf("must be %s or %s", CutOptimisation, AssemblyList))
	v.Check(len(a.Content) > 0, "content", "must be provided")
}

// ReportArgs are the arguments of build_report and export_report.
type ReportArgs struct {
	CutOptimisation []byte `json:"cut_optimisation"`
	AssemblyList    []byte `json:"assembly_list"`
	ProjectName     string `json:"project_name"`
	ProjectDate     string `json:"project_date"`
}

// Validate fulfils commands.Validatable.
func (a *ReportArgs) Validate(v *commands.Validator) {
	v.Check(len(a.CutOptimisation) > 0, "cut_optimisation", "must be provided")
	v.Check(len(a.AssemblyList) > 0, "assembly_list", "must be provided")
}

// ExportResult is returned by export_report.
type ExportResult struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// Build runs the whole pipeline over the two workbooks.
func Build(args ReportArgs) (*Report, error) {
	cutSheet, err := readKind(args.CutOptimisation, CutOptimisation)
	if err != nil {
		return nil, fmt.Errorf("cut optimisation: %w", err)
	}
	assemblySheet, err := readKind(args.AssemblyList, AssemblyList)
	if err != nil {
		return nil, fmt.Errorf("assembly list: %w", err)
	}

	profiles, err := ParseProfiles(CutOptimisationRows(cutSheet))
	if err != nil {
		return nil, err
	}
	positions, err := AssemblyPositions(assemblySheet)
	if err != nil {
		return nil, err
	}

	r, err := BuildReport(NewProcesses(profiles), ExtractAssembly(positions))
	if err != nil {
		return nil, err
	}
	r.ProjectName = args.ProjectName
	r.ProjectDate = args.ProjectDate
	return r, nil
}

// Commands returns the cutting report command definitions.
func Commands(logger *log.Logger) []commands.Definition {
	return []commands.Definition{
		{
			Name:        "inspect_workbook",
			Description: "check a workbook's type and read its project header",
			Handler: commands.Typed(func(ctx context.Context, call commands.Call, args InspectArgs) (any, error) {
				return Inspect(args.Content, args.Kind)
			}),
		},
		{
			Name:        "build_report",
			Description: "build the cutting report from the two workbooks",
			Handler: commands.Typed(func(ctx context.Context, call commands.Call, args ReportArgs) (any, error) {
				r, err := Build(args)
				if err != nil {
					return nil, err
				}
				logger.Info("report built", "project", args.ProjectName, "profiles", len(r.Profiles), "accessories", len(r.Accessories))
				return r, nil
			}),
		},
		{
			Name:        "export_report",
			Description: "build the cutting report as an xlsx workbook",
			Handler: commands.Typed(func(ctx context.Context, call commands.Call, args ReportArgs) (any, error) {
				r, err := Build(args)
				if err != nil {
					return nil, err
				}
				content, err := Export(r)
				if err != nil {
					return nil, err
				}
				name := Filename(args.ProjectName, args.ProjectDate)
				logger.Info("report exported", "file", name, "bytes", len(content))
				return ExportResult{Filename: name, Content: content}, nil
			}),
		},
	}
}
