package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"playbookctl/internal/core"
	"playbookctl/internal/state"
)

// FileStatus describes one generated file.
type FileStatus struct {
	Pair              core.TemplatePair
	DestinationExists bool
	TemplateMissing   bool
	Recorded          core.Digest
	HasRecord         bool
	Current           core.Digest
}

// Drifted reports a template that changed since provenance was recorded.
func (f FileStatus) Drifted() bool {
	return f.HasRecord && !f.TemplateMissing && f.Recorded != f.Current
}

// StatusReport is a read-only snapshot of the project.
type StatusReport struct {
	Files        []FileStatus
	Optimization state.OptimizationState
}

// Status inspects every generated file and the optimization state. A missing
// template is reported, not returned as an error.
func (ws *Workspace) Status() (StatusReport, error) {
	var report StatusReport
	hasher := core.NewHasher()
	for _, pair := range ws.Pairs {
		entry := FileStatus{Pair: pair}

		current, err := hasher.Fingerprint(pair.Template)
		switch {
		case err == nil:
			entry.Current = current
		case isNotExist(err):
			entry.TemplateMissing = true
		default:
			return StatusReport{}, err
		}

		entry.Recorded, entry.HasRecord, err = ws.Provenance.Lookup(pair.LogicalName())
		if err != nil {
			return StatusReport{}, err
		}
		entry.DestinationExists, err = exists(pair.Destination)
		if err != nil {
			return StatusReport{}, err
		}
		report.Files = append(report.Files, entry)
	}

	st, err := ws.Optimizer.Status()
	if err != nil {
		return StatusReport{}, err
	}
	report.Optimization = st
	return report, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	driftStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#F4D03F"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16858E"))
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// RenderStatus writes report as a table followed by the optimization state.
func RenderStatus(w io.Writer, report StatusReport) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("FILE", "DESTINATION", "RECORDED", "TEMPLATE", "DRIFT").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(report.Files) && report.Files[row].Drifted():
				return driftStyle
			default:
				return cellStyle
			}
		})

	for _, f := range report.Files {
		dest := "missing"
		if f.DestinationExists {
			dest = "present"
		}
		recorded := "-"
		if f.HasRecord {
			recorded = short(f.Recorded)
		}
		current := "missing"
		if !f.TemplateMissing {
			current = short(f.Current)
		}
		drift := "no"
		if f.Drifted() {
			drift = "yes"
		}
		t.Row(f.Pair.LogicalName(), dest, recorded, current, drift)
	}

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("optimization: " + string(report.Optimization.Status)))
	b.WriteString("\n")
	for _, p := range report.Optimization.Paths {
		fmt.Fprintf(&b, "  %s\n", p)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func short(d core.Digest) string {
	s := d.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, &core.IOError{Op: "stat", Path: path, Err: err}
}
