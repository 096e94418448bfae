// internal/platform/ui/presenter.go
package ui

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
)

// FamilyStats es la contabilidad final de una familia de protocolo.
type FamilyStats struct {
	Name       string
	Dispatched int
	Succeeded  int
	Failed     int
}

// RunSummary es lo que el presenter pinta al terminar el run.
type RunSummary struct {
	Duration   time.Duration
	Families   []FamilyStats
	Total      int
	Succeeded  int
	Failed     int
	OutputDir  string
	ReportHTML string
	ReportJSON string
}

// Presenter pinta el banner inicial y el resumen final. En modo quiet no
// emite nada: los resultados quedan en los informes y en los logs.
type Presenter struct {
	quiet bool
}

// New crea el presenter.
func New(quiet bool) *Presenter {
	return &Presenter{quiet: quiet}
}

// Banner presenta la configuración del run.
func (p *Presenter) Banner(mode string, targets, threads int, outputDir string) {
	if p.quiet {
		return
	}

	pterm.DefaultHeader.
		WithBackgroundStyle(pterm.NewStyle(pterm.BgCyan)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack)).
		Println("ocular · visual reconnaissance")

	pterm.Printf("%s mode · %s targets · %s sessions per protocol · output %s\n\n",
		pterm.Yellow(mode),
		pterm.Cyan(fmt.Sprintf("%d", targets)),
		pterm.Cyan(fmt.Sprintf("%d", threads)),
		pterm.Gray(outputDir),
	)
}

// Warning muestra una advertencia.
func (p *Presenter) Warning(msg string) {
	if p.quiet {
		return
	}
	pterm.Warning.Println(msg)
}

// Summary presenta la contabilidad final del run.
func (p *Presenter) Summary(s RunSummary) {
	if p.quiet {
		return
	}

	pterm.DefaultSection.Println("Capture Summary")

	rows := pterm.TableData{{"Protocol", "Dispatched", "Captured", "Failed"}}
	for _, f := range s.Families {
		rows = append(rows, []string{
			f.Name,
			fmt.Sprintf("%d", f.Dispatched),
			pterm.Green(fmt.Sprintf("%d", f.Succeeded)),
			pterm.Red(fmt.Sprintf("%d", f.Failed)),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		pterm.Printf("captured %d/%d targets\n", s.Succeeded, s.Total)
	}

	pterm.Println()
	pterm.Info.Printf("captured %d/%d targets in %s\n",
		s.Succeeded, s.Total, s.Duration.Round(time.Millisecond))
	if s.ReportHTML != "" {
		pterm.Info.Printf("report: %s\n", s.ReportHTML)
	}
}
