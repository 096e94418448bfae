// cmd/ocular/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"ocular/internal/adapters/input"
	"ocular/internal/adapters/output"
	"ocular/internal/core/domain"
	"ocular/internal/core/ports"
	"ocular/internal/core/usecases"
	"ocular/internal/platform/config"
	"ocular/internal/platform/logx"
	"ocular/internal/platform/netx"
	"ocular/internal/platform/registry"
	"ocular/internal/platform/ui"

	// Familias de captura: se auto-registran al importar.
	_ "ocular/internal/capture/rdp"
	_ "ocular/internal/capture/vnc"
	_ "ocular/internal/capture/web"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "ocular: %v\n", err)
		fmt.Fprintln(os.Stderr, "run 'ocular --help' for usage")
		return 2
	}
	if cfg.PrintHelp {
		config.PrintUsage()
		return 0
	}

	logger, cleanup, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ocular: %v\n", err)
		return 1
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	targets, err := expandTargets(cfg, logger)
	if err != nil {
		logger.Err(err)
		return 2
	}
	if len(targets) == 0 {
		logger.Warn("inputs expanded to zero targets, nothing to do")
		return 2
	}

	if cfg.TestImport {
		for _, t := range targets {
			fmt.Printf("%s\t%s\n", t.Mode(), t.String())
		}
		return 0
	}

	capturers, err := registry.Global().Build(cfg.ModeFilter(), func(mode domain.Mode) ports.CaptureConfig {
		return ports.CaptureConfig{
			OutputDir:      cfg.OutputDir,
			ProxyURL:       cfg.ProxyFor(mode),
			ConnectTimeout: netx.DefaultConnectTimeout,
			QuietPeriod:    cfg.RdpTimeout(),
		}
	})
	if err != nil {
		logger.Err(err)
		return 1
	}
	defer func() {
		for _, c := range capturers {
			if err := c.Close(); err != nil {
				logger.Warn("closing capturer", "capturer", c.Name(), "error", err.Error())
			}
		}
	}()

	presenter := ui.New(cfg.Silent)
	presenter.Banner(cfg.Mode, len(targets), cfg.Threads, cfg.OutputDir)

	started := time.Now()
	reporter := usecases.NewReporter(logger)
	dispatcher := usecases.NewDispatcher(usecases.DispatcherOptions{
		Threads:  cfg.Threads,
		Logger:   logger,
		Reporter: reporter,
	})

	stats := dispatcher.Run(ctx, targets, capturers)
	messages := reporter.Close()

	report := output.NewReport(messages, started)
	jsonPath, err := report.WriteJSON(cfg.OutputDir)
	if err != nil {
		logger.Warn("could not write json report", "error", err.Error())
	}
	htmlPath, err := report.WriteHTML(cfg.OutputDir, logger)
	if err != nil {
		logger.Warn("could not write html report", "error", err.Error())
	}

	presenter.Summary(buildSummary(stats, report, started, cfg.OutputDir, htmlPath, jsonPath))

	if ctx.Err() != nil {
		logger.Warn("run interrupted")
		return 1
	}
	return 0
}

// buildLogger resuelve nivel y destino de los logs. El cleanup cierra el
// fichero de log si lo hay.
func buildLogger(cfg config.Config) (logx.Logger, func(), error) {
	level := logx.FromVerbosity(cfg.Silent, cfg.Verbose)

	if cfg.LogFile == "" {
		return logx.NewWithLevel(level), func() {}, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.LogFile, err)
	}
	return logx.NewWithWriter(level, f), func() { f.Close() }, nil
}

// expandTargets convierte todas las entradas configuradas en la lista
// deduplicada de targets a despachar.
func expandTargets(cfg config.Config, logger logx.Logger) ([]domain.Target, error) {
	parser := input.NewParser(cfg.ModeFilter(), registry.Global().DefaultPort, logger)

	var all []domain.Target
	for _, raw := range cfg.Targets {
		targets, err := parser.ParseLiteral(raw)
		if err != nil {
			return nil, err
		}
		all = append(all, targets...)
	}
	for _, path := range cfg.Files {
		targets, err := parser.ParseFile(path)
		if err != nil {
			return nil, err
		}
		all = append(all, targets...)
	}
	for _, path := range cfg.NmapFiles {
		targets, err := parser.ParseNmapXML(path)
		if err != nil {
			return nil, err
		}
		all = append(all, targets...)
	}

	deduped := input.Dedupe(all)
	logger.Info("targets expanded", "raw", len(all), "unique", len(deduped))
	return deduped, nil
}

func buildSummary(stats *usecases.RunStats, report *output.Report, started time.Time, outputDir, htmlPath, jsonPath string) ui.RunSummary {
	summary := ui.RunSummary{
		Duration:   time.Since(started),
		Total:      report.Total,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		OutputDir:  outputDir,
		ReportHTML: htmlPath,
		ReportJSON: jsonPath,
	}
	for _, mode := range domain.CaptureModes() {
		ps, ok := stats.PerMode[mode]
		if !ok {
			continue
		}
		summary.Families = append(summary.Families, ui.FamilyStats{
			Name:       mode.String(),
			Dispatched: ps.Dispatched,
			Succeeded:  ps.Succeeded,
			Failed:     ps.Failed,
		})
	}
	return summary
}
