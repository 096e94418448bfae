// internal/core/usecases/dispatcher.go
package usecases

import (
	"context"
	"fmt"
	"sync"

	"ocular/internal/core/domain"
	"ocular/internal/core/ports"
	"ocular/internal/platform/logx"
)

// Dispatcher ejecuta las capturas con un pool acotado por familia de
// protocolo. Los pools (web, rdp, vnc) son independientes y corren en
// paralelo; dentro de cada pool nunca hay más de `threads` sesiones vivas.
type Dispatcher struct {
	threads  int
	logger   logx.Logger
	reporter ports.Reporter
}

// DispatcherOptions configura el dispatcher.
type DispatcherOptions struct {
	Threads  int
	Logger   logx.Logger
	Reporter ports.Reporter
}

// PoolStats acumula la contabilidad de un pool por familia.
type PoolStats struct {
	Dispatched int
	Succeeded  int
	Failed     int
}

// RunStats agrega la contabilidad de todos los pools.
type RunStats struct {
	mu      sync.Mutex
	PerMode map[domain.Mode]*PoolStats
}

func newRunStats() *RunStats {
	return &RunStats{PerMode: make(map[domain.Mode]*PoolStats)}
}

func (s *RunStats) add(mode domain.Mode, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, exists := s.PerMode[mode]
	if !exists {
		ps = &PoolStats{}
		s.PerMode[mode] = ps
	}
	ps.Dispatched++
	if ok {
		ps.Succeeded++
	} else {
		ps.Failed++
	}
}

// Totals returns the aggregate dispatched/succeeded/failed counts.
func (s *RunStats) Totals() (dispatched, succeeded, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ps := range s.PerMode {
		dispatched += ps.Dispatched
		succeeded += ps.Succeeded
		failed += ps.Failed
	}
	return
}

// NewDispatcher crea un dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Threads <= 0 {
		opts.Threads = 10
	}
	if opts.Logger == nil {
		opts.Logger = logx.New()
	}
	return &Dispatcher{
		threads:  opts.Threads,
		logger:   opts.Logger.With("component", "dispatcher"),
		reporter: opts.Reporter,
	}
}

// Run particiona los targets por familia y ejecuta un pool por cada una,
// en paralelo. Retorna cuando todos los pools han drenado sus colas y cada
// sesión despachada ha reportado su señal de completado.
func (d *Dispatcher) Run(ctx context.Context, targets []domain.Target, capturers map[domain.Mode]ports.Capturer) *RunStats {
	stats := newRunStats()

	queues := make(map[domain.Mode][]domain.Target)
	for _, t := range targets {
		if _, ok := capturers[t.Mode()]; !ok {
			d.logger.Debug("no capturer for target, skipping",
				"target", t.String(), "mode", t.Mode().String())
			continue
		}
		queues[t.Mode()] = append(queues[t.Mode()], t)
	}

	var wg sync.WaitGroup
	for mode, queue := range queues {
		wg.Add(1)
		go func(mode domain.Mode, queue []domain.Target) {
			defer wg.Done()
			d.runPool(ctx, mode, capturers[mode], queue, stats)
		}(mode, queue)
	}
	wg.Wait()

	return stats
}

// runPool drena la cola de una familia manteniendo como máximo d.threads
// sesiones activas. Cada sesión envía exactamente una señal de completado,
// con éxito o con fallo; el pool solo termina cuando señales == despachadas.
func (d *Dispatcher) runPool(ctx context.Context, mode domain.Mode, capturer ports.Capturer, queue []domain.Target, stats *RunStats) {
	logger := d.logger.With("pool", mode.String())
	logger.Info("starting capture pool", "targets", len(queue), "threads", d.threads)

	complete := make(chan bool) // payload: éxito de la sesión
	active := 0
	dispatched := 0
	completed := 0

	for len(queue) > 0 || active > 0 {
		// Llenar el pool hasta el presupuesto.
		for active < d.threads && len(queue) > 0 {
			target := queue[0]
			queue = queue[1:]
			active++
			dispatched++
			go d.runSession(ctx, capturer, target, complete)
		}

		// Bloquear hasta la siguiente señal de completado.
		ok := <-complete
		active--
		completed++
		stats.add(mode, ok)
	}

	logger.Info("capture pool drained",
		"dispatched", dispatched, "completed", completed)
}

// runSession ejecuta una sesión y garantiza la señal de completado pase lo
// que pase: un error (o un panic) dentro de una sesión se convierte en un
// warning y un outcome de fallo, nunca puede frenar a las sesiones hermanas.
func (d *Dispatcher) runSession(ctx context.Context, capturer ports.Capturer, target domain.Target, complete chan<- bool) {
	ok := false
	defer func() { complete <- ok }()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn("capture session panicked",
				"protocol", capturer.Name(),
				"target", target.String(),
				"panic", r,
			)
			d.collect(domain.NewFailureMessage(capturer.Mode(), target,
				fmt.Errorf("capture session panicked: %v", r)))
		}
	}()

	msg, err := capturer.Capture(ctx, target)
	if err != nil {
		d.logger.Warn("capture failed",
			"protocol", capturer.Name(),
			"target", target.String(),
			"error", err.Error(),
		)
		d.collect(domain.NewFailureMessage(capturer.Mode(), target, err))
		return
	}

	ok = true
	d.collect(msg)
}

func (d *Dispatcher) collect(msg domain.ReportMessage) {
	if d.reporter == nil {
		return
	}
	d.reporter.Collect(msg)
}
