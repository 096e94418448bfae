// internal/core/usecases/reporter.go
package usecases

import (
	"sync"

	"ocular/internal/core/domain"
	"ocular/internal/platform/logx"
)

// Reporter acumula los outcomes de todas las sesiones. Muchos productores,
// un solo consumidor: el orden de llegada es el orden del informe, no hay
// orden garantizado entre sesiones concurrentes.
type Reporter struct {
	ch     chan domain.ReportMessage
	done   chan struct{}
	logger logx.Logger

	mu     sync.Mutex
	closed bool

	// messages lo escribe solo el consumidor; se lee tras <-done.
	messages []domain.ReportMessage
}

// NewReporter crea el reporter y arranca su consumidor.
func NewReporter(logger logx.Logger) *Reporter {
	if logger == nil {
		logger = logx.New()
	}
	r := &Reporter{
		ch:     make(chan domain.ReportMessage, 64),
		done:   make(chan struct{}),
		logger: logger.With("component", "reporter"),
	}
	go r.consume()
	return r
}

func (r *Reporter) consume() {
	defer close(r.done)
	for msg := range r.ch {
		r.messages = append(r.messages, msg)
	}
}

// Collect registra un outcome. Tras Close los mensajes se descartan con un
// warning: perder un mensaje del informe nunca tira la sesión que lo envió.
func (r *Reporter) Collect(msg domain.ReportMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("report message dropped, reporter already closed",
			"target", msg.Target)
		return
	}
	r.ch <- msg
}

// Close cierra la entrada, espera a que el consumidor drene y devuelve los
// outcomes acumulados.
func (r *Reporter) Close() []domain.ReportMessage {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	<-r.done
	out := make([]domain.ReportMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// Successes devuelve solo los outcomes con fichero.
func Successes(messages []domain.ReportMessage) []domain.ReportMessage {
	var out []domain.ReportMessage
	for _, m := range messages {
		if m.OK() {
			out = append(out, m)
		}
	}
	return out
}

// Failures devuelve solo los outcomes fallidos.
func Failures(messages []domain.ReportMessage) []domain.ReportMessage {
	var out []domain.ReportMessage
	for _, m := range messages {
		if !m.OK() {
			out = append(out, m)
		}
	}
	return out
}
