// internal/platform/registry/capturer_registry.go
package registry

import (
	"fmt"
	"sync"

	"ocular/internal/core/domain"
	"ocular/internal/core/ports"
)

// CapturerRegistry gestiona el registro y construcción de familias de
// captura. Implementa el patrón Registry + Factory para desacoplar la
// creación de capturers del código de aplicación.
type CapturerRegistry struct {
	mu        sync.RWMutex
	factories map[domain.Mode]ports.CapturerFactory
	metadata  map[domain.Mode]ports.CapturerMetadata
}

// globalRegistry es la instancia global del registry.
var globalRegistry *CapturerRegistry
var once sync.Once

// Global retorna la instancia global del registry.
func Global() *CapturerRegistry {
	once.Do(func() {
		globalRegistry = NewCapturerRegistry()
	})
	return globalRegistry
}

// NewCapturerRegistry crea un registry vacío.
func NewCapturerRegistry() *CapturerRegistry {
	return &CapturerRegistry{
		factories: make(map[domain.Mode]ports.CapturerFactory),
		metadata:  make(map[domain.Mode]ports.CapturerMetadata),
	}
}

// Register registra una factory con su metadata. Típicamente llamado desde
// init() de cada package de captura.
func (r *CapturerRegistry) Register(mode domain.Mode, factory ports.CapturerFactory, meta ports.CapturerMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !mode.IsValid() || mode == domain.ModeAuto {
		return fmt.Errorf("cannot register capturer for mode %q", mode)
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil for mode %s", mode)
	}
	if _, exists := r.factories[mode]; exists {
		return fmt.Errorf("capturer for mode %s is already registered", mode)
	}

	r.factories[mode] = factory
	r.metadata[mode] = meta
	return nil
}

// Build construye los capturers de las familias seleccionadas por el
// filtro de modo, cada uno con su configuración resuelta.
func (r *CapturerRegistry) Build(filter domain.Mode, cfgFor func(domain.Mode) ports.CaptureConfig) (map[domain.Mode]ports.Capturer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfgFor == nil {
		return nil, fmt.Errorf("config resolver cannot be nil")
	}

	built := make(map[domain.Mode]ports.Capturer)
	for mode, factory := range r.factories {
		if !mode.Selected(filter) {
			continue
		}
		cap, err := factory(cfgFor(mode))
		if err != nil {
			// Cerrar lo ya construido antes de propagar.
			for _, c := range built {
				_ = c.Close()
			}
			return nil, fmt.Errorf("failed to build %s capturer: %w", mode, err)
		}
		built[mode] = cap
	}

	if len(built) == 0 {
		return nil, fmt.Errorf("no capturers available for mode %s", filter)
	}
	return built, nil
}

// Metadata retorna la metadata de una familia registrada.
func (r *CapturerRegistry) Metadata(mode domain.Mode) (ports.CapturerMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.metadata[mode]
	return meta, ok
}

// DefaultPort retorna el puerto implícito de una familia (0 si no aplica).
func (r *CapturerRegistry) DefaultPort(mode domain.Mode) int {
	if meta, ok := r.Metadata(mode); ok {
		return meta.DefaultPort
	}
	return 0
}
