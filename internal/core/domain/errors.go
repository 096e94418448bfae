// internal/core/domain/errors.go
package domain

import "errors"

// Errores de dominio comunes.
var (
	// Target errors
	ErrEmptyTarget   = errors.New("target cannot be empty")
	ErrInvalidTarget = errors.New("invalid target")
	ErrInvalidMode   = errors.New("invalid mode")

	// A web capture needs a URL, the display protocols need an address
	ErrTargetKindMismatch = errors.New("target kind not usable for protocol")
)
