// internal/core/ports/capturer.go
package ports

import (
	"context"
	"time"

	"ocular/internal/core/domain"
)

// Capturer es el port primario de las sesiones de captura. Cada familia de
// protocolo (web, rdp, vnc) lo implementa y se auto-registra en el registry.
type Capturer interface {
	// Name retorna el nombre único de la familia (ej: "vnc")
	Name() string

	// Mode retorna la familia de protocolo que atiende
	Mode() domain.Mode

	// Capture ejecuta una sesión completa contra el target: conectar,
	// negociar, recibir el frame y persistirlo. Retorna el outcome de
	// éxito, o un error que el dispatcher convierte en outcome de fallo.
	// Nunca debe tocar estado compartido: una sesión posee su conexión,
	// su framebuffer y su pixel format en exclusiva.
	Capture(ctx context.Context, target domain.Target) (domain.ReportMessage, error)

	// Close libera recursos de la familia completa (no de una sesión)
	Close() error
}

// CaptureConfig es la configuración resuelta que reciben las factories.
type CaptureConfig struct {
	// OutputDir raíz de salida; cada familia escribe en <dir>/<familia>/
	OutputDir string

	// ProxyURL proxy SOCKS5 para esta familia ("" = conexión directa)
	ProxyURL string

	// ConnectTimeout tope para abrir la conexión de transporte
	ConnectTimeout time.Duration

	// QuietPeriod inactividad de bitmap antes de finalizar (solo RDP)
	QuietPeriod time.Duration
}

// CapturerFactory crea la instancia de una familia de captura.
type CapturerFactory func(cfg CaptureConfig) (Capturer, error)

// CapturerMetadata describe una familia registrada.
type CapturerMetadata struct {
	Name        string
	Description string
	Mode        domain.Mode
	DefaultPort int // puerto implícito al expandir hosts sin puerto (0 = n/a)
}

// Reporter es el punto de agregación multi-productor de outcomes. Las
// sesiones lo invocan concurrentemente; el orden entre targets distintos
// no está garantizado.
type Reporter interface {
	// Collect entrega un outcome; nunca bloquea indefinidamente ni
	// puede hacer fallar a la sesión que lo llama
	Collect(msg domain.ReportMessage)
}
