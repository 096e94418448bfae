// internal/core/domain/outcome.go
package domain

// ReportMessage es el outcome de un target intentado: variante cerrada
// etiquetada por protocolo, con path de salida opcional. Se produce
// exactamente una por target despachado y la consume el reporter en orden
// de llegada.
type ReportMessage struct {
	// Protocol identifica la familia que intentó la captura
	Protocol Mode `json:"protocol"`

	// Target es la forma canónica del destino
	Target string `json:"target"`

	// File es el path relativo de la imagen guardada; vacío en fallo
	File string `json:"file,omitempty"`

	// Err es el diagnóstico en fallo; vacío en éxito
	Err string `json:"error,omitempty"`
}

// NewSuccessMessage builds the outcome for a saved capture.
func NewSuccessMessage(protocol Mode, target Target, relPath string) ReportMessage {
	return ReportMessage{
		Protocol: protocol,
		Target:   target.String(),
		File:     relPath,
	}
}

// NewFailureMessage builds the outcome for a failed capture attempt.
func NewFailureMessage(protocol Mode, target Target, err error) ReportMessage {
	msg := ReportMessage{
		Protocol: protocol,
		Target:   target.String(),
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// OK reports whether the capture produced an image file.
func (m ReportMessage) OK() bool {
	return m.File != ""
}
