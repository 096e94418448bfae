// internal/adapters/output/report.go
package output

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"html/template"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"ocular/internal/core/domain"
	"ocular/internal/platform/errors"
	"ocular/internal/platform/logx"
)

const thumbnailWidth = 320

// Report agrega los outcomes de un run completo para los escritores de
// informe. El RunID identifica el run en los JSON de integraciones.
type Report struct {
	RunID       string                 `json:"run_id"`
	GeneratedAt time.Time              `json:"generated_at"`
	Duration    string                 `json:"duration"`
	Total       int                    `json:"total"`
	Succeeded   int                    `json:"succeeded"`
	Failed      int                    `json:"failed"`
	Outcomes    []domain.ReportMessage `json:"outcomes"`
}

// NewReport construye el informe a partir de los outcomes acumulados.
func NewReport(messages []domain.ReportMessage, started time.Time) *Report {
	r := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Duration:    time.Since(started).Round(time.Millisecond).String(),
		Total:       len(messages),
		Outcomes:    messages,
	}
	for _, m := range messages {
		if m.OK() {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	return r
}

// WriteJSON persiste el informe como report.json en el directorio dado.
func (r *Report) WriteJSON(dir string) (string, error) {
	path := filepath.Join(dir, "report.json")
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrEncode, err.Error())
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	return path, nil
}

// galleryEntry es una captura con su miniatura embebida.
type galleryEntry struct {
	Target string
	Proto  string
	File   string
	Thumb  template.URL
}

type htmlReport struct {
	Report   *Report
	Gallery  []galleryEntry
	Failures []domain.ReportMessage
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>ocular report {{.Report.RunID}}</title>
<style>
body { font-family: sans-serif; background: #14141c; color: #e8e8e8; margin: 2em; }
h1, h2 { color: #4caf91; }
.card { display: inline-block; margin: 0.5em; padding: 0.5em; background: #1e1e2a; border-radius: 4px; }
.card img { display: block; max-width: 320px; }
.card a { color: #e8e8e8; font-size: 0.85em; text-decoration: none; }
table { border-collapse: collapse; }
td, th { border: 1px solid #333; padding: 0.4em 0.8em; text-align: left; }
</style>
</head>
<body>
<h1>ocular report</h1>
<p>run {{.Report.RunID}} · {{.Report.GeneratedAt.Format "2006-01-02 15:04:05 MST"}} · {{.Report.Duration}}
· {{.Report.Succeeded}}/{{.Report.Total}} captured</p>
<h2>Captures</h2>
{{range .Gallery}}<div class="card">
<img src="{{.Thumb}}" alt="{{.Target}}">
<a href="{{.File}}">[{{.Proto}}] {{.Target}}</a>
</div>
{{else}}<p>No captures.</p>
{{end}}
{{if .Failures}}<h2>Failures</h2>
<table>
<tr><th>Protocol</th><th>Target</th><th>Error</th></tr>
{{range .Failures}}<tr><td>{{.Protocol}}</td><td>{{.Target}}</td><td>{{.Err}}</td></tr>
{{end}}</table>
{{end}}
</body>
</html>
`))

// WriteHTML persiste la galería como report.html. Las miniaturas van
// embebidas como data URIs para que el informe sea un fichero único.
func (r *Report) WriteHTML(dir string, logger logx.Logger) (string, error) {
	if logger == nil {
		logger = logx.New()
	}

	data := htmlReport{Report: r}
	for _, m := range r.Outcomes {
		if !m.OK() {
			data.Failures = append(data.Failures, m)
			continue
		}
		// m.File es relativo a la raíz de salida, igual que report.html.
		thumb, err := thumbnailDataURI(filepath.Join(dir, m.File))
		if err != nil {
			logger.Warn("skipping thumbnail", "file", m.File, "error", err.Error())
			continue
		}
		data.Gallery = append(data.Gallery, galleryEntry{
			Target: m.Target,
			Proto:  string(m.Protocol),
			File:   filepath.ToSlash(m.File),
			Thumb:  template.URL(thumb),
		})
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", errors.Wrap(errors.ErrEncode, err.Error())
	}

	path := filepath.Join(dir, "report.html")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	return path, nil
}

// thumbnailDataURI carga una captura, la reduce y la embebe como data URI.
func thumbnailDataURI(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return "", errors.Wrap(errors.ErrDecode, err.Error())
	}

	if img.Bounds().Dx() > thumbnailWidth {
		img = resize.Resize(thumbnailWidth, 0, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", errors.Wrap(errors.ErrEncode, err.Error())
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
