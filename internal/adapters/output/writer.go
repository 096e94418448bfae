// internal/adapters/output/writer.go
package output

import (
	"image"
	"image/png"
	"os"
	"path/filepath"

	"ocular/internal/core/domain"
	"ocular/internal/platform/errors"
)

// Writer persiste los frames capturados como PNG bajo la raíz de salida.
// Cada familia escribe en su propio subdirectorio: <root>/<familia>/.
// El nombre del fichero es determinista (forma canónica del target
// saneada), así que repetir un run sobrescribe la captura anterior.
type Writer struct {
	root string
}

// NewWriter crea el writer y garantiza la raíz de salida.
func NewWriter(root string) (*Writer, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating output root %s", root)
	}
	return &Writer{root: root}, nil
}

// Root retorna la raíz de salida.
func (w *Writer) Root() string { return w.root }

// SavePNG codifica la imagen y la escribe en
// <root>/<familia>/<target-saneado>.png. Retorna la ruta relativa a la
// raíz de salida (<familia>/<target-saneado>.png), que es la forma que
// llevan los outcomes y los informes.
func (w *Writer) SavePNG(mode domain.Mode, target domain.Target, img image.Image) (string, error) {
	dir := filepath.Join(w.root, mode.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating output dir %s", dir)
	}

	rel := filepath.Join(mode.String(), target.Filename()+".png")
	path := filepath.Join(w.root, rel)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", path)
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.Wrap(errors.ErrEncode, err.Error())
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "closing %s", path)
	}
	return rel, nil
}
