// internal/capture/web/web_test.go
package web

import (
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ocular/internal/core/domain"
	"ocular/internal/core/ports"
	"ocular/internal/platform/errors"
	"ocular/internal/platform/registry"
	"ocular/internal/testutil"
)

func newTestCapturer(t *testing.T) *Web {
	t.Helper()
	w, err := New(ports.CaptureConfig{
		OutputDir:      t.TempDir(),
		ConnectTimeout: 2 * time.Second,
	})
	testutil.AssertNoError(t, err)
	return w
}

func urlTarget(t *testing.T, raw string) domain.Target {
	t.Helper()
	u, err := url.Parse(raw)
	testutil.AssertNoError(t, err)
	target, err := domain.NewURLTarget(u)
	testutil.AssertNoError(t, err)
	return target
}

func TestCaptureRendersSummaryCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Server", "nginx/1.24")
		rw.Header().Set("Content-Type", "text/html")
		rw.Write([]byte("<html><head><title>Intranet Portal</title></head><body>hi</body></html>"))
	}))
	defer srv.Close()

	w := newTestCapturer(t)
	msg, err := w.Capture(context.Background(), urlTarget(t, srv.URL))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())
	testutil.AssertEqual(t, domain.ModeWeb, msg.Protocol)

	f, err := os.Open(filepath.Join(w.cfg.OutputDir, msg.File))
	testutil.AssertNoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, cardWidth, img.Bounds().Dx())
	testutil.AssertEqual(t, cardHeight, img.Bounds().Dy())
}

func TestCaptureFollowsRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte("<title>landing</title>"))
	}))
	defer final.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Redirect(rw, r, final.URL, http.StatusFound)
	}))
	defer srv.Close()

	w := newTestCapturer(t)
	result, err := w.probe(context.Background(), srv.URL)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, "landing", result.Title)
	testutil.AssertEqual(t, final.URL, result.FinalURL)
}

func TestCaptureConnectionRefused(t *testing.T) {
	w := newTestCapturer(t)
	_, err := w.Capture(context.Background(), urlTarget(t, "http://127.0.0.1:1/"))
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, errors.IsConnection(err))
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"simple", "<html><head><title>Hello</title></head></html>", "Hello"},
		{"uppercase tag", "<TITLE>Shouty</TITLE>", "Shouty"},
		{"whitespace", "<title>\n  padded  \n</title>", "padded"},
		{"missing", "<html><body>no title</body></html>", ""},
		{"not html", "just plain text", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTitle(strings.NewReader(tt.body))
			testutil.AssertEqual(t, tt.want, got)
		})
	}
}

func TestSummaryLines(t *testing.T) {
	p := probeResult{
		URL:      "http://a.example.com/",
		Status:   "200 OK",
		Server:   "Apache",
		Title:    "Welcome",
		FinalURL: "http://b.example.com/",
	}
	lines := p.summaryLines()
	testutil.AssertEqual(t, 5, len(lines))
	testutil.AssertEqual(t, "http://a.example.com/", lines[0])
	testutil.AssertEqual(t, "Redirected to: http://b.example.com/", lines[4])

	bare := probeResult{URL: "http://c.example.com/", Status: "404 Not Found"}
	testutil.AssertEqual(t, 2, len(bare.summaryLines()))
}

func TestCaptureRegisteredGlobally(t *testing.T) {
	meta, ok := registry.Global().Metadata(domain.ModeWeb)
	testutil.AssertTrue(t, ok)
	testutil.AssertEqual(t, "web", meta.Name)
	testutil.AssertEqual(t, 80, meta.DefaultPort)
}
