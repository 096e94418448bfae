// internal/capture/web/web.go
package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"ocular/internal/adapters/output"
	"ocular/internal/core/domain"
	"ocular/internal/core/ports"
	"ocular/internal/platform/errors"
	"ocular/internal/platform/logx"
	"ocular/internal/platform/netx"
	"ocular/internal/platform/registry"
)

// Auto-registro de la familia al importar el package
func init() {
	if err := registry.Global().Register(
		domain.ModeWeb,
		func(cfg ports.CaptureConfig) (ports.Capturer, error) {
			return New(cfg)
		},
		ports.CapturerMetadata{
			Name:        "web",
			Description: "HTTP(S) probe and summary card capture",
			Mode:        domain.ModeWeb,
			DefaultPort: 80,
		},
	); err != nil {
		logx.New().Warn("failed to register web capturer", "error", err.Error())
	}
}

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
	probeUserAgent = "Mozilla/5.0 (compatible; ocular)"
)

// Web sondea URLs y persiste una tarjeta resumen por target: status, server
// y título de la página. El renderizado de página completa corre en un
// navegador externo; esta familia cubre el inventario visual básico.
type Web struct {
	cfg    ports.CaptureConfig
	client *http.Client
	writer *output.Writer
	logger logx.Logger
}

// probeResult es lo que la tarjeta resume de una respuesta.
type probeResult struct {
	URL      string
	Status   string
	Server   string
	Title    string
	FinalURL string
}

// New crea la familia web con su transporte SOCKS5-aware.
func New(cfg ports.CaptureConfig) (*Web, error) {
	writer, err := output.NewWriter(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	dialer := netx.NewDialer(cfg.ProxyURL, cfg.ConnectTimeout)
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, addr)
		},
		MaxIdleConns:      4,
		DisableKeepAlives: true,
	}

	return &Web{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
		writer: writer,
		logger: logx.New().With("capturer", "web"),
	}, nil
}

func (w *Web) Name() string      { return "web" }
func (w *Web) Mode() domain.Mode { return domain.ModeWeb }

func (w *Web) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// Capture sondea la URL, extrae el resumen y guarda la tarjeta PNG.
func (w *Web) Capture(ctx context.Context, target domain.Target) (domain.ReportMessage, error) {
	logger := w.logger.With("target", target.String())

	result, err := w.probe(ctx, target.URL().String())
	if err != nil {
		return domain.ReportMessage{}, err
	}

	logger.Debug("probed url",
		"status", result.Status,
		"server", result.Server,
		"title", result.Title,
	)

	card := renderCard(result)
	path, err := w.writer.SavePNG(domain.ModeWeb, target, card)
	if err != nil {
		return domain.ReportMessage{}, err
	}

	logger.Info("captured summary card", "file", path)
	return domain.NewSuccessMessage(domain.ModeWeb, target, path), nil
}

// probe ejecuta el GET siguiendo redirecciones y resume la respuesta.
func (w *Web) probe(ctx context.Context, rawURL string) (probeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return probeResult{}, errors.Wrap(errors.ErrInvalidTarget, err.Error())
	}
	req.Header.Set("User-Agent", probeUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return probeResult{}, errors.Wrap(errors.ErrConnection, err.Error())
	}
	defer resp.Body.Close()

	result := probeResult{
		URL:      rawURL,
		Status:   resp.Status,
		Server:   resp.Header.Get("Server"),
		FinalURL: resp.Request.URL.String(),
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") ||
		resp.Header.Get("Content-Type") == "" {
		result.Title = extractTitle(body)
	}
	return result, nil
}

// extractTitle devuelve el contenido del primer <title> del documento.
func extractTitle(body io.Reader) string {
	tokenizer := html.NewTokenizer(body)
	inTitle := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			inTitle = strings.EqualFold(string(name), "title")
		case html.EndTagToken:
			inTitle = false
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(tokenizer.Token().Data)
			}
		}
	}
}

// summaryLines es el contenido textual de la tarjeta, en orden de pintado.
func (p probeResult) summaryLines() []string {
	lines := []string{p.URL, p.Status}
	if p.Server != "" {
		lines = append(lines, fmt.Sprintf("Server: %s", p.Server))
	}
	if p.Title != "" {
		lines = append(lines, fmt.Sprintf("Title: %s", p.Title))
	}
	if p.FinalURL != "" && p.FinalURL != p.URL {
		lines = append(lines, fmt.Sprintf("Redirected to: %s", p.FinalURL))
	}
	return lines
}
