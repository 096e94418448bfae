// internal/platform/config/help.go
package config

import (
	"fmt"
	"os"
	"runtime"
)

const helpText = `
ocular - Visual Reconnaissance Capture

USAGE:
  ocular [options]

IMPORTANT:
  Use double dash (--) for long flag names: --target, --mode, --threads
  Use single dash (-) for short flags: -t, -m, -o

  WRONG:  ocular -target 10.0.0.1
  RIGHT:  ocular --target 10.0.0.1
  RIGHT:  ocular -t 10.0.0.1

INPUT OPTIONS (at least one required):
  -f, --file string        File of targets, one per line (repeatable)
  -t, --target string      Target literal (repeatable). Accepts host,
                           host:port, vnc://host, rdp://host:port and URLs.
                           A bare host fans out to every selected protocol.
      --nmap string        Nmap XML results file (repeatable)

CAPTURE OPTIONS:
  -m, --mode string        Capture mode: auto|web|rdp|vnc (default "auto")
      --threads int        Concurrent sessions per protocol family (default 10)
      --rdp-timeout int    Seconds without RDP bitmap data before finalizing
                           the capture with what arrived (default 2)
  -o, --output string      Output directory (default "output")

NETWORK OPTIONS:
      --proxy string       SOCKS5 proxy for all protocols (socks5://host:port)
      --web-proxy string   SOCKS5 proxy for web captures (overrides --proxy)
      --rdp-proxy string   SOCKS5 proxy for RDP captures (overrides --proxy)

DIAGNOSTIC OPTIONS:
  -l, --log-file string    Also write logs to this file
  -s, --silent             Only log errors
  -v, --verbose            Increase verbosity (repeatable)
      --test-import        Parse inputs, print the target list and exit
      --config string      YAML config file (flags override it)
  -h, --help               Show this help message

EXAMPLES:
  Single VNC host:         ocular -m vnc -t 10.0.0.1
  Everything from nmap:    ocular --nmap scan.xml -o recon_out
  Web through SOCKS5:      ocular -m web -f urls.txt --proxy socks5://127.0.0.1:9050
  Target list, more noise: ocular -f hosts.txt -vv

OUTPUT:
  <output>/web/   summary cards for HTTP(S) targets
  <output>/rdp/   RDP framebuffer captures
  <output>/vnc/   VNC framebuffer captures
  report.html and report.json at the output root.

ENVIRONMENT:
  OCULAR_MODE, OCULAR_THREADS, OCULAR_RDP_TIMEOUT, OCULAR_OUTPUT_DIR,
  OCULAR_PROXY, OCULAR_WEB_PROXY, OCULAR_RDP_PROXY, OCULAR_LOG_FILE,
  OCULAR_SILENT, OCULAR_LOG_LEVEL
`

// PrintUsage imprime la ayuda completa.
func PrintUsage() {
	fmt.Fprint(os.Stderr, helpText)
	fmt.Fprintf(os.Stderr, "\nocular %s/%s (%s)\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
}
