// internal/platform/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"ocular/internal/core/domain"
	"ocular/internal/platform/netx"
)

type Config struct {
	// Inputs
	Files     []string `yaml:"files"`
	Targets   []string `yaml:"targets"`
	NmapFiles []string `yaml:"nmap"`

	// Captura
	Mode        string `yaml:"mode"`
	RdpTimeoutS int    `yaml:"rdp-timeout"` // segundos sin bitmap antes de finalizar
	Threads     int    `yaml:"threads"`     // presupuesto por familia de protocolo
	OutputDir   string `yaml:"output"`

	// Proxies SOCKS5. El específico de familia pisa al genérico.
	Proxy    string `yaml:"proxy"`
	WebProxy string `yaml:"web-proxy"`
	RdpProxy string `yaml:"rdp-proxy"`

	// Diagnóstico
	LogFile    string `yaml:"log-file"`
	Silent     bool   `yaml:"silent"`
	Verbose    int    `yaml:"verbose"`
	TestImport bool   `yaml:"test-import"`

	ConfigFile string `yaml:"-"`
	PrintHelp  bool   `yaml:"-"`
}

// DefaultConfig retorna una configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Mode:        string(domain.ModeAuto),
		RdpTimeoutS: 2,
		Threads:     10,
		OutputDir:   "output",
	}
}

// Load inicializa la configuración: defaults -> ENV -> fichero YAML ->
// flags (los flags tienen la última palabra).
func Load(args []string) (Config, error) {
	cfg := DefaultConfig()

	loadFromEnv(&cfg)

	if path := configFileArg(args); path != "" {
		if err := loadFromFile(&cfg, path); err != nil {
			return cfg, err
		}
		cfg.ConfigFile = path
	}

	if err := loadFromFlags(&cfg, args); err != nil {
		return cfg, err
	}

	normalize(&cfg)
	return cfg, validate(&cfg)
}

// loadFromEnv carga configuración desde variables de entorno.
func loadFromEnv(cfg *Config) {
	if v := getenv("OCULAR_MODE", ""); v != "" {
		cfg.Mode = v
	}
	if v := getenv("OCULAR_THREADS", ""); v != "" {
		cfg.Threads = parseInt(v, cfg.Threads)
	}
	if v := getenv("OCULAR_RDP_TIMEOUT", ""); v != "" {
		cfg.RdpTimeoutS = parseInt(v, cfg.RdpTimeoutS)
	}
	if v := getenv("OCULAR_OUTPUT_DIR", ""); v != "" {
		cfg.OutputDir = v
	}
	if v := getenv("OCULAR_PROXY", ""); v != "" {
		cfg.Proxy = v
	}
	if v := getenv("OCULAR_WEB_PROXY", ""); v != "" {
		cfg.WebProxy = v
	}
	if v := getenv("OCULAR_RDP_PROXY", ""); v != "" {
		cfg.RdpProxy = v
	}
	if v := getenv("OCULAR_LOG_FILE", ""); v != "" {
		cfg.LogFile = v
	}
	if v := getenv("OCULAR_SILENT", ""); v != "" {
		cfg.Silent = parseBool(v)
	}
}

// configFileArg extrae el valor de --config antes del parseo completo,
// para que el fichero quede por debajo del resto de flags.
func configFileArg(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(args[i], "--config=") {
			return strings.TrimPrefix(args[i], "--config=")
		}
	}
	return ""
}

// loadFromFile mezcla un fichero YAML sobre la configuración actual.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// loadFromFlags parsea los flags de CLI sobre la configuración actual.
func loadFromFlags(cfg *Config, args []string) error {
	fs := pflag.NewFlagSet("ocular", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.Usage = func() { PrintUsage() }

	fs.StringArrayVarP(&cfg.Files, "file", "f", cfg.Files, "File of targets, one per line (repeatable)")
	fs.StringArrayVarP(&cfg.Targets, "target", "t", cfg.Targets, "Target literal: host, host:port, or URL (repeatable)")
	fs.StringArrayVar(&cfg.NmapFiles, "nmap", cfg.NmapFiles, "Nmap XML results file (repeatable)")

	fs.StringVarP(&cfg.Mode, "mode", "m", cfg.Mode, "Capture mode: auto|web|rdp|vnc")
	fs.IntVar(&cfg.RdpTimeoutS, "rdp-timeout", cfg.RdpTimeoutS, "Seconds without RDP bitmap data before finalizing")
	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "Concurrent sessions per protocol family")
	fs.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "Output directory")

	fs.StringVar(&cfg.Proxy, "proxy", cfg.Proxy, "SOCKS5 proxy for all protocols (socks5://host:port)")
	fs.StringVar(&cfg.WebProxy, "web-proxy", cfg.WebProxy, "SOCKS5 proxy for web captures only")
	fs.StringVar(&cfg.RdpProxy, "rdp-proxy", cfg.RdpProxy, "SOCKS5 proxy for RDP captures only")

	fs.StringVarP(&cfg.LogFile, "log-file", "l", cfg.LogFile, "Also write logs to this file")
	fs.BoolVarP(&cfg.Silent, "silent", "s", cfg.Silent, "Only log errors")
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.TestImport, "test-import", cfg.TestImport, "Parse inputs, print the target list and exit")

	fs.String("config", cfg.ConfigFile, "YAML config file (flags override it)")
	fs.BoolVarP(&cfg.PrintHelp, "help", "h", false, "Show help and exit")

	return fs.Parse(args)
}

func normalize(cfg *Config) {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.RdpTimeoutS < 1 {
		cfg.RdpTimeoutS = 1
	}
	cfg.OutputDir = strings.TrimSpace(cfg.OutputDir)
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
}

func validate(cfg *Config) error {
	if cfg.PrintHelp {
		return nil
	}

	if _, err := domain.ParseMode(cfg.Mode); err != nil {
		return err
	}

	if len(cfg.Files)+len(cfg.Targets)+len(cfg.NmapFiles) == 0 {
		return fmt.Errorf("no targets: provide at least one of --file, --target or --nmap")
	}

	for _, proxy := range []string{cfg.Proxy, cfg.WebProxy, cfg.RdpProxy} {
		if proxy == "" {
			continue
		}
		if err := netx.ValidateProxyURL(proxy); err != nil {
			return err
		}
	}
	return nil
}

// ModeFilter retorna el filtro de modo ya validado.
func (c Config) ModeFilter() domain.Mode {
	mode, err := domain.ParseMode(c.Mode)
	if err != nil {
		return domain.ModeAuto
	}
	return mode
}

// RdpTimeout retorna el quiet period de RDP como duración.
func (c Config) RdpTimeout() time.Duration {
	return time.Duration(c.RdpTimeoutS) * time.Second
}

// ProxyFor resuelve el proxy de una familia: el específico pisa al
// genérico. VNC solo tiene el genérico.
func (c Config) ProxyFor(mode domain.Mode) string {
	switch mode {
	case domain.ModeWeb:
		if c.WebProxy != "" {
			return c.WebProxy
		}
	case domain.ModeRdp:
		if c.RdpProxy != "" {
			return c.RdpProxy
		}
	}
	return c.Proxy
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
