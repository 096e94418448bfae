// internal/platform/logx/logx_test.go
package logx

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestFromVerbosity(t *testing.T) {
	tests := []struct {
		name    string
		silent  bool
		verbose int
		want    Level
	}{
		{name: "default", silent: false, verbose: 0, want: LevelInfo},
		{name: "verbose", silent: false, verbose: 1, want: LevelDebug},
		{name: "very verbose", silent: false, verbose: 3, want: LevelDebug},
		{name: "silent", silent: true, verbose: 0, want: LevelError},
		{name: "silent beats verbose", silent: true, verbose: 2, want: LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromVerbosity(tt.silent, tt.verbose); got != tt.want {
				t.Errorf("FromVerbosity(%v, %d) = %v, want %v", tt.silent, tt.verbose, got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"garbage", LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriterTee(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelInfo, &buf)

	l.Info("capture saved", "target", "10.0.0.1:5900")
	l.Debug("should be filtered")

	out := buf.String()
	if !strings.Contains(out, "capture saved") {
		t.Errorf("log file writer missing info line: %q", out)
	}
	if !strings.Contains(out, "target=10.0.0.1:5900") {
		t.Errorf("log file writer missing kv pair: %q", out)
	}
	if strings.Contains(out, "should be filtered") {
		t.Errorf("debug line leaked through info level: %q", out)
	}
}

func TestWithScope(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(LevelWarn, &buf).With("protocol", "vnc")

	l.Warn("session failed")
	l.Err(errors.New("connection refused"))

	out := buf.String()
	if strings.Count(out, "protocol=vnc") != 2 {
		t.Errorf("scoped fields not carried on every line: %q", out)
	}
	if !strings.Contains(out, "error=connection refused") {
		t.Errorf("Err did not prepend error field: %q", out)
	}
}
