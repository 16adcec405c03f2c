package logger

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// helper to close non-nil closers and ignore errors
func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func TestWriters_WithProcessDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "procs")
	cfg := Config{ProcessDir: dir}
	outW, errW, err := cfg.Writers("backend")
	if err != nil {
		t.Fatalf("Writers error: %v", err)
	}
	if outW == nil || errW == nil {
		t.Fatalf("expected both writers non-nil when ProcessDir is set")
	}
	_, _ = outW.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	closeIf(outW)
	closeIf(errW)
	outPath := filepath.Join(dir, "backend.stdout.log")
	errPath := filepath.Join(dir, "backend.stderr.log")
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("stdout log not created at %s: %v", outPath, err)
	}
	if _, err := os.Stat(errPath); err != nil {
		t.Fatalf("stderr log not created at %s: %v", errPath, err)
	}
}

func TestWriters_NoDir(t *testing.T) {
	outW, errW, err := Config{}.Writers("n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outW != nil || errW != nil {
		t.Fatalf("expected nil writers when ProcessDir is empty")
	}
}

func TestWriters_Defaults(t *testing.T) {
	cfg := Config{ProcessDir: t.TempDir()}
	outW, errW, _ := cfg.Writers("n")
	defer closeIf(outW)
	defer closeIf(errW)
	ol, ok := outW.(*lj.Logger)
	if !ok {
		t.Fatalf("expected lumberjack writer, got %T", outW)
	}
	if ol.MaxSize != DefaultMaxSizeMB || ol.MaxBackups != DefaultMaxBackups || ol.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("unexpected defaults: %+v", ol)
	}

	cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays, cfg.Compress = 1, 2, 3, true
	outW2, errW2, _ := cfg.Writers("m")
	defer closeIf(outW2)
	defer closeIf(errW2)
	el := errW2.(*lj.Logger)
	if el.MaxSize != 1 || el.MaxBackups != 2 || el.MaxAge != 3 || !el.Compress {
		t.Fatalf("explicit rotation values not applied: %+v", el)
	}
}

func TestNew_ConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "launcher.log")
	lg, closer, err := New(Config{Level: "debug", File: file}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lg.Debug("probe attempt", "attempt", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.Contains(buf.String(), "probe attempt") {
		t.Fatalf("console output missing record: %q", buf.String())
	}
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "attempt=3") {
		t.Fatalf("file output missing record: %q", b)
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	lg, _, err := New(Config{Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lg.Info("ready", "state", "ready")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewColorTextHandler(&buf, nil, false)).With("component", "router")
	lg.Warn("slow upstream")
	lg.Info("ready")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "\033[33mWARN\033[0m msg=\"slow upstream\"") {
		t.Fatalf("expected yellow WARN prefix before the message, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "\033[32mINFO\033[0m msg=ready") {
		t.Fatalf("expected green INFO prefix, got %q", lines[1])
	}
	if strings.Contains(buf.String(), `\x1b`) || strings.Contains(buf.String(), "level=") {
		t.Fatalf("escape codes must not be quoted into attributes: %q", buf.String())
	}
	if strings.Contains(buf.String(), "time=") {
		t.Fatalf("time should be omitted when showTime is false: %q", buf.String())
	}
	if !strings.Contains(lines[0], "component=router") {
		t.Fatalf("attrs lost: %q", lines[0])
	}
}

func TestColorTextHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))
	lg.Info("hidden")
	lg.Error("shown", "code", 502)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.HasPrefix(out, "\033[31mERROR\033[0m time=") || !strings.Contains(out, "code=502") {
		t.Fatalf("unexpected error record %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestForComponent(t *testing.T) {
	cases := map[string]string{
		"/var/log/ceva/launcher.log": "/var/log/ceva/launcher.proxy.log",
		"launcher":                   "launcher.proxy",
		"":                           "",
	}
	for in, want := range cases {
		if got := (Config{File: in}).ForComponent("proxy").File; got != want {
			t.Fatalf("ForComponent(%q)=%q want %q", in, got, want)
		}
	}
}
