package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes where the launcher writes its own log and where the
// output of spawned processes goes.
// If File is empty the launcher logs only to the console writer.
// If ProcessDir is set, spawned process output is written to
// ProcessDir/<name>.stdout.log and ProcessDir/<name>.stderr.log.
// Rotation parameters follow lumberjack semantics.
type Config struct {
	Level      string `mapstructure:"level"`        // debug, info, warn, error (default info)
	Format     string `mapstructure:"format"`       // text or json (default text)
	NoColor    bool   `mapstructure:"no_color"`     // disable ANSI level colors in text format
	File       string `mapstructure:"file"`         // launcher log file (optional)
	ProcessDir string `mapstructure:"process_dir"`  // base directory for spawned process output
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // megabytes before rotation (default 10)
	MaxBackups int    `mapstructure:"max_backups"`  // number of backups to keep (default 3)
	MaxAgeDays int    `mapstructure:"max_age_days"` // days to keep (default 7)
	Compress   bool   `mapstructure:"compress"`     // Gzip rotated files
}

// Writers returns io.WriteClosers for stdout and stderr of a spawned process.
// Both are nil when ProcessDir is empty.
func (c Config) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	if c.ProcessDir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(c.ProcessDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create process log dir: %w", err)
	}
	outW := c.rotating(filepath.Join(c.ProcessDir, fmt.Sprintf("%s.stdout.log", name)))
	errW := c.rotating(filepath.Join(c.ProcessDir, fmt.Sprintf("%s.stderr.log", name)))
	return outW, errW, nil
}

func (c Config) rotating(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// ForComponent returns c with File renamed for a separate process sharing
// the same configuration, e.g. "launcher.log" -> "launcher.proxy.log".
// lumberjack rotation is not safe across processes writing one file.
func (c Config) ForComponent(name string) Config {
	if c.File == "" || name == "" {
		return c
	}
	ext := filepath.Ext(c.File)
	c.File = strings.TrimSuffix(c.File, ext) + "." + name + ext
	return c
}

// New builds the launcher logger. Records go to console and, when File is
// set, to a rotated log file as well. The returned closer releases the file.
func New(c Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Level)}

	var closer io.Closer = nopCloser{}
	w := console
	if w == nil {
		w = io.Discard
	}
	if c.File != "" {
		if dir := filepath.Dir(c.File); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		fw := c.rotating(c.File)
		closer = fw
		w = io.MultiWriter(w, fw)
	}

	var h slog.Handler
	switch strings.ToLower(c.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		if c.NoColor || c.File != "" {
			h = slog.NewTextHandler(w, opts)
		} else {
			h = NewColorTextHandler(w, opts, true)
		}
	}
	return slog.New(h), closer, nil
}

// ParseLevel maps a level name to slog.Level; unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
