package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/coldbell/signalpool/internal/config"
)

var levels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

var handlers = map[string]func(io.Writer, *slog.HandlerOptions) slog.Handler{
	"text": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) },
	"json": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) },
}

// sink is where a service's log lines end up.
type sink struct {
	w     io.Writer
	close func() error
}

func noClose() error { return nil }

// New builds the service logger described by cfg. Every line carries service=name. The
// returned func closes the log file, if any.
func New(name string, cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = "text"
	}
	newHandler, ok := handlers[format]
	if !ok {
		return nil, nil, fmt.Errorf("invalid log format %q (expected text|json)", cfg.Format)
	}

	out, err := openSink(name, cfg)
	if err != nil {
		return nil, nil, err
	}
	handler := newHandler(out.w, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", name), out.close, nil
}

func openSink(name string, cfg config.LogConfig) (sink, error) {
	switch output := strings.ToLower(strings.TrimSpace(cfg.Output)); output {
	case "", "console":
		return sink{w: os.Stdout, close: noClose}, nil
	case "stderr":
		return sink{w: os.Stderr, close: noClose}, nil
	case "discard", "none":
		return sink{w: io.Discard, close: noClose}, nil
	case "file", "both":
		file, err := openLogFile(name, cfg.FilePath)
		if err != nil {
			return sink{}, err
		}
		if output == "file" {
			return sink{w: file, close: file.Close}, nil
		}
		return sink{w: io.MultiWriter(os.Stdout, file), close: file.Close}, nil
	default:
		return sink{}, fmt.Errorf("invalid log output %q (expected console|stderr|discard|file|both)", cfg.Output)
	}
}

// openLogFile appends to path, defaulting to .docker/<name>/<name>.log.
func openLogFile(name, path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = filepath.Join(".docker", name, name+".log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %q: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return file, nil
}

func ParseLevel(raw string) (slog.Level, error) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", raw)
	}
	return level, nil
}
