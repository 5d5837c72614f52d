// Package prettylog is a colorized slog handler for interactive use.
// Production deployments keep the default handler; the CLI installs
// this one unless PRETTY_LOGS=false.
//
// based on https://dusted.codes/creating-a-pretty-console-logger-using-gos-slog-package
package prettylog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

const timeFormat = "15:04:05.000"

const (
	reset = "\033[0m"

	yellow   = 33
	cyan     = 36
	darkGray = 90
	lightRed = 91
	white    = 97
)

func colorize(colorCode int, v string) string {
	return "\033[" + strconv.Itoa(colorCode) + "m" + v + reset
}

type handler struct {
	level  slog.Level
	mu     sync.Mutex
	output io.Writer
}

func NewHandler(level slog.Level) slog.Handler {
	return &handler{
		level:  level,
		output: os.Stderr,
	}
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

// WithAttrs and WithGroup are accepted but not accumulated; per-record
// attrs are enough for a console log.
func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *handler) WithGroup(name string) slog.Handler {
	return h
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	switch r.Level {
	case slog.LevelDebug:
		level = colorize(darkGray, level)
	case slog.LevelInfo:
		level = colorize(cyan, level)
	case slog.LevelWarn:
		level = colorize(yellow, level)
	case slog.LevelError:
		level = colorize(lightRed, level)
	}

	attrs := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = renderValue(a.Value.Any())
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.output, "%s %s %s",
		colorize(darkGray, r.Time.Format(timeFormat)),
		level,
		colorize(white, r.Message),
	)
	if len(attrs) > 0 {
		fmt.Fprintf(h.output, " %s", colorize(darkGray, attrsToString(attrs)))
	}
	fmt.Fprintln(h.output)
	return nil
}

func renderValue(value any) any {
	switch v := value.(type) {
	case nil:
		return "nil"
	case error:
		return v.Error()
	case []byte:
		return fmt.Sprintf("%v", v)
	default:
		return v
	}
}

func attrsToString(attrs map[string]any) string {
	asJSON, err := json.MarshalIndent(attrs, "  ", "  ")
	if err != nil {
		return fmt.Sprintf("%v", attrs)
	}
	return string(asJSON)
}
