// Package logging builds the server's slog.Logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jmcleod/ironrsa/config"
)

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// New returns a logger writing to stderr, or to a rotated file when
// conf.File is set. The returned closer releases the file.
func New(conf config.Log) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(conf.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if conf.File != "" {
		rotate := &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSize,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAge,
		}
		out, closer = rotate, rotate
	}
	return NewWithWriter(out, conf.Format, level), closer, nil
}

// NewWithWriter returns a JSON or text logger writing to w.
func NewWithWriter(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
