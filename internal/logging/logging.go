// Package logging builds the process-wide slog.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls the logger. File, when set, receives a copy of every
// record and is rotated by size.
type Options struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "text" or "json"
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to out (stdout when nil) and, if opts.File is
// set, to a rotating file. Close the returned Closer on shutdown.
func New(opts Options, out io.Writer) (*slog.Logger, io.Closer, error) {
	if out == nil {
		out = os.Stdout
	}

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	w := out
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(out, rotating)
		closer = rotating
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, handlerOpts)
	case "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	return slog.New(h), closer, nil
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging: %w", err)
	}
	return level, nil
}
