package slogutil

import (
	"io"
	"log/slog"
	"strings"

	"httpd/internal/config"
)

// New builds the server logger from configuration. Records go to console in the
// configured format and, when cfg.File is set, also to a size-rotated file in
// the human format. levelOverride, when non-empty, replaces cfg.Level (CLI flag).
// The returned closer releases the log file and is never nil.
func New(cfg config.LoggingConfig, console io.Writer, levelOverride string) (*slog.Logger, io.Closer, error) {
	levelName := cfg.Level
	if levelOverride != "" {
		levelName = levelOverride
	}
	level := LevelFromString(levelName)
	opts := &slog.HandlerOptions{Level: level}

	var consoleHandler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		consoleHandler = slog.NewJSONHandler(console, opts)
	} else {
		consoleHandler = NewHandler(console, opts)
	}

	if cfg.File == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	// maxSize of 0 disables rotation
	file, err := OpenRotatingFile(cfg.File, ParseSize(cfg.MaxSize), cfg.MaxBackups)
	if err != nil {
		return nil, nil, err
	}

	return slog.New(NewTeeHandler(consoleHandler, NewHandler(file, opts))), file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
