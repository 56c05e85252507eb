// Package logger builds the zerolog logger used across socksgate.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	dirPermMode  = 0o744 // rwxr--r--
	filePermMode = 0o644 // rw-r--r--

	consoleTimeFormat = time.RFC3339
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFunc = utcNow
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// resilientMultiWriter writes to every sink even if one of them fails, so a
// broken console does not silence the log file.
type resilientMultiWriter struct {
	writers []io.Writer
}

func (t resilientMultiWriter) Write(p []byte) (int, error) {
	for _, w := range t.writers {
		_, _ = w.Write(p)
	}
	return len(p), nil
}

// Create returns a logger writing to the sinks in cfg. If a file sink cannot be
// opened the error is returned along with a console-only logger.
func Create(cfg *Config) (*zerolog.Logger, error) {
	if cfg == nil {
		cfg = CreateConfig("", false, "", "")
	}

	var (
		writers []io.Writer
		sinkErr error
	)

	if cfg.ConsoleConfig != nil {
		writers = append(writers, createConsoleWriter(*cfg.ConsoleConfig))
	}

	if cfg.FileConfig != nil {
		w, err := createFileWriter(*cfg.FileConfig)
		if err != nil {
			sinkErr = err
		} else {
			writers = append(writers, w)
		}
	}

	if cfg.RollingConfig != nil {
		w, err := createRollingWriter(*cfg.RollingConfig)
		if err != nil {
			sinkErr = err
		} else {
			writers = append(writers, w)
		}
	}

	level, levelErr := zerolog.ParseLevel(cfg.MinLevel)
	if levelErr != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	log := zerolog.New(resilientMultiWriter{writers}).Level(level).With().Timestamp().Logger()
	if levelErr != nil {
		log.Error().Msgf("Failed to parse log level %q, using %q instead", cfg.MinLevel, level)
	}

	return &log, sinkErr
}

func createConsoleWriter(cfg ConsoleConfig) io.Writer {
	out := os.Stderr
	if cfg.AsJSON {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        colorable.NewColorable(out),
		NoColor:    cfg.NoColor || !term.IsTerminal(int(out.Fd())),
		TimeFormat: consoleTimeFormat,
	}
}

func createFileWriter(cfg FileConfig) (io.Writer, error) {
	if cfg.Dirname != "" {
		if err := os.MkdirAll(cfg.Dirname, dirPermMode); err != nil {
			return nil, fmt.Errorf("unable to create directories for new logfile: %w", err)
		}
	}

	f, err := os.OpenFile(cfg.Fullpath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermMode)
	if err != nil {
		return nil, fmt.Errorf("unable to open logfile: %w", err)
	}
	return f, nil
}

func createRollingWriter(cfg RollingConfig) (io.Writer, error) {
	if err := os.MkdirAll(cfg.Dirname, dirPermMode); err != nil {
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dirname, cfg.Filename),
		MaxBackups: cfg.MaxBackups,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
	}, nil
}
