package logger

import "path/filepath"

const (
	defaultLogFilename = "socksgate.log"

	rollingMaxSize    = 1 // megabytes
	rollingMaxBackups = 5 // files
	rollingMaxAge     = 0 // keep forever
)

// Config selects the log sinks. Any combination may be enabled.
type Config struct {
	ConsoleConfig *ConsoleConfig // nil disables console output
	FileConfig    *FileConfig    // nil disables the plain log file
	RollingConfig *RollingConfig // nil disables the rolling log

	MinLevel string // debug | info | warn | error
}

type ConsoleConfig struct {
	NoColor bool
	AsJSON  bool
}

type FileConfig struct {
	Dirname  string
	Filename string
}

func (fc *FileConfig) Fullpath() string {
	return filepath.Join(fc.Dirname, fc.Filename)
}

type RollingConfig struct {
	Dirname  string
	Filename string

	MaxSize    int // megabytes
	MaxBackups int // files
	MaxAge     int // days
}

// CreateConfig builds a Config from command-line style settings. logFile takes
// precedence over logDirectory when both are set.
func CreateConfig(minLevel string, formatJSON bool, logDirectory, logFile string) *Config {
	cfg := &Config{
		ConsoleConfig: &ConsoleConfig{AsJSON: formatJSON},
		MinLevel:      minLevel,
	}
	if cfg.MinLevel == "" {
		cfg.MinLevel = "info"
	}

	switch {
	case logFile != "":
		dir, name := filepath.Split(logFile)
		cfg.FileConfig = &FileConfig{Dirname: dir, Filename: name}
	case logDirectory != "":
		cfg.RollingConfig = &RollingConfig{
			Dirname:    logDirectory,
			Filename:   defaultLogFilename,
			MaxSize:    rollingMaxSize,
			MaxBackups: rollingMaxBackups,
			MaxAge:     rollingMaxAge,
		}
	}

	return cfg
}
