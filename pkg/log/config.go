package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config defines logging configuration.
type Config struct {
	// Level sets the minimum log level
	Level string `json:"level" yaml:"level"`

	// Format sets the output format (json, text)
	Format string `json:"format" yaml:"format"`

	// File, when set, appends a copy of every entry to the given file
	File string `json:"file" yaml:"file"`

	// EnableCaller enables adding caller information to logs
	EnableCaller bool `json:"enable_caller" yaml:"enable_caller"`

	// RedactedFields lists fields that should be redacted (e.g. passwords)
	RedactedFields []string `json:"redacted_fields" yaml:"redacted_fields"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:          "info",
		Format:         "text",
		EnableCaller:   false,
		RedactedFields: DefaultRedactedFields,
	}
}

// ApplyConfig creates a logger from a configuration.
func ApplyConfig(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	// Create options
	options := []LoggerOption{
		WithLevel(level),
	}

	// Add formatter
	switch strings.ToLower(config.Format) {
	case "json":
		options = append(options, WithFormatter(&JSONFormatter{
			EnableCaller: config.EnableCaller,
		}))
	case "text", "":
		options = append(options, WithFormatter(&TextFormatter{
			EnableCaller:   config.EnableCaller,
			ShortTimestamp: false,
		}))
	default:
		return nil, fmt.Errorf("invalid log format: %s", config.Format)
	}

	// Console output always, file output when configured
	options = append(options, WithOutput(NewConsoleOutput(WithErrorToStderr())))
	if config.File != "" {
		filename := os.ExpandEnv(config.File)
		if !filepath.IsAbs(filename) {
			wd, err := os.Getwd()
			if err != nil {
				return nil, err
			}
			filename = filepath.Join(wd, filename)
		}
		options = append(options, WithOutput(NewFileOutput(filename)))
	}

	// Credentials must be masked regardless of configuration
	options = append(options, WithHook(NewRedactionHook(config.RedactedFields)))

	return NewLogger(options...), nil
}

// ParseLevel parses a level string into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
