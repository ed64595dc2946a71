package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Options struct {
	Level   string
	Format  string
	NoColor bool

	// Output defaults to stderr so stdout stays usable for command output.
	Output io.Writer
}

// InitDefault installs a console logger at info level. It is used until the
// flags and config have been parsed.
func InitDefault() {
	_ = Init(Options{})
}

// Init configures the global zerolog logger.
func Init(opts Options) error {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	switch opts.Format {
	case "", FormatConsole:
		log.Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    opts.NoColor,
			TimeFormat: time.TimeOnly,
		}).With().Timestamp().Logger()
	case FormatJSON:
		zerolog.TimeFieldFormat = time.RFC3339Nano
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format %q (expected %q or %q)", opts.Format, FormatConsole, FormatJSON)
	}
	return nil
}
