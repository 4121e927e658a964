// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Options struct {
	Level  string // debug, info, warn or error; empty means info
	Format string // "console" (default) or "json"
	Out    io.Writer
	ErrOut io.Writer // error and above; defaults to stderr
}

// New returns a logger that writes debug through warn to Out and error
// and above to ErrOut.
func New(opts Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out, errOut := opts.Out, opts.ErrOut
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	switch opts.Format {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		errOut = zerolog.ConsoleWriter{Out: errOut, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", opts.Format)
	}

	writer := zerolog.MultiLevelWriter(
		levelWriter{Writer: out, min: zerolog.TraceLevel, max: zerolog.WarnLevel},
		levelWriter{Writer: errOut, min: zerolog.ErrorLevel, max: zerolog.PanicLevel},
	)
	return zerolog.New(writer).Level(level).With().Timestamp().Logger(), nil
}

// ParseLevel accepts the level names used in the config file.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// levelWriter passes through only events within [min, max].
type levelWriter struct {
	io.Writer
	min, max zerolog.Level
}

func (w levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < w.min || level > w.max {
		return len(p), nil
	}
	return w.Write(p)
}
