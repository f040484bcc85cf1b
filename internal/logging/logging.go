package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/swdee/go-mcmot/internal/config"
)

// NewLogger creates a zerolog logger from the log configuration.  Output
// defaults to os.Stderr when w is nil.
func NewLogger(cfg config.LogConfig, w io.Writer) (zerolog.Logger, error) {

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))

	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	if w == nil {
		w = os.Stderr
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		// write as is
	case "console", "text":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
