package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Unknown levels fall back to info.
func Setup(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", "yanbot").Logger()
}

// JobLogger scopes log lines to a single job so retries and rewrites for the
// same callback can be grepped together.
type JobLogger struct {
	logger zerolog.Logger
}

// ForJob returns a logger tagged with the job id and the component doing the work.
func ForJob(jobID, component string) *JobLogger {
	return &JobLogger{
		logger: log.With().Str("job_id", jobID).Str("component", component).Logger(),
	}
}

// Log writes a formatted debug line.
func (l *JobLogger) Log(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

// Warn writes a formatted warning line.
func (l *JobLogger) Warn(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.logger.Warn().Msg(fmt.Sprintf(format, args...))
}
