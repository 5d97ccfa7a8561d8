package logx

import (
	"io"
	"os"

	"github.com/energy-monitor/server/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var DefaultLoggerOpts = &LoggerOpts{
	Environment: core.Development,
}

type LoggerOpts struct {
	Environment core.Environment
	// Level overrides the environment's default level (debug, or info for
	// structured environments).
	Level string
	// Output defaults to stdout for JSON logs and stderr for the console.
	Output io.Writer
}

func safe(otps ...LoggerOpts) *LoggerOpts {
	if len(otps) == 0 {
		return DefaultLoggerOpts
	}
	return &otps[0]
}

func Init(otps ...LoggerOpts) {
	opts := safe(otps...)
	if opts.Environment.StructuredLogs() {
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		log.Logger = zerolog.New(out).With().Timestamp().Logger().
			Level(parseLevel(opts.Level, zerolog.InfoLevel))
		return
	}

	console := zerolog.NewConsoleWriter()
	if opts.Output != nil {
		console.Out = opts.Output
		console.NoColor = true
	}
	log.Logger = zerolog.New(console).With().Timestamp().Caller().Logger().
		Level(parseLevel(opts.Level, zerolog.DebugLevel))
}

func parseLevel(s string, fallback zerolog.Level) zerolog.Level {
	if s == "" {
		return fallback
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return fallback
	}
	return lvl
}

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Panic() *zerolog.Event {
	return log.Panic()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}
