// Package logger builds the slog loggers and HTTP logging middleware used by every service
package logger

import (
	"io"
	"log/slog"
	"os"
)

// BritishTimeFormat is the timestamp layout of every log line
const BritishTimeFormat = "02.01.2006 15:04:05"

// Config is the logging part of each service config.
// LogHumanFriendly switches from JSON to text output; Output defaults to stdout.
type Config struct {
	LogLevel         string
	LogHumanFriendly bool
	Service          string
	Output           io.Writer
}

// ParseLevel reads "debug", "info", "warn" or "error" in any case; anything else is info
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if lvl.UnmarshalText([]byte(level)) != nil {
		return slog.LevelInfo
	}
	return lvl
}

func NewFromConfig(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       ParseLevel(cfg.LogLevel),
		ReplaceAttr: britishTime,
	}

	handler := slog.Handler(slog.NewJSONHandler(out, opts))
	if cfg.LogHumanFriendly {
		handler = slog.NewTextHandler(out, opts)
	}

	log := slog.New(handler)
	if cfg.Service == "" {
		return log
	}
	return log.With(slog.String("service", cfg.Service))
}

func britishTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.String(slog.TimeKey, a.Value.Time().Format(BritishTimeFormat))
	}
	return a
}
