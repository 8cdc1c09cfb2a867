package logs

import (
	"io"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/reusedev/shot-hub/config"
	"github.com/rs/zerolog"
)

var (
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// InitLogger writes to a rotated file, plus the console at debug level.
// A file of "-" logs to stdout only.
func InitLogger(cfg config.Log) {
	level := parseLogLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	if cfg.File == "-" {
		writers = append(writers, os.Stdout)
	} else {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		})
		if level <= zerolog.DebugLevel {
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout})
		}
	}
	Logger = zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Str("service", "shot-hub").Logger()
}

func parseLogLevel(levelStr string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}
