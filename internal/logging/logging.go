package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process: human-readable console output
// plus a JSON line file under logs/<date>.log. File problems degrade to
// console-only logging rather than failing startup.
func Setup(environment string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout}

	var writer io.Writer = consoleWriter
	if f := openDailyLogFile(); f != nil {
		writer = zerolog.MultiLevelWriter(consoleWriter, f)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

func openDailyLogFile() *os.File {
	logsDir := "logs"
	if err := os.MkdirAll(logsDir, 0o750); err != nil {
		return nil
	}

	path := filepath.Join(logsDir, time.Now().Format("2006-01-02")+".log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600) // #nosec G304 - path is built from the date
	if err != nil {
		return nil
	}
	return f
}
