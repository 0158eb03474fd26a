package main

import (
	"log"
	"log/slog"

	"taskboard/internal/logging"
)

// slogErrorLog routes net/http's internal errors into the structured log.
func slogErrorLog(l *logging.Logger) *log.Logger {
	return slog.NewLogLogger(l.Slog().Handler(), slog.LevelWarn)
}
