package internal

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. format is "json" or "text"; an
// unknown level falls back to info.
func NewLogger(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000000Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006/01/02 15:04:05.000000"})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
