// Package applog builds the single structured logger threaded through the
// connection loop, the controller, and its write-ahead log.
package applog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a text-formatted logger writing to stderr. verbose raises the
// level to Debug (per-request decode/dispatch tracing); otherwise the
// logger runs at Info, matching SPEC_FULL.md §4.13's level table.
func New(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
