// Package kfmt provides the logging and console plumbing shared by the
// kernel and the user-space libraries.
package kfmt

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// Logger returns the shared logger.
func Logger() *logrus.Logger {
	return log
}

// SetOutput redirects the shared logger to w.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetLevel sets the level of the shared logger from its name (e.g. "debug").
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	log.SetLevel(lvl)
	return nil
}

// SetFormat selects the "text" or "json" log formatter.
func SetFormat(format string) error {
	switch format {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errUnknownFormat
	}

	return nil
}
