// Package logging sets up the logrus logger shared by the CLI and the viewer.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Init creates a logger at the given level writing to stderr. JSON output is
// meant for the long-running viewer; the CLI uses text.
func Init(level string, json bool) (*logrus.Logger, error) {
	return New(os.Stderr, level, json)
}

// New creates a logger writing to w.
func New(w io.Writer, level string, json bool) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(w)

	if json {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "ts",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: true,
		})
	}

	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	return log, nil
}
