package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger. If w is nil, os.Stderr is used.
// Format must be "text" or "json".
func Init(level logrus.Level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}
	logrus.SetOutput(writer)
	logrus.SetLevel(level)
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
}

// ParseLevel accepts logrus level names and falls back to info.
func ParseLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// New returns a logger carrying a "component" field.
func New(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
