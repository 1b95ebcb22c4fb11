// Package logging configures the process-wide logrus logger.
package logging

import (
	"io" // Output target

	"github.com/sirupsen/logrus" // Logging library
)

// Setup applies the level and formatter: JSON in production, text with full
// timestamps otherwise. Unknown levels fall back to info.
func Setup(out io.Writer, level string, prod bool) {
	logrus.SetOutput(out)
	if prod {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
