package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the global logrus logger from LOG_LEVEL.
func Init() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}

// ParseLevel maps LOG_LEVEL values to a logrus level.
// Production only shows errors.
func ParseLevel(l string) logrus.Level {
	switch l {
	case "dev", "development", "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

// DefaultTo sets the level to l unless LOG_LEVEL chose one explicitly.
// Long-running commands use it to show info output by default.
func DefaultTo(l logrus.Level) {
	if os.Getenv("LOG_LEVEL") == "" {
		logrus.SetLevel(l)
	}
}
