package config

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger.
func SetupLogging(c LogConfig, out io.Writer) error {
	level := logrus.InfoLevel
	if c.Level != "" {
		parsed, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
		level = parsed
	}
	logrus.SetLevel(level)

	if c.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if out != nil {
		logrus.SetOutput(out)
	}
	return nil
}
