package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/pilotd/pkg/config"
)

// configureLogger creates a logger from the config's debug level, letting
// an explicit --log-level flag take precedence.
// Returns a configured logger or error if the log-level is invalid.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logLevel := cfg.LogLevel()

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
