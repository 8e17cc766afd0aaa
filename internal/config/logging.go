package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the tool logger. Debug mode logs text at debug level,
// otherwise JSON at info level. When File is set, output also goes to a
// size-rotated log file; close the returned io.Closer on exit.
func NewLogger(c LogConfig, console io.Writer) (*logrus.Logger, io.Closer) {
	logger := logrus.New()
	if console == nil {
		console = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	out := console
	if c.File != "" {
		roller := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     28, // days
		}
		out = io.MultiWriter(console, roller)
		closer = roller
	}
	logger.SetOutput(out)

	if c.Debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		if c.JSON {
			logger.SetFormatter(&logrus.JSONFormatter{
				TimestampFormat: "2006-01-02 15:04:05",
			})
		}
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
