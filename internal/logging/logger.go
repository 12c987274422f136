package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger
var allocationLogger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
	})
	logger.SetLevel(logrus.InfoLevel)

	allocationLogger = logrus.New()
	allocationLogger.SetOutput(os.Stdout)
	allocationLogger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "allocation_msg",
		},
	})
	allocationLogger.SetLevel(logrus.InfoLevel)
}

func GetLogger() *logrus.Logger {
	return logger
}

// GetAllocationLogger returns the logger used by the power manager for
// connect, disconnect, change and throttle events.
func GetAllocationLogger() *logrus.Logger {
	return allocationLogger
}

func SetLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(logLevel)
	allocationLogger.SetLevel(logLevel)
	return nil
}

func SetAllocationLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	allocationLogger.SetLevel(logLevel)
	return nil
}

// SetOutput redirects both loggers, e.g. to stderr so that reports on stdout
// stay machine readable.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
	allocationLogger.SetOutput(w)
}

func SetFormatter(formatter logrus.Formatter) {
	logger.SetFormatter(formatter)
}
