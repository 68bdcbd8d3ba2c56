package logger

import (
	"github.com/sirupsen/logrus"
)

// Logger is the shared access-log logger used by the HTTP router.
var Logger *logrus.Logger

// Init initializes the logger by creating a new instance of logrus.Logger
func Init() {
	Logger = logrus.New()
	Logger.SetFormatter(&logrus.JSONFormatter{})
	Logger.SetLevel(logrus.InfoLevel)
}
