package godbf

import (
	"os"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var log = &logrus.Logger{
	Out:   os.Stderr,
	Level: logrus.WarnLevel,
	Formatter: &prefixed.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	},
}

// SetLogLevel adjusts the package logger. Debug traces open/create and
// structural mutations.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}
