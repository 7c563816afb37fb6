// Package tlog is the leveled logger used throughout tagdir.
//
// Call sites mirror rclone's fs.Debugf/fs.Logf/fs.Errorf convention: a
// loggable subject first, then a format string. Unlike rclone's Fs
// subjects, tagdir's subjects are plain strings (the name of the calling
// package, e.g. "tagfs" or "watcher").
package tlog

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.SetLevel(logrus.ErrorLevel)
}

// SetLevel configures the global level from the CLI --level flag.
// Any value other than "debug" selects error level.
func SetLevel(level string) {
	switch level {
	case "debug":
		std.SetLevel(logrus.DebugLevel)
	case "error":
		std.SetLevel(logrus.ErrorLevel)
	default:
		std.SetLevel(logrus.ErrorLevel)
	}
}

// SetOutputFile redirects logging to path, falling back to stderr if the
// file can't be opened or created.
func SetOutputFile(path string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		std.SetOutput(os.Stderr)
		Errorf(nil, "can't open log file %q, logging to stderr: %v", path, err)
		return
	}
	std.SetOutput(f)
}

func subject(o interface{}) string {
	if o == nil {
		return "tagdir"
	}
	return fmt.Sprintf("%v", o)
}

// Debugf logs at debug level about the given subject.
func Debugf(o interface{}, format string, args ...interface{}) {
	std.WithField("subject", subject(o)).Debugf(format, args...)
}

// Logf logs at info level about the given subject.
func Logf(o interface{}, format string, args ...interface{}) {
	std.WithField("subject", subject(o)).Infof(format, args...)
}

// Errorf logs at error level about the given subject.
func Errorf(o interface{}, format string, args ...interface{}) {
	std.WithField("subject", subject(o)).Errorf(format, args...)
}
