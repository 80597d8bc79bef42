// Copyright (c) 2025, The GoKit Authors
// MIT License
// All rights reserved.

package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger and returns an entry
// carrying the application name. An unknown level falls back to info.
func Setup(level, format, appName string) *logrus.Entry {
	return configure(logrus.StandardLogger(), level, format, appName)
}

// New returns a dedicated logger writing to out, configured like Setup.
func New(out io.Writer, level, format, appName string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(out)
	return configure(l, level, format, appName)
}

func configure(l *logrus.Logger, level, format, appName string) *logrus.Entry {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	entry := logrus.NewEntry(l).WithField("app", appName)
	if err != nil && level != "" {
		entry.WithField("level", level).Warn("unknown log level, using info")
	}
	return entry
}
