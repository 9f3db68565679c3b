// Copyright (C) 2019-2022  Ambassador Labs
// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: Apache-2.0
//
// Contains code based on:
// https://github.com/datawire/dlib/blob/b09ab2e017e16d261f05fff5b3b860d645e774d4/dlog/logger_logrus.go

// Package otelog adapts logrus into a dlog.Logger, and provides a
// pflag-compatible flag for selecting the log level on the command line.
package otelog

import (
	"fmt"
	"io"
	"strings"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// LevelFlag is a pflag.Value that parses a dlog.LogLevel from a string such
// as "info" or "debug".
type LevelFlag struct {
	Level dlog.LogLevel
}

var _ pflag.Value = (*LevelFlag)(nil)

// Type implements pflag.Value.
func (f *LevelFlag) Type() string { return "loglevel" }

// Set implements pflag.Value.
func (f *LevelFlag) Set(str string) error {
	switch strings.ToLower(str) {
	case "error":
		f.Level = dlog.LogLevelError
	case "warn", "warning":
		f.Level = dlog.LogLevelWarn
	case "info":
		f.Level = dlog.LogLevelInfo
	case "debug":
		f.Level = dlog.LogLevelDebug
	case "trace":
		f.Level = dlog.LogLevelTrace
	default:
		return fmt.Errorf("invalid log level: %q", str)
	}
	return nil
}

// String implements pflag.Value.
func (f *LevelFlag) String() string {
	switch f.Level {
	case dlog.LogLevelError:
		return "error"
	case dlog.LogLevelWarn:
		return "warn"
	case dlog.LogLevelInfo:
		return "info"
	case dlog.LogLevelDebug:
		return "debug"
	case dlog.LogLevelTrace:
		return "trace"
	default:
		panic(fmt.Errorf("invalid log level: %#v", f.Level))
	}
}

func dlogToLogrus(lvl dlog.LogLevel) logrus.Level {
	switch lvl {
	case dlog.LogLevelError:
		return logrus.ErrorLevel
	case dlog.LogLevelWarn:
		return logrus.WarnLevel
	case dlog.LogLevelInfo:
		return logrus.InfoLevel
	case dlog.LogLevelDebug:
		return logrus.DebugLevel
	case dlog.LogLevelTrace:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// NewLogger returns a dlog.Logger backed by a logrus.Logger writing to out at
// the given level, for use as the base logger passed to dlog.WithLogger.
func NewLogger(out io.Writer, lvl dlog.LogLevel) dlog.Logger {
	lr := logrus.New()
	lr.SetOutput(out)
	lr.SetLevel(dlogToLogrus(lvl))
	lr.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return dlog.WrapLogrus(lr)
}
