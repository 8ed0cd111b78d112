// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the process-wide severity logger. Severities span
// trace through error plus off; output is text (severity=... message=...) or
// json, on stderr.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError

	// levelOff sits above every level that is ever logged.
	levelOff = slog.Level(12)
)

var (
	programLevel  = new(slog.LevelVar)
	defaultLogger = createJsonOrTextLogger(os.Stderr, "text")
)

// Setup reconfigures the default logger. severity is one of trace, debug,
// info, warning, error, off (case-insensitive, default info); format is
// "text" or "json".
func Setup(severity, format string) {
	setLoggingLevel(severity, programLevel)
	defaultLogger = createJsonOrTextLogger(os.Stderr, format)
}

func createJsonOrTextLogger(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       programLevel,
		ReplaceAttr: replaceAttr,
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		a.Key = "severity"
		a.Value = slog.StringValue(severityName(a.Value.Any().(slog.Level)))
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

func severityName(l slog.Level) string {
	switch {
	case l <= LevelTrace:
		return "TRACE"
	case l <= LevelDebug:
		return "DEBUG"
	case l <= LevelInfo:
		return "INFO"
	case l <= LevelWarn:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func setLoggingLevel(severity string, level *slog.LevelVar) {
	switch strings.ToLower(severity) {
	case "trace":
		level.Set(LevelTrace)
	case "debug":
		level.Set(LevelDebug)
	case "warning":
		level.Set(LevelWarn)
	case "error":
		level.Set(LevelError)
	case "off":
		level.Set(levelOff)
	default:
		level.Set(LevelInfo)
	}
}

func logf(level slog.Level, format string, v ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...any) { logf(LevelTrace, format, v...) }

func Debugf(format string, v ...any) { logf(LevelDebug, format, v...) }

func Infof(format string, v ...any) { logf(LevelInfo, format, v...) }

func Warnf(format string, v ...any) { logf(LevelWarn, format, v...) }

func Errorf(format string, v ...any) { logf(LevelError, format, v...) }

func Info(msg string) { defaultLogger.Log(context.Background(), LevelInfo, msg) }

func Error(msg string) { defaultLogger.Log(context.Background(), LevelError, msg) }

// NewLegacyLogger adapts the default logger to the log.Logger interface that
// the fuse mount config expects, tagging each line with the given prefix.
func NewLegacyLogger(level slog.Level, prefix string) *log.Logger {
	return log.New(&legacyWriter{level: level, prefix: prefix}, "", 0)
}

type legacyWriter struct {
	level  slog.Level
	prefix string
}

func (w *legacyWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	defaultLogger.Log(context.Background(), w.level, w.prefix+msg)
	return len(p), nil
}
