// SPDX-License-Identifier: Apache-2.0

// Package ontolog defines the logging interface shared by every engine
// component, following the teacher's Logger/NoopLogger split so callers can
// wire a real logger in production and a silent one in tests.
package ontolog

import (
	"fmt"
	"log"

	"github.com/pterm/pterm"
)

// Logger is implemented by anything that can receive leveled, printf-style
// diagnostics from the engine.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type ptermLogger struct {
	logger pterm.Logger
}

// New returns a Logger backed by pterm's structured logger, suitable for the
// CLI and any long-running process that wants readable stderr output.
func New() Logger {
	return &ptermLogger{logger: pterm.DefaultLogger}
}

func (l *ptermLogger) Debugf(format string, args ...any) { l.logger.Debug(fmt.Sprintf(format, args...)) }
func (l *ptermLogger) Infof(format string, args ...any)  { l.logger.Info(fmt.Sprintf(format, args...)) }
func (l *ptermLogger) Warnf(format string, args ...any)  { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *ptermLogger) Errorf(format string, args ...any) { l.logger.Error(fmt.Sprintf(format, args...)) }

type stdLogger struct {
	logger *log.Logger
}

// NewStd wraps an existing standard library logger, for callers that embed
// the engine into a process with its own logging setup already in place.
func NewStd(l *log.Logger) Logger {
	return &stdLogger{logger: l}
}

func (l *stdLogger) Debugf(format string, args ...any) { l.logger.Printf("DEBUG "+format, args...) }
func (l *stdLogger) Infof(format string, args ...any)  { l.logger.Printf("INFO "+format, args...) }
func (l *stdLogger) Warnf(format string, args ...any)  { l.logger.Printf("WARN "+format, args...) }
func (l *stdLogger) Errorf(format string, args ...any) { l.logger.Printf("ERROR "+format, args...) }

type noopLogger struct{}

// Noop returns a Logger that discards everything, the default when no
// logger is configured.
func Noop() Logger { return &noopLogger{} }

func (*noopLogger) Debugf(string, ...any) {}
func (*noopLogger) Infof(string, ...any)  {}
func (*noopLogger) Warnf(string, ...any)  {}
func (*noopLogger) Errorf(string, ...any) {}
