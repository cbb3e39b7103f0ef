package boss

import "github.com/devolvehq/devolve/pkg/core"

// Logger is the sink the boss writes lifecycle and error messages to. It is
// injected, not global: the redesign in the design notes replaces "logger
// as global state" with this, so tests can assert on a stub and production
// code can swap in whatever sink it likes.
type Logger = core.Logger

// NewLogger returns the default stdlib-backed logger from
// core.NewDefaultLogger, the same sink cmd/devolve-boss uses.
func NewLogger() Logger {
	return core.NewDefaultLogger()
}

// NopLogger discards everything. Used as the Config.Logger default so the
// core never needs a nil check before logging.
type NopLogger struct{}

func (NopLogger) Error(args ...interface{})                 {}
func (NopLogger) Errorf(format string, args ...interface{}) {}
func (NopLogger) Warn(args ...interface{})                  {}
func (NopLogger) Warnf(format string, args ...interface{})  {}
func (NopLogger) Info(args ...interface{})                  {}
func (NopLogger) Infof(format string, args ...interface{})  {}
func (NopLogger) Debug(args ...interface{})                 {}
func (NopLogger) Debugf(format string, args ...interface{}) {}
