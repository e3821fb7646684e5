// Package log wraps go-logr/stdr into the small logging surface the
// rest of this client depends on, so no package reaches for the global
// standard logger or a concrete logging library directly.
package log

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Logger is the interface the client core depends on. It matches
// authhandler.Logger so an AuthHandler can be built directly from one.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(err error, msg string, keysAndValues ...interface{})
}

// wrapper adapts a logr.Logger to Logger. logr's Info and Error already
// have the same shapes as Logger's, so each method forwards unchanged.
type wrapper struct {
	logr.Logger
}

func (w wrapper) Info(msg string, keysAndValues ...interface{}) {
	w.Logger.Info(msg, keysAndValues...)
}

func (w wrapper) Error(err error, msg string, keysAndValues ...interface{}) {
	w.Logger.Error(err, msg, keysAndValues...)
}

// New builds a Logger writing to standard error through its own
// log.Logger, with name as a prefix tag on every line.
func New(name string) Logger {
	std := log.New(os.Stderr, "", log.LstdFlags)
	l := stdr.NewWithOptions(std, stdr.Options{LogCaller: stdr.None})
	return wrapper{l.WithName(name)}
}

// NewAtVerbosity is like New but only emits log lines at or below the
// given verbosity level (0 is always emitted).
func NewAtVerbosity(name string, verbosity int) Logger {
	stdr.SetVerbosity(verbosity)
	return New(name)
}
