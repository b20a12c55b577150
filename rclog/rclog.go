// Package rclog wires up the per-subsystem btclog.Logger convention the
// teacher uses throughout lnd: every package gets its own logger reachable
// by a short subsystem tag, all backed by one shared btclog.Backend so a
// harness binary can set the level for everything (or one subsystem) at
// once.
package rclog

import (
	"io"
	"os"

	"github.com/btcsuite/btclog"
)

// Backend is the shared log backend every subsystem logger writes through.
var Backend = btclog.NewBackend(os.Stdout)

// subsystemLoggers mirrors lnd's registry of subsystem tag -> setter func, so
// SetLogLevels can apply one level string to every package at once.
var subsystemLoggers = make(map[string]func(btclog.Logger))

// Register associates a subsystem tag with the setter the owning package
// exposes as UseLogger, and installs a freshly-created logger for it using
// the current backend.
func Register(subsystem string, setter func(btclog.Logger)) btclog.Logger {
	logger := Backend.Logger(subsystem)
	setter(logger)
	subsystemLoggers[subsystem] = setter
	return logger
}

// SetLevel changes the level of one previously-registered subsystem.
func SetLevel(subsystem, level string) bool {
	setter, ok := subsystemLoggers[subsystem]
	if !ok {
		return false
	}
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return false
	}
	logger := Backend.Logger(subsystem)
	logger.SetLevel(lvl)
	setter(logger)
	return true
}

// SetLevels applies level to every registered subsystem.
func SetLevels(level string) {
	for subsystem := range subsystemLoggers {
		SetLevel(subsystem, level)
	}
}

// UseWriter repoints the shared backend at w (e.g. a rotating log file
// opened under Config.LoggingDirectory), re-registering every subsystem so
// existing logger variables keep working.
func UseWriter(w io.Writer) {
	Backend = btclog.NewBackend(w)
	for subsystem, setter := range subsystemLoggers {
		setter(Backend.Logger(subsystem))
	}
}
