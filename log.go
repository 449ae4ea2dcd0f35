package dcrspendfrom

import (
	"github.com/decred/dcrspendfrom/build"
	"github.com/decred/dcrspendfrom/chainfee"
	"github.com/decred/dcrspendfrom/coinctl"
	"github.com/decred/dcrspendfrom/rpcwallet"
	"github.com/decred/slog"
)

// replaceableLogger is a thin wrapper around a logger that is used so the
// logger can be replaced easily without some black pointer magic.
type replaceableLogger struct {
	slog.Logger
	subsystem string
}

// Loggers can not be used before the log rotator has been initialized with a
// log file. This must be performed early during application startup by
// calling InitLogRotator() on the main log writer instance in the config.
var (
	// pkgLoggers is a list of all package level loggers of the main
	// package. They are tracked here so they can be replaced once the
	// SetupLoggers function is called with the final root logger.
	pkgLoggers []*replaceableLogger

	// addPkgLogger is a helper function that creates a new replaceable
	// main package level logger and adds it to the list of loggers that
	// are replaced again later, once the final root logger is ready.
	addPkgLogger = func(subsystem string) *replaceableLogger {
		l := &replaceableLogger{
			Logger:    build.NewSubLogger(subsystem, nil),
			subsystem: subsystem,
		}
		pkgLoggers = append(pkgLoggers, l)
		return l
	}

	spndLog = addPkgLogger("SPND")
)

// Log returns the logger of the main package, for use by the command line
// tool.
func Log() slog.Logger {
	return spndLog
}

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.RotatingLogWriter) {
	genLogger := root.GenSubLogger

	for _, l := range pkgLoggers {
		l.Logger = build.NewSubLogger(l.subsystem, genLogger)
		SetSubLogger(root, l.subsystem, l.Logger)
	}

	AddSubLogger(root, coinctl.Subsystem, coinctl.UseLogger)
	AddSubLogger(root, rpcwallet.Subsystem, rpcwallet.UseLogger)
	AddSubLogger(root, chainfee.Subsystem, chainfee.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.RotatingLogWriter, subsystem string,
	useLoggers ...func(slog.Logger)) {

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := build.NewSubLogger(subsystem, root.GenSubLogger)
	SetSubLogger(root, subsystem, logger, useLoggers...)
}

// SetSubLogger is a helper method to conveniently register the logger of a sub
// system.
func SetSubLogger(root *build.RotatingLogWriter, subsystem string,
	logger slog.Logger, useLoggers ...func(slog.Logger)) {

	root.RegisterSubLogger(subsystem, logger)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
