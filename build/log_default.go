//go:build !stdlog && !nolog
// +build !stdlog,!nolog

package build

import (
	"io"
	"os"
)

// LoggingType is a log type that writes to both the console and the log
// rotator, if present.
const LoggingType = LogTypeDefault

// Console is the writer log lines are mirrored to. It defaults to stderr so
// that stdout only ever carries command output (addresses, tx hex, txids).
var Console io.Writer = os.Stderr

// Write writes the byte slice to both the console and the log rotator, if
// present.
func (w *LogWriter) Write(b []byte) (int, error) {
	Console.Write(b)
	if w.RotatorPipe != nil {
		w.RotatorPipe.Write(b)
	}
	return len(b), nil
}
