// Package logging builds the prefixed loggers used across intakesync.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger with the given bracketed prefix.
//
// With an empty file path the logger writes to stderr. Otherwise output
// goes to both stderr and a size-rotated file (10 MB per file, 5
// backups, 30 days), so long-running serve sessions don't grow a log
// without bound.
func New(prefix, file string) *log.Logger {
	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		})
	}
	return log.New(out, "["+prefix+"] ", log.LstdFlags)
}
