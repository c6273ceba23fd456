package daemon

import (
	"log"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger returns a logger backed by a size-rotated file. The daemon
// runs unattended for long stretches, so its logs rotate instead of
// growing without bound.
func FileLogger(path string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}, "[daemon] ", log.LstdFlags)
}
