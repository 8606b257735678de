/*
	This file provides the server's logging.  Log lines go to stdout by
	default or to a rotating file when the config names one.  The knobs are
	deliberately few: a severity threshold, and a duration helper for timing
	the stages of a tile request (open, fetch, transcode).
*/

package wsi

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
)

// LogLevel is the severity of a log line.  Lines below the configured
// threshold are dropped.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarning
	LogError
	LogCritical
	LogSilent
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarning:
		return "WARNING"
	case LogError:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}

var (
	logThreshold = LogInfo

	// logFile is non-nil when logging to a rotating file.
	logFile *lumberjack.Logger
)

// SetLogLevel sets the minimum severity that gets written.  LogSilent turns
// logging off entirely.
func SetLogLevel(level LogLevel) {
	logThreshold = level
}

func logf(level LogLevel, format string, args ...interface{}) {
	if level < logThreshold || logThreshold == LogSilent {
		return
	}
	log.Printf(" "+level.String()+" "+format, args...)
}

func Debugf(format string, args ...interface{}) {
	logf(LogDebug, format, args...)
}

func Infof(format string, args ...interface{}) {
	logf(LogInfo, format, args...)
}

func Warningf(format string, args ...interface{}) {
	logf(LogWarning, format, args...)
}

func Errorf(format string, args ...interface{}) {
	logf(LogError, format, args...)
}

func Criticalf(format string, args ...interface{}) {
	logf(LogCritical, format, args...)
}

// LogDuration writes a log line with the elapsed time since start appended,
// for timing a completed operation:
//
//	defer wsi.LogDuration(wsi.LogDebug, time.Now(), "GET %s", r.URL.Path)
//
// The time.Now() argument is evaluated when the defer is set up, so the
// deferred call logs the full elapsed time.
func LogDuration(level LogLevel, start time.Time, format string, args ...interface{}) {
	if level < logThreshold || logThreshold == LogSilent {
		return
	}
	msg := fmt.Sprintf(format, args...)
	logf(level, "%s: %s\n", msg, time.Since(start))
}

// LogConfig configures the rotating server log.
type LogConfig struct {
	Logfile string `toml:"logfile"`
	MaxSize int    `toml:"max_log_size"` // megabytes
	MaxAge  int    `toml:"max_log_age"`  // days
}

// Start routes log output to the configured rotating file.  With no logfile
// set, output stays on stdout.
func (c *LogConfig) Start() {
	if c == nil || c.Logfile == "" {
		log.SetOutput(os.Stdout)
		Infof("Sending log messages to stdout since no log file specified.\n")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	logFile = &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(logFile)
}

// Shutdown closes the log file, if one is open.
func Shutdown() {
	if logFile != nil {
		log.Printf("Closing log file...\n")
		logFile.Close()
	}
}
