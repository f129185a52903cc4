// Package logging provides leveled log output for the segmentation engine.
// Messages go through the standard log package unless a rotating log file is
// configured with LogConfig.SetLogger.
package logging

import (
	"fmt"
	"log"
	"sync"

	"github.com/natefinch/lumberjack"
)

// ModeFlag sets the minimum severity that is written.
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var (
	mu   sync.RWMutex
	mode = InfoMode
	file *lumberjack.Logger
)

// LogConfig describes an optional rotating log file.
type LogConfig struct {
	Logfile    string `yaml:"logfile" toml:"logfile"`
	MaxSize    int    `yaml:"maxLogSize" toml:"max_log_size"` // megabytes
	MaxAge     int    `yaml:"maxLogAge" toml:"max_log_age"`   // days
	MaxBackups int    `yaml:"maxBackups" toml:"max_backups"`
}

// SetLogger sends log output to a rotating file. With no file configured the
// standard logger output is left untouched.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Debugf("Sending log messages to stderr since no log file specified.")
		return
	}
	l := &lumberjack.Logger{
		Filename:   c.Logfile,
		MaxSize:    c.MaxSize,
		MaxAge:     c.MaxAge,
		MaxBackups: c.MaxBackups,
	}
	mu.Lock()
	file = l
	mu.Unlock()
	log.SetOutput(l)
	Infof("Sending log messages to: %s", c.Logfile)
}

// Shutdown closes the log file, if any.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
}

// SetLogMode sets the severity required for a message to be printed.
// SetLogMode(WarningMode) keeps Warningf, Errorf and Criticalf output.
func SetLogMode(m ModeFlag) {
	mu.Lock()
	mode = m
	mu.Unlock()
}

// Mode returns the current log mode.
func Mode() ModeFlag {
	mu.RLock()
	defer mu.RUnlock()
	return mode
}

func logf(level ModeFlag, prefix, format string, args ...interface{}) {
	if Mode() > level {
		return
	}
	log.Output(3, prefix+fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	logf(DebugMode, " DEBUG ", format, args...)
}

func Infof(format string, args ...interface{}) {
	logf(InfoMode, " INFO ", format, args...)
}

func Warningf(format string, args ...interface{}) {
	logf(WarningMode, " WARNING ", format, args...)
}

func Errorf(format string, args ...interface{}) {
	logf(ErrorMode, " ERROR ", format, args...)
}

func Criticalf(format string, args ...interface{}) {
	logf(CriticalMode, " CRITICAL ", format, args...)
}

// Once emits a warning at most one time. The zero value is ready to use.
// Filters create one per Apply so a noisy image yields a single message.
type Once struct {
	once sync.Once
	n    int
	mu   sync.Mutex
}

// Warningf logs the first call and counts the rest.
func (o *Once) Warningf(format string, args ...interface{}) {
	o.mu.Lock()
	o.n++
	o.mu.Unlock()
	o.once.Do(func() {
		logf(WarningMode, " WARNING ", format, args...)
	})
}

// Count returns how many times Warningf was called.
func (o *Once) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}
