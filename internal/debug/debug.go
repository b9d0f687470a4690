package debug

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (solar angles, adjustments)
	LevelLive    = 2 // Live info (every step, motor state changes)
	LevelVerbose = 3 // Verbose (calculation details)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	level  int
	logger *logrus.Logger
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (solar angles, position adjusted)
// 2 = live info (motor angle per step, sleep/wake)
// 3 = verbose (declination, hour angle, configuration)
// 4 = trace (GPIO, very low level)
func Init(debugLevel int) {
	level = debugLevel
	if level <= LevelOff {
		logger = nil
		return
	}

	logger = logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	logger.SetLevel(logrusLevel(level))
}

// logrusLevel maps a debug level onto the logrus level that lets its
// messages through.
func logrusLevel(l int) logrus.Level {
	switch {
	case l >= LevelTrace:
		return logrus.TraceLevel
	case l >= LevelVerbose:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// SetOutput redirects debug output, e.g. to stdout plus a serial port or
// the web status broadcaster.
func SetOutput(w io.Writer) {
	if logger != nil {
		logger.SetOutput(w)
	}
}

// AddHook registers a hook fired for every entry that passes the level
// filter, e.g. the web status broadcaster.
func AddHook(h logrus.Hook) {
	if logger != nil {
		logger.AddHook(h)
	}
}

// Level returns the current debug level.
func Level() int {
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return level >= minLevel
}

func entry(tag string) *logrus.Entry {
	return logger.WithField("tag", tag)
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	if level >= LevelInfo && logger != nil {
		entry("INFO").Infof(format, args...)
	}
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if level >= LevelInfo && logger != nil {
		entry("INFO").Info("═══════════════════════════════════════")
		entry("INFO").Infof("  %s", title)
		entry("INFO").Info("═══════════════════════════════════════")
	}
}

// Angles prints the computed solar angles (level 1).
func Angles(elevation, azimuth float64) {
	if level >= LevelInfo && logger != nil {
		entry("INFO").WithFields(logrus.Fields{
			"elevation": fmt.Sprintf("%.2f", elevation),
			"azimuth":   fmt.Sprintf("%.2f", azimuth),
		}).Info("Solar angles computed")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	if level >= LevelLive && logger != nil {
		entry("LIVE").Infof(format, args...)
	}
}

// Motor prints a motor angle update (level 2).
func Motor(angle float64, direction string) {
	if level >= LevelLive && logger != nil {
		entry("LIVE").Infof("Motor angle: %.2f (%s)", angle, direction)
	}
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	if level >= LevelVerbose && logger != nil {
		entry("VERBOSE").Debugf(format, args...)
	}
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	if level >= LevelVerbose && logger != nil {
		entry("VERBOSE").Debugf("%s: %+v", name, v)
	}
}

// Section prints a section separator (level 3).
func Section(name string) {
	if level >= LevelVerbose && logger != nil {
		entry("VERBOSE").Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		entry("VERBOSE").Debugf("  %s", name)
		entry("VERBOSE").Debug("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	if level >= LevelVerbose && logger != nil {
		entry("VERBOSE").Debugf("Step %d: %s", num, description)
	}
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	if level >= LevelInfo && logger != nil {
		entry("INFO").Infof("  %s = %v", name, value)
	}
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	if level >= LevelTrace && logger != nil {
		entry("TRACE").Tracef(format, args...)
	}
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	if level >= LevelTrace && logger != nil {
		entry("GPIO").WithField("pin", pin).Tracef("%s value=%v", operation, value)
	}
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	if level >= LevelInfo && logger != nil {
		entry("ERROR").Error(err)
	}
}
