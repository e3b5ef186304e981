// Package logging binds the driver's log callback to klog.
package logging

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/config"
	"github.com/born-ml/accel/internal/driver"
)

// klog verbosity used for driver records above info.
const (
	VerboseV klog.Level = 4
	DebugV   klog.Level = 5
)

// Logger owns the native log handle registered with a loaded driver.
type Logger struct {
	rt     driver.Runtime
	handle driver.LogHandle
	level  config.LogLevel
}

// New registers a log callback with the driver at the given level.
// A driver that refuses the callback does not fail the caller: the logger is
// returned without a native handle and driver records are dropped.
func New(rt driver.Runtime, level config.LogLevel) *Logger {
	l := &Logger{rt: rt, level: level}
	if level == config.LogOff {
		return l
	}

	h, st := rt.LogCreate(l.forward, level.DriverLevel())
	if !st.OK() {
		klog.Warningf("failed to create driver log handle, error %d", st.Code())
		return l
	}
	l.handle = h
	return l
}

// Handle returns the native log handle, or 0 when none was created.
func (l *Logger) Handle() driver.LogHandle {
	if l == nil {
		return 0
	}
	return l.handle
}

// Level returns the configured level.
func (l *Logger) Level() config.LogLevel {
	return l.level
}

// Release frees the native log handle. Safe to call more than once.
func (l *Logger) Release() {
	if l == nil || l.handle == 0 {
		return
	}
	if st := l.rt.LogFree(l.handle); !st.OK() {
		klog.Warningf("failed to free driver log handle, error %d", st.Code())
	}
	l.handle = 0
}

// forward routes one driver record to klog. Records above the configured
// level are dropped even if the driver emits them.
func (l *Logger) forward(level driver.LogLevel, msg string) {
	if level <= 0 || level > l.level.DriverLevel() {
		return
	}
	Emit(level, msg)
}

// Emit writes one driver record to klog at the matching severity.
func Emit(level driver.LogLevel, msg string) {
	switch level {
	case driver.LogError:
		klog.ErrorS(nil, msg, "source", "driver")
	case driver.LogWarn:
		klog.Warning(msg)
	case driver.LogInfo:
		klog.InfoS(msg, "source", "driver")
	case driver.LogVerbose:
		klog.V(VerboseV).InfoS(msg, "source", "driver")
	default:
		klog.V(DebugV).InfoS(msg, "source", "driver", "level", level.String())
	}
}
