package logging

import (
	"testing"

	"github.com/born-ml/accel/internal/config"
	"github.com/born-ml/accel/internal/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logRuntime implements only the log entry points; any other call panics on
// the nil embedded interface.
type logRuntime struct {
	driver.Runtime

	createStatus driver.Status
	cb           driver.LogCallback
	level        driver.LogLevel
	freed        int
}

func (r *logRuntime) LogCreate(cb driver.LogCallback, level driver.LogLevel) (driver.LogHandle, driver.Status) {
	if !r.createStatus.OK() {
		return 0, r.createStatus
	}
	r.cb = cb
	r.level = level
	return 42, driver.Success
}

func (r *logRuntime) LogFree(driver.LogHandle) driver.Status {
	r.freed++
	return driver.Success
}

func TestNewBindsCallback(t *testing.T) {
	rt := &logRuntime{}
	l := New(rt, config.LogInfo)

	assert.Equal(t, driver.LogHandle(42), l.Handle())
	assert.Equal(t, driver.LogInfo, rt.level)
	require.NotNil(t, rt.cb)

	// Records above the configured level are dropped without panicking.
	rt.cb(driver.LogDebug, "dropped")
	rt.cb(driver.LogError, "shown")

	l.Release()
	l.Release()
	assert.Equal(t, 1, rt.freed, "release is idempotent")
	assert.Equal(t, driver.LogHandle(0), l.Handle())
}

func TestNewOffSkipsDriver(t *testing.T) {
	rt := &logRuntime{}
	l := New(rt, config.LogOff)

	assert.Nil(t, rt.cb)
	assert.Equal(t, driver.LogHandle(0), l.Handle())
	l.Release()
	assert.Equal(t, 0, rt.freed)
}

func TestNewToleratesDriverFailure(t *testing.T) {
	rt := &logRuntime{createStatus: driver.StatusOf(driver.CodeNotSupported)}
	l := New(rt, config.LogDebug)

	require.NotNil(t, l)
	assert.Equal(t, driver.LogHandle(0), l.Handle())
	assert.Equal(t, config.LogDebug, l.Level())
}

func TestNilLoggerHandle(t *testing.T) {
	var l *Logger
	assert.Equal(t, driver.LogHandle(0), l.Handle())
	l.Release()
}
