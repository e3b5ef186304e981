// Package driver defines the native accelerator driver surface.
//
// A Provider loads a driver library and hands back a Runtime, the table of
// native entry points (log, backend, device, context, graph, tensor). Every
// Runtime call is synchronous and reports a raw Status; callers translate
// failures with Status.Err.
//
// Two providers ship with this module: dynlib (a shared library loaded
// through goffi) and refdrv (an in-process reference driver used for host
// builds and tests).
package driver

// Opaque native handles.
type (
	LogHandle     uintptr
	BackendHandle uintptr
	DeviceHandle  uintptr
	ContextHandle uintptr
	GraphHandle   uintptr
)

// LogLevel is the native log severity. Higher values are more verbose.
type LogLevel int

// Native log levels.
const (
	LogError LogLevel = iota + 1
	LogWarn
	LogInfo
	LogVerbose
	LogDebug
)

// String returns the level name.
func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	case LogVerbose:
		return "verbose"
	case LogDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// LogCallback receives log records emitted by the driver.
type LogCallback func(level LogLevel, msg string)

// CustomConfig is one backend-specific key/value option passed through to
// the driver at create time.
type CustomConfig struct {
	Key   string `msgpack:"k"`
	Value string `msgpack:"v"`
}

// Runtime is the table of native entry points exposed by a loaded driver.
type Runtime interface {
	LogCreate(cb LogCallback, level LogLevel) (LogHandle, Status)
	LogFree(h LogHandle) Status

	BackendCreate(log LogHandle, cfg []CustomConfig) (BackendHandle, Status)
	BackendValidateOpConfig(b BackendHandle, op OpConfig) Status
	BackendFree(b BackendHandle) Status

	DeviceCreate(log LogHandle, cfg []CustomConfig) (DeviceHandle, Status)
	DeviceFree(d DeviceHandle) Status

	ContextCreate(b BackendHandle, d DeviceHandle, cfg []CustomConfig) (ContextHandle, Status)
	ContextCreateFromBinary(b BackendHandle, d DeviceHandle, cfg []CustomConfig, blob []byte) (ContextHandle, Status)
	ContextGetBinarySize(c ContextHandle) (uint64, Status)
	ContextGetBinary(c ContextHandle, buf []byte) (uint64, Status)
	ContextFree(c ContextHandle) Status

	GraphCreate(c ContextHandle, name string, cfg []CustomConfig) (GraphHandle, Status)
	GraphRetrieve(c ContextHandle, name string) (GraphHandle, Status)
	GraphInfo(g GraphHandle) (inputs, outputs []Tensor, st Status)
	TensorCreateGraphTensor(g GraphHandle, t *Tensor) Status
	GraphAddNode(g GraphHandle, op OpConfig) Status
	GraphFinalize(g GraphHandle) Status
	GraphExecute(g GraphHandle, inputs, outputs []Tensor) Status
}

// Provider loads driver libraries.
type Provider interface {
	// Load opens the library at path and returns its entry points.
	Load(path string) (Runtime, error)
	// TerminateAllBackends releases every backend instance the driver still
	// holds and unloads the library.
	TerminateAllBackends() error
}
