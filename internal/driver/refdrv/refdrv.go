// Package refdrv is an in-process reference implementation of the
// accelerator driver. It validates and executes float32 graphs on the host
// and produces context binaries of its own format, so the lifecycle manager
// can be exercised without vendor libraries.
package refdrv

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/parallel"
)

// Provider hands out reference runtimes for any library path.
type Provider struct {
	mu       sync.Mutex
	parallel parallel.Config
	runtimes []*Runtime
}

var _ driver.Provider = (*Provider)(nil)

// NewProvider creates a reference provider using the default parallel
// configuration for kernels.
func NewProvider() *Provider {
	return &Provider{parallel: parallel.DefaultConfig()}
}

// WithParallel sets the kernel parallelism of runtimes loaded afterwards.
func (p *Provider) WithParallel(cfg parallel.Config) *Provider {
	p.parallel = cfg
	return p
}

// Load returns a fresh runtime. The path is recorded but not opened.
func (p *Provider) Load(path string) (driver.Runtime, error) {
	if path == "" {
		return nil, fmt.Errorf("refdrv: empty library path")
	}
	rt := NewRuntime(path)
	rt.parallel = p.parallel

	p.mu.Lock()
	p.runtimes = append(p.runtimes, rt)
	p.mu.Unlock()
	return rt, nil
}

// TerminateAllBackends releases every object of every runtime loaded so far.
func (p *Provider) TerminateAllBackends() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, rt := range p.runtimes {
		rt.terminate()
	}
	p.runtimes = nil
	return nil
}

type logger struct {
	cb    driver.LogCallback
	level driver.LogLevel
}

func (l *logger) logf(level driver.LogLevel, format string, args ...any) {
	if l == nil || l.cb == nil || level > l.level {
		return
	}
	l.cb(level, fmt.Sprintf(format, args...))
}

type backend struct {
	log *logger
	cfg map[string]string
}

type device struct {
	log *logger
	cfg map[string]string
}

type execContext struct {
	backend *backend
	graphs  map[string]driver.GraphHandle
}

// Runtime is the reference driver's entry point table. All methods are safe
// for concurrent use.
type Runtime struct {
	mu       sync.Mutex
	library  string
	registry *Registry
	parallel parallel.Config

	next     uintptr
	logs     map[driver.LogHandle]*logger
	backends map[driver.BackendHandle]*backend
	devices  map[driver.DeviceHandle]*device
	contexts map[driver.ContextHandle]*execContext
	graphs   map[driver.GraphHandle]*graph
}

var _ driver.Runtime = (*Runtime)(nil)

// NewRuntime creates a runtime bound to the given library name.
func NewRuntime(library string) *Runtime {
	return &Runtime{
		library:  library,
		registry: NewRegistry(),
		parallel: parallel.DefaultConfig(),
		logs:     make(map[driver.LogHandle]*logger),
		backends: make(map[driver.BackendHandle]*backend),
		devices:  make(map[driver.DeviceHandle]*device),
		contexts: make(map[driver.ContextHandle]*execContext),
		graphs:   make(map[driver.GraphHandle]*graph),
	}
}

// Registry exposes the op registry so custom ops can be added.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// Library returns the library name the runtime was loaded for.
func (r *Runtime) Library() string {
	return r.library
}

func (r *Runtime) handle() uintptr {
	r.next++
	return r.next
}

func (r *Runtime) terminate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.logs)
	clear(r.backends)
	clear(r.devices)
	clear(r.contexts)
	clear(r.graphs)
}

// LogCreate registers a log callback.
func (r *Runtime) LogCreate(cb driver.LogCallback, level driver.LogLevel) (driver.LogHandle, driver.Status) {
	if cb == nil || level < driver.LogError || level > driver.LogDebug {
		return 0, driver.StatusOf(driver.CodeInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h := driver.LogHandle(r.handle())
	r.logs[h] = &logger{cb: cb, level: level}
	return h, driver.Success
}

// LogFree releases a log handle.
func (r *Runtime) LogFree(h driver.LogHandle) driver.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[h]; !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	delete(r.logs, h)
	return driver.Success
}

// Backend option keys understood by the reference driver.
var backendOptions = map[string][]string{
	"htp.performance_mode": {"default", "burst", "sustained_high", "high", "balanced", "low_balanced", "power_saver", "low_power_saver", "high_power_saver", "extreme_power_saver"},
	"htp.precision":        {"quantized", "fp16"},
	"htp.pd_session":       {"unsigned", "signed"},
	"htp.use_conv_hmx":     {"true", "false"},
	"htp.use_fold_relu":    {"true", "false"},
}

// BackendCreate creates a backend. Unknown keys are ignored; known keys must
// carry a recognized value.
func (r *Runtime) BackendCreate(log driver.LogHandle, cfg []driver.CustomConfig) (driver.BackendHandle, driver.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.logs[log]
	opts := make(map[string]string, len(cfg))
	for _, c := range cfg {
		if allowed, known := backendOptions[c.Key]; known && !contains(allowed, c.Value) {
			l.logf(driver.LogError, "invalid value %q for backend option %s", c.Value, c.Key)
			return 0, driver.StatusOf(driver.CodeInvalidArgument)
		}
		opts[c.Key] = c.Value
	}

	h := driver.BackendHandle(r.handle())
	r.backends[h] = &backend{log: l, cfg: opts}
	l.logf(driver.LogInfo, "backend created for %s", r.library)
	return h, driver.Success
}

// BackendValidateOpConfig checks whether the backend can run an op.
func (r *Runtime) BackendValidateOpConfig(b driver.BackendHandle, op driver.OpConfig) driver.Status {
	r.mu.Lock()
	be, ok := r.backends[b]
	r.mu.Unlock()
	if !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	st := r.registry.Validate(&op)
	if !st.OK() {
		be.log.logf(driver.LogVerbose, "op %s (%s) rejected with error %d", op.Name, op.TypeName, st.Code())
	}
	return st
}

// BackendFree releases a backend.
func (r *Runtime) BackendFree(b driver.BackendHandle) driver.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[b]; !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	delete(r.backends, b)
	return driver.Success
}

// DeviceCreate creates a device. "soc.vtcm_size_mb" must be a non-negative
// integer when present.
func (r *Runtime) DeviceCreate(log driver.LogHandle, cfg []driver.CustomConfig) (driver.DeviceHandle, driver.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.logs[log]
	opts := make(map[string]string, len(cfg))
	for _, c := range cfg {
		if c.Key == "soc.vtcm_size_mb" {
			if n, err := strconv.Atoi(c.Value); err != nil || n < 0 {
				l.logf(driver.LogError, "invalid vtcm size %q", c.Value)
				return 0, driver.StatusOf(driver.CodeDeviceInvalidConfig)
			}
		}
		opts[c.Key] = c.Value
	}

	h := driver.DeviceHandle(r.handle())
	r.devices[h] = &device{log: l, cfg: opts}
	l.logf(driver.LogVerbose, "device created (soc %s)", opts["soc.model"])
	return h, driver.Success
}

// DeviceFree releases a device.
func (r *Runtime) DeviceFree(d driver.DeviceHandle) driver.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[d]; !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	delete(r.devices, d)
	return driver.Success
}

// ContextCreate creates an empty context.
func (r *Runtime) ContextCreate(b driver.BackendHandle, d driver.DeviceHandle, _ []driver.CustomConfig) (driver.ContextHandle, driver.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	be, st := r.checkBackendDevice(b, d)
	if !st.OK() {
		return 0, st
	}
	h := driver.ContextHandle(r.handle())
	r.contexts[h] = &execContext{backend: be, graphs: make(map[string]driver.GraphHandle)}
	return h, driver.Success
}

// checkBackendDevice validates the handles. A zero device handle is allowed
// for backends that run without a device object. Callers hold r.mu.
func (r *Runtime) checkBackendDevice(b driver.BackendHandle, d driver.DeviceHandle) (*backend, driver.Status) {
	be, ok := r.backends[b]
	if !ok {
		return nil, driver.StatusOf(driver.CodeInvalidHandle)
	}
	if d != 0 {
		if _, ok := r.devices[d]; !ok {
			return nil, driver.StatusOf(driver.CodeInvalidHandle)
		}
	}
	return be, driver.Success
}

// ContextFree releases a context and every graph it owns.
func (r *Runtime) ContextFree(c driver.ContextHandle) driver.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, ok := r.contexts[c]
	if !ok {
		return driver.StatusOf(driver.CodeInvalidHandle)
	}
	for _, g := range ctx.graphs {
		delete(r.graphs, g)
	}
	delete(r.contexts, c)
	return driver.Success
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
