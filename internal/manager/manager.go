// Package manager drives one accelerator backend through its lifecycle:
// load the driver, configure backend, device, context and graph, compile
// operators into the graph, and execute it.
//
// A Manager has a single owner. Its methods must not be called
// concurrently.
package manager

import (
	"errors"
	"os"

	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/backend"
	"github.com/born-ml/accel/internal/config"
	"github.com/born-ml/accel/internal/ctxbin"
	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/driver/dynlib"
	"github.com/born-ml/accel/internal/driver/refdrv"
	"github.com/born-ml/accel/internal/logging"
	"github.com/born-ml/accel/internal/wrapper"
)

// Manager owns the driver library and the resource bundle built on it.
type Manager struct {
	cfg         config.BackendConfig
	blob        ctxbin.ContextBinary
	libraryPath string

	impl   *backend.Implementation
	logger *logging.Logger
	bundle *backend.Bundle

	inputs  []*wrapper.Tensor
	outputs []*wrapper.Tensor
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	provider driver.Provider
}

// WithProvider sets the driver provider. By default the reference driver is
// used when cfg.Driver is "reference" and native libraries otherwise.
//
// The default native provider is a dynlib.Loader with no binders, so Init
// fails with ErrInit wrapping dynlib.ErrNoBinding. To drive a native
// library, register a dynlib.Binder for its backend id with Loader.Bind and
// pass the loader here.
func WithProvider(p driver.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// New creates a manager for cfg. blob is a previously compiled context
// binary, or nil to build the graph with Compile.
//
// The skel library directory, if set, is exported to the environment here,
// before any library is loaded.
func New(cfg config.BackendConfig, blob ctxbin.ContextBinary, opts ...Option) *Manager {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		o.provider = defaultProvider(cfg.Driver)
	}

	m := &Manager{
		cfg:    cfg,
		blob:   append(ctxbin.ContextBinary(nil), blob...),
		bundle: &backend.Bundle{},
	}

	if cfg.LogLevel.Enabled(config.LogInfo) {
		klog.InfoS("Backend configuration",
			"backendType", cfg.Kind,
			"graphName", cfg.GraphName,
			"libraryPath", cfg.LibraryPath,
			"skelLibraryDir", cfg.SkelLibraryDir,
			"logLevel", cfg.LogLevel,
			"socModel", cfg.Soc.Model,
			"htpArch", cfg.Soc.HtpArch,
			"vtcmSizeMB", cfg.Soc.VtcmSizeMB,
			"contextBinarySize", m.blob.Size(),
			"onlinePrepare", cfg.OnlinePrepare,
		)
	}

	if cfg.SkelLibraryDir != "" {
		if err := os.Setenv(config.SkelLibraryEnv, cfg.SkelLibraryDir); err != nil {
			klog.ErrorS(err, "Failed to export skel library directory", "env", config.SkelLibraryEnv)
		}
	}

	path, err := cfg.ResolveLibraryPath()
	if err != nil {
		klog.ErrorS(err, "Unknown backend type", "backendType", cfg.Kind)
	}
	m.libraryPath = path
	m.impl = backend.NewImplementation(path, o.provider)
	return m
}

func defaultProvider(name string) driver.Provider {
	if name == config.DriverReference {
		return refdrv.NewProvider()
	}
	return dynlib.NewLoader()
}

// Init loads the driver and configures backend, device, context and graph,
// in that order. Calling Init on an initialized manager does nothing.
//
// A configuration failure is not rolled back: the manager stays partially
// configured and refuses to Init again until Destroy.
func (m *Manager) Init() error {
	if err := m.impl.Load(); err != nil {
		klog.ErrorS(err, "Failed to load driver library", "path", m.libraryPath)
		if errors.Is(err, dynlib.ErrNoBinding) {
			return initError(err, "native driver has no binder, register one with Loader.Bind and pass the loader WithProvider")
		}
		return initError(err, "load driver library")
	}

	switch m.bundle.State {
	case backend.StateInitialized:
		return nil
	case backend.StateLoading:
		return initError(errors.New("previous initialization did not complete"), "destroy the backend first")
	}

	if m.logger == nil {
		m.logger = logging.New(m.impl.Runtime(), m.cfg.LogLevel)
	}

	klog.V(2).InfoS("Initializing backend", "backendType", m.cfg.Kind, "graphName", m.cfg.GraphName)
	bundle, err := backend.Create(m.impl, m.logger, backend.Params{
		Blob:      m.blob,
		Kind:      m.cfg.Kind,
		GraphName: m.cfg.GraphName,
		Soc:       m.cfg.Soc,
		Htp:       m.cfg.Htp,
	})
	if err != nil {
		return initError(err, "create backend resources")
	}
	m.bundle = bundle

	if err := bundle.Configure(); err != nil {
		return initError(err, "configure %s backend", m.cfg.Kind)
	}
	return nil
}

// Destroy releases every native resource and returns the manager to the
// uninitialized state. It is safe to call at any time, including before
// Init and after a failed Init.
func (m *Manager) Destroy() {
	klog.V(2).InfoS("Destroying backend", "backendType", m.cfg.Kind)

	old := m.bundle
	m.bundle = &backend.Bundle{}
	old.Release()

	m.logger.Release()
	m.logger = nil
	m.inputs = nil
	m.outputs = nil

	if err := m.impl.TerminateAllBackends(); err != nil {
		klog.ErrorS(err, "Failed to terminate driver backends")
	}
}

// IsAvailable reports whether the configured backend kind is usable at all.
// It does not depend on Init.
func (m *Manager) IsAvailable() bool {
	return m.cfg.Kind != config.KindUnknown
}

// IsOnlinePrepare reports whether graphs are built on device instead of
// being loaded from a context binary.
func (m *Manager) IsOnlinePrepare() bool {
	return m.cfg.OnlinePrepare
}

// State returns the initialization state.
func (m *Manager) State() backend.InitState {
	return m.bundle.State
}

// Config returns the configuration the manager was created with.
func (m *Manager) Config() config.BackendConfig {
	return m.cfg
}

// LibraryPath returns the driver library path after default resolution.
func (m *Manager) LibraryPath() string {
	return m.libraryPath
}
