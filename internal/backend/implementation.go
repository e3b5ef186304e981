// Package backend holds the native resources one manager owns: the loaded
// driver library, and the backend, device, context and graph objects created
// from it. Each component is configured once and released explicitly; the
// Bundle groups them so they can be torn down together.
package backend

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/driver"
)

// Implementation owns the lifetime of a loaded driver library.
type Implementation struct {
	path     string
	provider driver.Provider
	rt       driver.Runtime
}

// NewImplementation prepares a driver library for loading. Nothing is opened
// until Load.
func NewImplementation(path string, provider driver.Provider) *Implementation {
	return &Implementation{path: path, provider: provider}
}

// Path returns the library path.
func (i *Implementation) Path() string {
	return i.path
}

// Load opens the driver library. Loading an already loaded library is a
// no-op.
func (i *Implementation) Load() error {
	if i.rt != nil {
		return nil
	}
	if i.path == "" {
		return errors.New("driver library path is empty")
	}
	if i.provider == nil {
		return fmt.Errorf("no driver provider for %s", i.path)
	}

	rt, err := i.provider.Load(i.path)
	if err != nil {
		return fmt.Errorf("load %s: %w", i.path, err)
	}
	i.rt = rt
	klog.V(4).InfoS("Driver library loaded", "path", i.path)
	return nil
}

// Loaded reports whether Load succeeded and the runtime is still live.
func (i *Implementation) Loaded() bool {
	return i.rt != nil
}

// Runtime returns the driver entry points, or nil before Load.
func (i *Implementation) Runtime() driver.Runtime {
	return i.rt
}

// TerminateAllBackends releases every backend instance the provider handed
// out. The runtime is dropped, so the next Load opens the library again.
func (i *Implementation) TerminateAllBackends() error {
	if i.provider == nil {
		return nil
	}
	i.rt = nil
	if err := i.provider.TerminateAllBackends(); err != nil {
		return fmt.Errorf("terminate backends of %s: %w", i.path, err)
	}
	return nil
}
