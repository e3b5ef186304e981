// Package dynlib opens vendor backend libraries at runtime through goffi
// and enumerates the interface providers they export. Turning a provider's
// function table into a driver.Runtime is delegated to a Binder registered
// for the provider's backend id.
package dynlib

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/goffi/ffi"
	"github.com/go-webgpu/goffi/types"
	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/driver"
)

// GetProvidersSymbol is the entry point every backend library exports.
const GetProvidersSymbol = "QnnInterface_getProviders"

var (
	// ErrNoProviders is returned when a library exports no interface providers.
	ErrNoProviders = errors.New("dynlib: no interface providers")

	// ErrNoBinding is returned when no Binder is registered for any provider
	// a library exports.
	ErrNoBinding = errors.New("dynlib: no binding for provider")
)

// Version is a semantic API version reported by a provider.
type Version struct {
	Major, Minor, Patch uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ProviderInfo describes one interface provider exported by a library.
type ProviderInfo struct {
	BackendID  uint32
	Name       string
	CoreAPI    Version
	BackendAPI Version

	// Table points at the provider's function table inside the library.
	Table unsafe.Pointer
}

// Binder builds a runtime from a provider's function table.
type Binder func(lib *Library, p ProviderInfo) (driver.Runtime, error)

// Library is an opened backend library.
type Library struct {
	path   string
	handle unsafe.Pointer
}

// Open loads the shared library at path.
func Open(path string) (*Library, error) {
	h, err := ffi.LoadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("dynlib: load %s: %w", path, err)
	}
	return &Library{path: path, handle: h}, nil
}

// Path returns the path the library was opened from.
func (l *Library) Path() string {
	return l.path
}

// Symbol resolves an exported symbol.
func (l *Library) Symbol(name string) (unsafe.Pointer, error) {
	if l.handle == nil {
		return nil, fmt.Errorf("dynlib: %s is closed", l.path)
	}
	sym, err := ffi.GetSymbol(l.handle, name)
	if err != nil {
		return nil, fmt.Errorf("dynlib: resolve %s in %s: %w", name, l.path, err)
	}
	return sym, nil
}

// Close unloads the library. Closing twice is a no-op.
func (l *Library) Close() error {
	if l.handle == nil {
		return nil
	}
	err := ffi.FreeLibrary(l.handle)
	l.handle = nil
	return err
}

// Layout of the provider struct: backend id, name pointer, then core and
// backend API versions, followed by the function table.
const (
	offsetName       = 8
	offsetCoreAPI    = 16
	offsetBackendAPI = 28
	offsetTable      = 40
)

// Providers calls the library's provider enumeration entry point.
func (l *Library) Providers() ([]ProviderInfo, error) {
	sym, err := l.Symbol(GetProvidersSymbol)
	if err != nil {
		return nil, err
	}

	var cif types.CallInterface
	err = ffi.PrepareCallInterface(&cif, types.DefaultCall, types.UInt64TypeDescriptor,
		[]*types.TypeDescriptor{types.PointerTypeDescriptor, types.PointerTypeDescriptor})
	if err != nil {
		return nil, fmt.Errorf("dynlib: prepare %s: %w", GetProvidersSymbol, err)
	}

	var (
		list unsafe.Pointer
		n    uint32
		ret  uint64
	)
	listArg := unsafe.Pointer(&list)
	nArg := unsafe.Pointer(&n)
	err = ffi.CallFunction(&cif, sym, unsafe.Pointer(&ret), []unsafe.Pointer{
		unsafe.Pointer(&listArg),
		unsafe.Pointer(&nArg),
	})
	if err != nil {
		return nil, fmt.Errorf("dynlib: call %s: %w", GetProvidersSymbol, err)
	}
	if st := driver.Status(ret); !st.OK() {
		return nil, st.Err(GetProvidersSymbol)
	}
	if list == nil || n == 0 {
		return nil, ErrNoProviders
	}

	infos := make([]ProviderInfo, 0, n)
	for i := range uintptr(n) {
		p := *(*unsafe.Pointer)(unsafe.Add(list, i*unsafe.Sizeof(uintptr(0))))
		if p == nil {
			continue
		}
		infos = append(infos, readProvider(p))
	}
	return infos, nil
}

func readProvider(p unsafe.Pointer) ProviderInfo {
	return ProviderInfo{
		BackendID:  *(*uint32)(p),
		Name:       cString(*(*unsafe.Pointer)(unsafe.Add(p, offsetName))),
		CoreAPI:    *(*Version)(unsafe.Add(p, offsetCoreAPI)),
		BackendAPI: *(*Version)(unsafe.Add(p, offsetBackendAPI)),
		Table:      unsafe.Add(p, offsetTable),
	}
}

// cString copies a NUL-terminated string.
func cString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	var n uintptr
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// Loader is a driver.Provider backed by real shared libraries.
type Loader struct {
	mu      sync.Mutex
	binders map[uint32]Binder
	libs    []*Library
}

var _ driver.Provider = (*Loader)(nil)

// NewLoader creates a loader with no bindings.
func NewLoader() *Loader {
	return &Loader{binders: make(map[uint32]Binder)}
}

// Bind registers the binder used for providers with the given backend id.
func (l *Loader) Bind(backendID uint32, b Binder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.binders[backendID] = b
}

// Bound reports whether any binder is registered.
func (l *Loader) Bound() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.binders) > 0
}

// Load opens the library, enumerates its providers and binds the first one
// a Binder is registered for. The library stays open until
// TerminateAllBackends.
//
// A loader without binders fails with ErrNoBinding before touching the
// library.
func (l *Loader) Load(path string) (driver.Runtime, error) {
	if !l.Bound() {
		return nil, fmt.Errorf("%w: no binder registered with Bind, cannot load %s", ErrNoBinding, path)
	}

	lib, err := Open(path)
	if err != nil {
		return nil, err
	}
	providers, err := lib.Providers()
	if err != nil {
		_ = lib.Close()
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range providers {
		klog.V(4).InfoS("Found backend provider", "library", path, "provider", p.Name,
			"backendID", p.BackendID, "coreAPI", p.CoreAPI.String(), "backendAPI", p.BackendAPI.String())
		bind, ok := l.binders[p.BackendID]
		if !ok {
			continue
		}
		rt, err := bind(lib, p)
		if err != nil {
			_ = lib.Close()
			return nil, fmt.Errorf("dynlib: bind %s: %w", p.Name, err)
		}
		l.libs = append(l.libs, lib)
		return rt, nil
	}

	_ = lib.Close()
	return nil, fmt.Errorf("%w in %s", ErrNoBinding, path)
}

// TerminateAllBackends unloads every library opened by Load.
func (l *Loader) TerminateAllBackends() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for _, lib := range l.libs {
		if err := lib.Close(); err != nil {
			errs = append(errs, fmt.Errorf("dynlib: close %s: %w", lib.path, err))
		}
	}
	l.libs = nil
	return errors.Join(errs...)
}
