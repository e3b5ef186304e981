package backend

import (
	"errors"
	"fmt"

	"github.com/born-ml/accel/internal/config"
	"github.com/born-ml/accel/internal/logging"
)

// InitState tracks how far a bundle got through configuration.
type InitState int

// Bundle states.
const (
	StateUninitialized InitState = iota
	StateLoading
	StateInitialized
)

// String returns the state name.
func (s InitState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateInitialized:
		return "initialized"
	default:
		return fmt.Sprintf("InitState(%d)", int(s))
	}
}

// Bundle groups the four native components of one manager. It is never
// reconfigured: teardown releases it and a fresh empty bundle takes its
// place.
type Bundle struct {
	Backend *Backend
	Device  *Device
	Context *Context
	Graph   *Graph
	State   InitState
}

// Params carries what Create needs besides the driver and logger.
type Params struct {
	Blob      []byte
	Kind      config.BackendKind
	GraphName string
	Soc       config.SocInfo
	Htp       config.HtpOptions
}

// Create builds an unconfigured bundle bound to a loaded driver.
func Create(impl *Implementation, log *logging.Logger, p Params) (*Bundle, error) {
	if impl == nil || !impl.Loaded() {
		return nil, errors.New("driver library is not loaded")
	}
	if p.Kind == config.KindUnknown {
		return nil, fmt.Errorf("unsupported backend kind %s", p.Kind)
	}

	rt := impl.Runtime()
	b := &Bundle{}
	b.Backend = NewBackend(rt, log, p.Kind, p.Htp)
	b.Device = NewDevice(rt, log, p.Kind, p.Soc)
	b.Context = NewContext(rt, b.Backend, b.Device, p.Blob)
	b.Graph = NewGraph(rt, b.Context, p.GraphName)
	return b, nil
}

// Configure sets up backend, device, context and graph in that order and
// stops at the first failure. Components configured before the failure stay
// configured; Release tears them down.
func (b *Bundle) Configure() error {
	b.State = StateLoading
	steps := []struct {
		name      string
		configure func() error
	}{
		{"backend", b.Backend.Configure},
		{"device", b.Device.Configure},
		{"context", b.Context.Configure},
		{"graph", b.Graph.Configure},
	}
	for _, s := range steps {
		if err := s.configure(); err != nil {
			return fmt.Errorf("configure %s: %w", s.name, err)
		}
	}
	b.State = StateInitialized
	return nil
}

// Release frees the components in reverse order of configuration. It is
// safe on an empty or partially configured bundle.
func (b *Bundle) Release() {
	if b == nil {
		return
	}
	b.Graph.Release()
	b.Context.Release()
	b.Device.Release()
	b.Backend.Release()
	b.State = StateUninitialized
}
