package backend

import (
	"k8s.io/klog/v2"

	"github.com/born-ml/accel/internal/driver"
)

// Context is the driver's execution context. It is created empty, or
// deserialized from a context binary when one was supplied.
type Context struct {
	rt      driver.Runtime
	backend *Backend
	device  *Device
	blob    []byte
	handle  driver.ContextHandle
}

// NewContext creates an unconfigured context component. A non-empty blob
// makes Configure restore the context from it.
func NewContext(rt driver.Runtime, backend *Backend, device *Device, blob []byte) *Context {
	return &Context{rt: rt, backend: backend, device: device, blob: blob}
}

// FromBinary reports whether the context is restored from a context binary.
func (c *Context) FromBinary() bool {
	return len(c.blob) > 0
}

// Configure creates or restores the native context.
func (c *Context) Configure() error {
	var (
		h  driver.ContextHandle
		st driver.Status
		op string
	)
	if c.FromBinary() {
		op = "ContextCreateFromBinary"
		h, st = c.rt.ContextCreateFromBinary(c.backend.Handle(), c.device.Handle(), nil, c.blob)
	} else {
		op = "ContextCreate"
		h, st = c.rt.ContextCreate(c.backend.Handle(), c.device.Handle(), nil)
	}
	if err := st.Err(op); err != nil {
		klog.ErrorS(err, "Failed to create context", "fromBinary", c.FromBinary(), "code", st.Code())
		return err
	}
	c.handle = h
	klog.V(4).InfoS("Context created", "fromBinary", c.FromBinary(), "blobSize", len(c.blob))
	return nil
}

// Handle returns the native handle, or 0 before Configure.
func (c *Context) Handle() driver.ContextHandle {
	return c.handle
}

// Binary serializes the context and every finalized graph in it.
func (c *Context) Binary() ([]byte, error) {
	size, st := c.rt.ContextGetBinarySize(c.handle)
	if err := st.Err("ContextGetBinarySize"); err != nil {
		klog.ErrorS(err, "Failed to get context binary size", "code", st.Code())
		return nil, err
	}

	buf := make([]byte, size)
	n, st := c.rt.ContextGetBinary(c.handle, buf)
	if err := st.Err("ContextGetBinary"); err != nil {
		klog.ErrorS(err, "Failed to get context binary", "code", st.Code())
		return nil, err
	}
	return buf[:n], nil
}

// Release frees the native context and the graphs it owns.
func (c *Context) Release() {
	if c == nil || c.handle == 0 {
		return
	}
	if st := c.rt.ContextFree(c.handle); !st.OK() {
		klog.Warningf("failed to free context, error %d", st.Code())
	}
	c.handle = 0
}
