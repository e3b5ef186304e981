// Package wrapper holds the Go-side descriptors for graph tensors, operator
// parameters and operators, and assembles their native representations.
//
// Descriptors are shared by pointer: one *Tensor may be referenced from the
// graph input list, several operators and a tensor-valued parameter at the
// same time, and lives as long as its longest holder.
package wrapper

import (
	"fmt"

	"github.com/born-ml/accel/internal/driver"
)

// Tensor wraps a native tensor descriptor and the state of its registration
// in a graph.
type Tensor struct {
	native  driver.Tensor
	created bool
}

// NewTensor creates a tensor descriptor. dims and data are copied.
func NewTensor(name string, typ driver.TensorType, dt driver.DataType, quant driver.QuantizeParams, dims []uint32, data []byte) *Tensor {
	t := &Tensor{
		native: driver.Tensor{
			Name:     name,
			Type:     typ,
			DataType: dt,
			Quant:    quant,
			Dims:     append([]uint32(nil), dims...),
		},
	}
	if data != nil {
		t.native.Data = append([]byte(nil), data...)
	}
	return t
}

// FromNative wraps a tensor obtained from graph introspection. The tensor is
// already part of a finalized graph, so it counts as created.
func FromNative(nt driver.Tensor) *Tensor {
	t := &Tensor{}
	t.UpdateMeta(nt)
	t.created = true
	return t
}

// UpdateMeta copies identity and metadata (not data) from a native tensor.
func (t *Tensor) UpdateMeta(nt driver.Tensor) {
	t.native.ID = nt.ID
	t.native.Name = nt.Name
	t.native.Type = nt.Type
	t.native.DataType = nt.DataType
	t.native.Quant = nt.Quant
	t.native.Dims = append([]uint32(nil), nt.Dims...)
}

// Name returns the tensor name.
func (t *Tensor) Name() string { return t.native.Name }

// ID returns the driver-assigned id, valid once IsCreated is true.
func (t *Tensor) ID() uint32 { return t.native.ID }

// Type returns the tensor role.
func (t *Tensor) Type() driver.TensorType { return t.native.Type }

// DataType returns the element type.
func (t *Tensor) DataType() driver.DataType { return t.native.DataType }

// Dims returns the tensor dimensions. The slice must not be modified.
func (t *Tensor) Dims() []uint32 { return t.native.Dims }

// Quant returns the quantization parameters.
func (t *Tensor) Quant() driver.QuantizeParams { return t.native.Quant }

// ByteSize returns the size of the tensor buffer in bytes.
func (t *Tensor) ByteSize() int { return t.native.ByteSize() }

// IsCreated reports whether the tensor is registered in a graph.
func (t *Tensor) IsCreated() bool { return t.created }

// MarkCreated records the id the driver assigned on registration.
func (t *Tensor) MarkCreated(id uint32) {
	t.native.ID = id
	t.created = true
}

// Native returns the native descriptor. The data buffer is shared.
func (t *Tensor) Native() driver.Tensor {
	return t.native
}

// Data returns the bound buffer, or nil.
func (t *Tensor) Data() []byte { return t.native.Data }

// SetData binds a caller buffer. Its length must match ByteSize.
func (t *Tensor) SetData(data []byte) error {
	if len(data) != t.ByteSize() {
		return fmt.Errorf("tensor %q: buffer has %d bytes, want %d", t.Name(), len(data), t.ByteSize())
	}
	t.native.Data = data
	return nil
}

// AllocateData binds a zeroed buffer of ByteSize if none is bound yet and
// returns the bound buffer.
func (t *Tensor) AllocateData() []byte {
	if t.native.Data == nil {
		t.native.Data = make([]byte, t.ByteSize())
	}
	return t.native.Data
}

// Validate checks that the descriptor can be handed to the driver.
func (t *Tensor) Validate() error {
	if t.native.Name == "" {
		return fmt.Errorf("tensor has no name")
	}
	if t.native.DataType.Size() == 0 {
		return fmt.Errorf("tensor %q: unsupported data type %s", t.native.Name, t.native.DataType)
	}
	if len(t.native.Dims) == 0 {
		return fmt.Errorf("tensor %q: rank 0 is not supported", t.native.Name)
	}
	for i, d := range t.native.Dims {
		if d == 0 {
			return fmt.Errorf("tensor %q: invalid dimension at index %d: 0", t.native.Name, i)
		}
	}
	if t.native.Type == driver.TensorTypeStatic && len(t.native.Data) != t.ByteSize() {
		return fmt.Errorf("tensor %q: static data has %d bytes, want %d", t.native.Name, len(t.native.Data), t.ByteSize())
	}
	return nil
}

// Natives collects the native descriptors of a tensor list, in order.
func Natives(tensors []*Tensor) []driver.Tensor {
	out := make([]driver.Tensor, len(tensors))
	for i, t := range tensors {
		out[i] = t.Native()
	}
	return out
}
