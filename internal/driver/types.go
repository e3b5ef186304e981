package driver

import (
	"encoding/binary"
	"math"
)

// DataType is the element type of a native tensor or scalar.
type DataType int

// Supported native data types.
const (
	DataTypeUndefined DataType = iota
	Float32
	Float16
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Bool
	SFixedPoint8
	UFixedPoint8
	UFixedPoint16
	SFixedPoint32
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Int8, Uint8, Bool, SFixedPoint8, UFixedPoint8:
		return 1
	case Float16, Int16, Uint16, UFixedPoint16:
		return 2
	case Float32, Int32, Uint32, SFixedPoint32:
		return 4
	case Int64, Uint64:
		return 8
	default:
		return 0
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Bool:
		return "bool"
	case SFixedPoint8:
		return "sfixed8"
	case UFixedPoint8:
		return "ufixed8"
	case UFixedPoint16:
		return "ufixed16"
	case SFixedPoint32:
		return "sfixed32"
	default:
		return "undefined"
	}
}

// TensorType describes who reads and writes a graph tensor.
type TensorType int

// Tensor roles inside a graph.
const (
	TensorTypeUndefined TensorType = iota
	TensorTypeAppWrite             // graph input, written by the client
	TensorTypeAppRead              // graph output, read by the client
	TensorTypeAppReadWrite
	TensorTypeNative // intermediate, owned by the driver
	TensorTypeStatic // constant data baked into the graph
)

// String returns the tensor type name.
func (tt TensorType) String() string {
	switch tt {
	case TensorTypeAppWrite:
		return "app_write"
	case TensorTypeAppRead:
		return "app_read"
	case TensorTypeAppReadWrite:
		return "app_readwrite"
	case TensorTypeNative:
		return "native"
	case TensorTypeStatic:
		return "static"
	default:
		return "undefined"
	}
}

// QuantEncoding selects how QuantizeParams is interpreted.
type QuantEncoding int

// Quantization encodings.
const (
	QuantUndefined QuantEncoding = iota
	QuantScaleOffset
	QuantAxisScaleOffset
)

// ScaleOffset is one (scale, offset) quantization pair.
type ScaleOffset struct {
	Scale  float32 `msgpack:"s"`
	Offset int32   `msgpack:"o"`
}

// QuantizeParams carries per-tensor or per-axis quantization.
type QuantizeParams struct {
	Encoding     QuantEncoding `msgpack:"enc"`
	ScaleOffset  ScaleOffset   `msgpack:"so"`
	Axis         int32         `msgpack:"axis"`
	ScaleOffsets []ScaleOffset `msgpack:"sos,omitempty"`
}

// Tensor is the native tensor descriptor exchanged with the driver.
// ID is assigned by the driver when the tensor is added to a graph.
type Tensor struct {
	ID       uint32         `msgpack:"id"`
	Name     string         `msgpack:"name"`
	Type     TensorType     `msgpack:"type"`
	DataType DataType       `msgpack:"dtype"`
	Quant    QuantizeParams `msgpack:"quant"`
	Dims     []uint32       `msgpack:"dims"`
	Data     []byte         `msgpack:"data,omitempty"`
}

// NumElements returns the product of the tensor dimensions.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Dims {
		n *= int(d)
	}
	return n
}

// ByteSize returns the buffer size needed to hold the tensor.
func (t *Tensor) ByteSize() int {
	return t.NumElements() * t.DataType.Size()
}

// Scalar is a typed scalar value packed into 64 bits.
type Scalar struct {
	DataType DataType `msgpack:"dtype"`
	Bits     uint64   `msgpack:"bits"`
}

// ScalarFloat32 packs a float32 scalar.
func ScalarFloat32(v float32) Scalar {
	return Scalar{DataType: Float32, Bits: uint64(math.Float32bits(v))}
}

// ScalarInt32 packs an int32 scalar.
func ScalarInt32(v int32) Scalar {
	return Scalar{DataType: Int32, Bits: uint64(uint32(v))}
}

// ScalarUint32 packs a uint32 scalar.
func ScalarUint32(v uint32) Scalar {
	return Scalar{DataType: Uint32, Bits: uint64(v)}
}

// ScalarBool packs a bool scalar.
func ScalarBool(v bool) Scalar {
	s := Scalar{DataType: Bool}
	if v {
		s.Bits = 1
	}
	return s
}

// Float32 returns the scalar as float32, converting integer payloads.
func (s Scalar) Float32() float32 {
	switch s.DataType {
	case Float32:
		return math.Float32frombits(uint32(s.Bits))
	case Int32:
		return float32(int32(uint32(s.Bits)))
	default:
		return float32(s.Bits)
	}
}

// Uint32 returns the scalar payload as uint32.
func (s Scalar) Uint32() uint32 {
	return uint32(s.Bits)
}

// Bool returns the scalar payload as bool.
func (s Scalar) Bool() bool {
	return s.Bits != 0
}

// ParamKind tags the payload of a Param.
type ParamKind int

// Parameter kinds.
const (
	ParamScalar ParamKind = iota + 1
	ParamTensor
)

// Param is one named operator parameter. Exactly one of Scalar or Tensor is
// meaningful, selected by Kind.
type Param struct {
	Kind   ParamKind `msgpack:"kind"`
	Name   string    `msgpack:"name"`
	Scalar Scalar    `msgpack:"scalar"`
	Tensor Tensor    `msgpack:"tensor"`
}

// OpConfig is the native description of one graph node.
type OpConfig struct {
	Name        string   `msgpack:"name"`
	PackageName string   `msgpack:"pkg"`
	TypeName    string   `msgpack:"type"`
	Params      []Param  `msgpack:"params"`
	Inputs      []Tensor `msgpack:"inputs"`
	Outputs     []Tensor `msgpack:"outputs"`
}

// Float32s reinterprets a little-endian byte buffer as float32 values.
func Float32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// PutFloat32s writes float32 values into a little-endian byte buffer.
func PutFloat32s(dst []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

// Uint32s reinterprets a little-endian byte buffer as uint32 values.
func Uint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}
