// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package accel

import (
	"github.com/born-ml/accel/internal/backend"
	"github.com/born-ml/accel/internal/config"
	"github.com/born-ml/accel/internal/ctxbin"
	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/driver/dynlib"
	"github.com/born-ml/accel/internal/driver/refdrv"
	"github.com/born-ml/accel/internal/ir"
	"github.com/born-ml/accel/internal/manager"
	"github.com/born-ml/accel/internal/wrapper"
)

// Manager drives one accelerator backend through its lifecycle.
type Manager = manager.Manager

// Option configures a Manager.
type Option = manager.Option

// Errors returned by Manager. Use errors.Is to test for them.
var (
	ErrInit     = manager.ErrInit
	ErrInternal = manager.ErrInternal
)

// New creates a manager. blob is a previously compiled context binary, or
// nil.
func New(cfg Config, blob []byte, opts ...Option) *Manager {
	return manager.New(cfg, blob, opts...)
}

// WithProvider overrides the driver provider.
func WithProvider(p Provider) Option {
	return manager.WithProvider(p)
}

// InitState is the initialization state of a Manager.
type InitState = backend.InitState

// Initialization states.
const (
	StateUninitialized = backend.StateUninitialized
	StateLoading       = backend.StateLoading
	StateInitialized   = backend.StateInitialized
)

// Config is the configuration of one manager.
type Config = config.BackendConfig

// BackendKind selects the accelerator family.
type BackendKind = config.BackendKind

// Backend kinds.
const (
	KindUnknown = config.KindUnknown
	KindCPU     = config.KindCPU
	KindGPU     = config.KindGPU
	KindDSP     = config.KindDSP
	KindHTP     = config.KindHTP
)

// LogLevel controls how much driver logging is forwarded.
type LogLevel = config.LogLevel

// Log levels, least to most verbose.
const (
	LogOff     = config.LogOff
	LogError   = config.LogError
	LogWarn    = config.LogWarn
	LogInfo    = config.LogInfo
	LogVerbose = config.LogVerbose
	LogDebug   = config.LogDebug
)

// Driver names for Config.Driver.
const (
	DriverNative    = config.DriverNative
	DriverReference = config.DriverReference
)

// DefaultConfig returns the default configuration for kind.
func DefaultConfig(kind BackendKind) Config {
	return config.Default(kind)
}

// LoadConfig reads a configuration from an .hcl, .yaml or .yml file.
func LoadConfig(path string) (Config, error) {
	return config.LoadFile(path)
}

// Provider loads driver libraries.
type Provider = driver.Provider

// NativeLoader opens driver shared libraries. It binds a library through
// the Binder registered for the backend id its provider reports, so register
// one with Bind and pass the loader to WithProvider. A loader without
// binders fails every Init.
type NativeLoader = dynlib.Loader

// Binder builds a runtime from a provider's function table.
type Binder = dynlib.Binder

// NewNativeLoader returns a loader for driver shared libraries.
func NewNativeLoader() *NativeLoader {
	return dynlib.NewLoader()
}

// NewReferenceProvider returns the in-process reference driver.
func NewReferenceProvider() *refdrv.Provider {
	return refdrv.NewProvider()
}

// Tensor is a graph tensor descriptor. One *Tensor may be shared by several
// ops.
type Tensor = wrapper.Tensor

// Op is one graph node.
type Op = wrapper.Op

// Param is one operator parameter.
type Param = wrapper.Param

// Descriptor types used to build tensors and params.
type (
	DataType       = driver.DataType
	TensorType     = driver.TensorType
	QuantizeParams = driver.QuantizeParams
	Scalar         = driver.Scalar
)

// Tensor types.
const (
	TensorTypeAppWrite     = driver.TensorTypeAppWrite
	TensorTypeAppRead      = driver.TensorTypeAppRead
	TensorTypeAppReadWrite = driver.TensorTypeAppReadWrite
	TensorTypeNative       = driver.TensorTypeNative
	TensorTypeStatic       = driver.TensorTypeStatic
)

// Common data types.
const (
	Float32 = driver.Float32
	Int32   = driver.Int32
	Uint32  = driver.Uint32
	Uint8   = driver.Uint8
	Bool    = driver.Bool
)

// Float32s decodes a little-endian float32 buffer.
func Float32s(data []byte) []float32 {
	return driver.Float32s(data)
}

// PutFloat32s encodes values into dst, which must hold 4*len(values) bytes.
func PutFloat32s(dst []byte, values []float32) {
	driver.PutFloat32s(dst, values)
}

// NewTensor creates a tensor descriptor.
func NewTensor(name string, typ TensorType, dt DataType, quant QuantizeParams, dims []uint32, data []byte) *Tensor {
	return wrapper.NewTensor(name, typ, dt, quant, dims, data)
}

// NewOp creates an op in the default package.
func NewOp(name, typeName string, inputs, outputs []*Tensor, params ...*Param) *Op {
	return wrapper.NewOp(name, typeName, inputs, outputs, params...)
}

// NewScalarParam creates a scalar parameter.
func NewScalarParam(name string, s Scalar) *Param {
	return wrapper.NewScalarParam(name, s)
}

// NewTensorParam creates a parameter referring to t.
func NewTensorParam(name string, t *Tensor) *Param {
	return wrapper.NewTensorParam(name, t)
}

// Graph is a graph description loaded from HCL.
type Graph = ir.Graph

// LoadGraph reads a graph description file.
func LoadGraph(path string) (*Graph, error) {
	return ir.LoadFile(path)
}

// ContextBinaryFile is a context binary with its checksummed header.
type ContextBinaryFile = ctxbin.File

// NewContextBinaryFile wraps a compiled context binary for cfg.
func NewContextBinaryFile(payload []byte, cfg Config) *ContextBinaryFile {
	f := ctxbin.New(payload, ctxbin.NewHeader(cfg.GraphName, cfg.Kind.String(), cfg.Soc.Model))
	if cfg.OnlinePrepare {
		f.Flags |= ctxbin.FlagOnlinePrepare
	}
	return f
}

// MarshalContextBinary encodes f.
func MarshalContextBinary(f *ContextBinaryFile) ([]byte, error) {
	return ctxbin.Marshal(f)
}

// UnmarshalContextBinary decodes and verifies an encoded context binary.
func UnmarshalContextBinary(data []byte) (*ContextBinaryFile, error) {
	return ctxbin.Unmarshal(data)
}
