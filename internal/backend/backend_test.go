package backend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accel/internal/config"
	"github.com/born-ml/accel/internal/driver"
	"github.com/born-ml/accel/internal/driver/refdrv"
	"github.com/born-ml/accel/internal/logging"
	"github.com/born-ml/accel/internal/parallel"
	"github.com/born-ml/accel/internal/wrapper"
)

type countingProvider struct {
	*refdrv.Provider
	loads      int
	terminates int
	failLoad   bool
}

func (p *countingProvider) Load(path string) (driver.Runtime, error) {
	p.loads++
	if p.failLoad {
		return nil, errors.New("no such library")
	}
	return p.Provider.Load(path)
}

func (p *countingProvider) TerminateAllBackends() error {
	p.terminates++
	return p.Provider.TerminateAllBackends()
}

func newProvider() *countingProvider {
	return &countingProvider{Provider: refdrv.NewProvider().WithParallel(parallel.Sequential())}
}

func newBundle(t *testing.T, kind config.BackendKind, blob []byte) (*Implementation, *Bundle) {
	t.Helper()
	impl := NewImplementation("libQnnHtp.so", newProvider())
	require.NoError(t, impl.Load())

	cfg := config.Default(kind)
	log := logging.New(impl.Runtime(), config.LogOff)
	b, err := Create(impl, log, Params{Blob: blob, Kind: kind, GraphName: cfg.GraphName, Soc: cfg.Soc, Htp: cfg.Htp})
	require.NoError(t, err)
	return impl, b
}

func f32(name string, typ driver.TensorType, dims ...uint32) *wrapper.Tensor {
	return wrapper.NewTensor(name, typ, driver.Float32, driver.QuantizeParams{}, dims, nil)
}

func TestImplementationLoad(t *testing.T) {
	p := newProvider()
	impl := NewImplementation("libQnnDsp.so", p)
	assert.False(t, impl.Loaded())
	assert.Nil(t, impl.Runtime())

	require.NoError(t, impl.Load())
	require.NoError(t, impl.Load())
	assert.Equal(t, 1, p.loads, "second load is a no-op")
	assert.True(t, impl.Loaded())
	assert.Equal(t, "libQnnDsp.so", impl.Path())

	require.NoError(t, impl.TerminateAllBackends())
	assert.False(t, impl.Loaded())
	assert.Equal(t, 1, p.terminates)

	require.NoError(t, impl.Load())
	assert.Equal(t, 2, p.loads)
}

func TestImplementationLoadErrors(t *testing.T) {
	assert.Error(t, NewImplementation("", newProvider()).Load())
	assert.Error(t, NewImplementation("libQnnHtp.so", nil).Load())

	p := newProvider()
	p.failLoad = true
	err := NewImplementation("libQnnHtp.so", p).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libQnnHtp.so")
}

func TestCreateRequiresLoadedDriver(t *testing.T) {
	impl := NewImplementation("libQnnHtp.so", newProvider())
	_, err := Create(impl, nil, Params{Kind: config.KindHTP, GraphName: "forward"})
	assert.Error(t, err)

	require.NoError(t, impl.Load())
	_, err = Create(impl, nil, Params{Kind: config.KindUnknown, GraphName: "forward"})
	assert.Error(t, err)
}

func TestCustomConfigs(t *testing.T) {
	cfg := config.Default(config.KindHTP)
	cfg.Htp.Precision = "fp16"

	htp := NewBackend(nil, nil, config.KindHTP, cfg.Htp)
	assert.Contains(t, htp.CustomConfigs(), driver.CustomConfig{Key: "htp.precision", Value: "fp16"})
	assert.Contains(t, htp.CustomConfigs(), driver.CustomConfig{Key: "htp.use_conv_hmx", Value: "true"})
	assert.Nil(t, NewBackend(nil, nil, config.KindGPU, cfg.Htp).CustomConfigs())

	dev := NewDevice(nil, nil, config.KindHTP, cfg.Soc)
	assert.Equal(t, []driver.CustomConfig{
		{Key: "soc.model", Value: "SM8550"},
		{Key: "soc.htp_arch", Value: "v73"},
		{Key: "soc.vtcm_size_mb", Value: "8"},
	}, dev.CustomConfigs())
	assert.Len(t, NewDevice(nil, nil, config.KindDSP, cfg.Soc).CustomConfigs(), 1)
	assert.Nil(t, NewDevice(nil, nil, config.KindCPU, cfg.Soc).CustomConfigs())
}

func TestBundleConfigureAndRelease(t *testing.T) {
	impl, b := newBundle(t, config.KindHTP, nil)
	assert.Equal(t, StateUninitialized, b.State)

	require.NoError(t, b.Configure())
	assert.Equal(t, StateInitialized, b.State)
	assert.NotZero(t, b.Backend.Handle())
	assert.NotZero(t, b.Device.Handle())
	assert.NotZero(t, b.Context.Handle())
	assert.NotZero(t, b.Graph.Handle())
	assert.False(t, b.Context.FromBinary())

	backendHandle := b.Backend.Handle()
	b.Release()
	assert.Equal(t, StateUninitialized, b.State)
	assert.Zero(t, b.Backend.Handle())
	assert.Zero(t, b.Graph.Handle())
	assert.Equal(t, driver.CodeInvalidHandle, impl.Runtime().BackendFree(backendHandle).Code())

	b.Release()
	var empty *Bundle
	empty.Release()
}

func TestBundleConfigureStopsAtFirstFailure(t *testing.T) {
	_, b := newBundle(t, config.KindHTP, []byte("corrupt"))

	err := b.Configure()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configure context")
	assert.Equal(t, driver.CodeContextBinaryInvalid, driver.Code(err))
	assert.Equal(t, StateLoading, b.State)
	assert.NotZero(t, b.Device.Handle(), "earlier steps are not rolled back")
	assert.Zero(t, b.Graph.Handle())

	b.Release()
	assert.Zero(t, b.Device.Handle())
}

func TestEnsureTensorIsIdempotent(t *testing.T) {
	_, b := newBundle(t, config.KindHTP, nil)
	require.NoError(t, b.Configure())

	x := f32("x", driver.TensorTypeAppWrite, 4)
	require.NoError(t, b.Graph.EnsureTensor(x))
	id := x.ID()
	assert.True(t, x.IsCreated())

	require.NoError(t, b.Graph.EnsureTensor(x))
	assert.Equal(t, id, x.ID())

	dup := f32("x", driver.TensorTypeAppWrite, 4)
	err := b.Graph.EnsureTensor(dup)
	require.Error(t, err)
	assert.Equal(t, driver.CodeTensorAlreadyExists, driver.Code(err))

	bad := f32("", driver.TensorTypeAppWrite, 4)
	assert.Error(t, b.Graph.EnsureTensor(bad))
}

func buildRelu(t *testing.T, g *Graph) {
	t.Helper()
	x := f32("x", driver.TensorTypeAppWrite, 3)
	y := f32("y", driver.TensorTypeAppRead, 3)
	op := wrapper.NewOp("relu", "Relu", []*wrapper.Tensor{x}, []*wrapper.Tensor{y})
	require.NoError(t, g.EnsureTensor(x))
	require.NoError(t, g.EnsureTensor(y))
	require.NoError(t, g.AddNode(op))
	require.NoError(t, g.Finalize())
}

func TestContextBinaryRestore(t *testing.T) {
	_, b := newBundle(t, config.KindHTP, nil)
	require.NoError(t, b.Configure())
	buildRelu(t, b.Graph)

	blob, err := b.Context.Binary()
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	_, restored := newBundle(t, config.KindHTP, blob)
	require.NoError(t, restored.Configure())
	assert.True(t, restored.Context.FromBinary())

	inputs, outputs, err := restored.Graph.IO()
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Len(t, outputs, 1)
	assert.Equal(t, "x", inputs[0].Name())
	assert.True(t, inputs[0].IsCreated())

	in := make([]byte, 12)
	driver.PutFloat32s(in, []float32{-1, 0, 2})
	require.NoError(t, inputs[0].SetData(in))
	outputs[0].AllocateData()

	require.NoError(t, restored.Graph.Execute(inputs, outputs))
	assert.Equal(t, []float32{0, 0, 2}, driver.Float32s(outputs[0].Data()))
}

func TestGraphErrorsCarryStatus(t *testing.T) {
	_, b := newBundle(t, config.KindGPU, nil)
	require.NoError(t, b.Configure())

	_, err := b.Context.Binary()
	assert.Equal(t, driver.CodeGraphNotFinalized, driver.Code(err))

	x := f32("x", driver.TensorTypeAppWrite, 3)
	y := f32("y", driver.TensorTypeAppRead, 3)
	op := wrapper.NewOp("relu", "Relu", []*wrapper.Tensor{x}, []*wrapper.Tensor{y})
	err = b.Graph.AddNode(op)
	require.Error(t, err)
	assert.Equal(t, driver.CodeGraphInvalidTensor, driver.Code(err))

	err = b.Graph.Execute(nil, nil)
	assert.Equal(t, driver.CodeGraphNotFinalized, driver.Code(err))

	unsupported := wrapper.NewOp("conv", "Conv2d", []*wrapper.Tensor{x}, []*wrapper.Tensor{y})
	assert.Equal(t, driver.CodeOpNotSupported, driver.Code(b.Backend.ValidateOp(unsupported)))
	assert.NoError(t, b.Backend.ValidateOp(op))
}

func TestInitStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "initialized", StateInitialized.String())
	assert.Equal(t, "InitState(9)", InitState(9).String())
}
