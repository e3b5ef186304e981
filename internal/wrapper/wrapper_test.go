package wrapper

import (
	"testing"

	"github.com/born-ml/accel/internal/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFloatTensor(name string, typ driver.TensorType, dims ...uint32) *Tensor {
	return NewTensor(name, typ, driver.Float32, driver.QuantizeParams{}, dims, nil)
}

func TestTensorValidate(t *testing.T) {
	require.NoError(t, newFloatTensor("x", driver.TensorTypeAppWrite, 2, 3).Validate())

	assert.Error(t, newFloatTensor("", driver.TensorTypeAppWrite, 2).Validate())
	assert.Error(t, newFloatTensor("x", driver.TensorTypeAppWrite).Validate())
	assert.Error(t, newFloatTensor("x", driver.TensorTypeAppWrite, 2, 0).Validate())
	assert.Error(t, NewTensor("x", driver.TensorTypeNative, driver.DataTypeUndefined, driver.QuantizeParams{}, []uint32{1}, nil).Validate())

	static := newFloatTensor("w", driver.TensorTypeStatic, 2)
	assert.Error(t, static.Validate(), "static tensor needs data")
	require.NoError(t, static.SetData(make([]byte, 8)))
	assert.NoError(t, static.Validate())
}

func TestTensorSetData(t *testing.T) {
	x := newFloatTensor("x", driver.TensorTypeAppWrite, 4)
	assert.Error(t, x.SetData(make([]byte, 3)))
	require.NoError(t, x.SetData(make([]byte, 16)))
	assert.Len(t, x.Data(), 16)
}

func TestTensorAllocateData(t *testing.T) {
	x := newFloatTensor("x", driver.TensorTypeAppRead, 2, 2)
	buf := x.AllocateData()
	assert.Len(t, buf, 16)

	buf[0] = 9
	assert.Equal(t, byte(9), x.AllocateData()[0], "existing buffer is kept")
}

func TestNewTensorCopiesInputs(t *testing.T) {
	dims := []uint32{2, 2}
	x := newFloatTensor("x", driver.TensorTypeAppWrite, dims...)
	dims[0] = 7
	assert.Equal(t, []uint32{2, 2}, x.Dims())
}

func TestFromNative(t *testing.T) {
	nt := driver.Tensor{ID: 5, Name: "out", Type: driver.TensorTypeAppRead, DataType: driver.Float32, Dims: []uint32{3}}
	x := FromNative(nt)

	assert.True(t, x.IsCreated())
	assert.Equal(t, uint32(5), x.ID())
	assert.Equal(t, "out", x.Name())
	assert.Nil(t, x.Data())
}

func TestMarkCreated(t *testing.T) {
	x := newFloatTensor("x", driver.TensorTypeAppWrite, 1)
	assert.False(t, x.IsCreated())
	x.MarkCreated(11)
	assert.True(t, x.IsCreated())
	assert.Equal(t, uint32(11), x.Native().ID)
}

func TestScalarParamPopulate(t *testing.T) {
	p := NewScalarParam("min_value", driver.ScalarFloat32(0))
	assert.Nil(t, p.Tensor())

	_, ok := p.Native()
	assert.False(t, ok)

	require.NoError(t, p.Populate())
	np, ok := p.Native()
	require.True(t, ok)
	assert.Equal(t, driver.ParamScalar, np.Kind)
	assert.Equal(t, "min_value", np.Name)
}

func TestScalarParamPopulateRejectsUndefined(t *testing.T) {
	p := NewScalarParam("bad", driver.Scalar{})
	assert.Error(t, p.Populate())
	_, ok := p.Native()
	assert.False(t, ok)
}

func TestTensorParamFailedPopulateKeepsCommittedValue(t *testing.T) {
	perm := NewTensor("perm", driver.TensorTypeStatic, driver.Uint32, driver.QuantizeParams{}, []uint32{2}, []byte{1, 0, 0, 0, 0, 0, 0, 0})
	p := NewTensorParam("perm", perm)
	require.NoError(t, p.Populate())
	before, _ := p.Native()

	// Break the referenced tensor: the next populate fails and must not
	// overwrite the committed native value.
	require.Error(t, perm.SetData([]byte{1}))
	perm.native.Data = []byte{1}
	require.Error(t, p.Populate())

	after, ok := p.Native()
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestOpConfigAssembly(t *testing.T) {
	a := newFloatTensor("a", driver.TensorTypeAppWrite, 2)
	b := newFloatTensor("b", driver.TensorTypeAppWrite, 2)
	out := newFloatTensor("out", driver.TensorTypeAppRead, 2)
	lo := NewScalarParam("min_value", driver.ScalarFloat32(0))

	op := NewOp("add0", "ElementWiseAdd", []*Tensor{a, b}, []*Tensor{out}, lo).WithPackage("custom.pkg")
	require.NoError(t, lo.Populate())
	a.MarkCreated(1)

	cfg := op.OpConfig()
	assert.Equal(t, "add0", cfg.Name)
	assert.Equal(t, "custom.pkg", cfg.PackageName)
	assert.Equal(t, "ElementWiseAdd", cfg.TypeName)
	require.Len(t, cfg.Inputs, 2)
	assert.Equal(t, uint32(1), cfg.Inputs[0].ID)
	require.Len(t, cfg.Outputs, 1)
	require.Len(t, cfg.Params, 1)
	assert.Equal(t, "min_value", cfg.Params[0].Name)
}

func TestSharedTensorAcrossOps(t *testing.T) {
	w := NewTensor("w", driver.TensorTypeStatic, driver.Float32, driver.QuantizeParams{}, []uint32{1}, make([]byte, 4))
	p := NewTensorParam("weights", w)
	op := NewOp("n", "Identity", []*Tensor{w}, nil, p)

	w.MarkCreated(3)
	assert.Same(t, w, op.Inputs()[0])
	assert.Same(t, w, op.Params()[0].Tensor())
	assert.True(t, op.Params()[0].Tensor().IsCreated())
}
