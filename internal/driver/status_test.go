package driver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErr(t *testing.T) {
	assert.NoError(t, Success.Err("GraphFinalize"))

	err := StatusOf(CodeGraphInvalidNode).Err("GraphAddNode")
	require.Error(t, err)
	assert.Equal(t, "GraphAddNode failed with error 6003", err.Error())

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, CodeGraphInvalidNode, se.Status.Code())
}

func TestCodeUnwraps(t *testing.T) {
	err := fmt.Errorf("compile: %w", StatusOf(CodeOpNotSupported).Err("BackendValidateOpConfig"))
	assert.Equal(t, CodeOpNotSupported, Code(err))
	assert.Equal(t, uint16(0), Code(errors.New("plain")))
}

func TestStatusCodeMasksHighBits(t *testing.T) {
	s := Status(0xabcd_0000_0000 | uint64(CodeMemAlloc))
	assert.Equal(t, CodeMemAlloc, s.Code())
	assert.False(t, s.OK())
}

func TestDataTypeSize(t *testing.T) {
	tests := []struct {
		dt   DataType
		size int
	}{
		{Float32, 4},
		{Float16, 2},
		{UFixedPoint8, 1},
		{Int64, 8},
		{DataTypeUndefined, 0},
	}
	for _, tt := range tests {
		t.Run(tt.dt.String(), func(t *testing.T) {
			assert.Equal(t, tt.size, tt.dt.Size())
		})
	}
}

func TestScalarRoundTrip(t *testing.T) {
	assert.InDelta(t, 6.5, ScalarFloat32(6.5).Float32(), 1e-6)
	assert.InDelta(t, -3, ScalarInt32(-3).Float32(), 1e-6)
	assert.Equal(t, uint32(7), ScalarUint32(7).Uint32())
	assert.True(t, ScalarBool(true).Bool())
	assert.False(t, ScalarBool(false).Bool())
}

func TestFloat32Buffers(t *testing.T) {
	buf := make([]byte, 12)
	PutFloat32s(buf, []float32{1, -2, 3.5})
	assert.Equal(t, []float32{1, -2, 3.5}, Float32s(buf))

	tensor := Tensor{DataType: Float32, Dims: []uint32{2, 3}}
	assert.Equal(t, 6, tensor.NumElements())
	assert.Equal(t, 24, tensor.ByteSize())
}
