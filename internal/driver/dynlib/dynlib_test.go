package dynlib

import (
	"errors"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/accel/internal/driver"
)

func TestOpenMissingLibrary(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "libQnnMissing.so"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libQnnMissing.so")
}

func TestLoaderMissingLibrary(t *testing.T) {
	l := NewLoader()
	l.Bind(6, func(*Library, ProviderInfo) (driver.Runtime, error) {
		return nil, errors.New("unreachable")
	})
	require.True(t, l.Bound())

	_, err := l.Load(filepath.Join(t.TempDir(), "libQnnHtp.so"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoBinding)
	assert.Contains(t, err.Error(), "libQnnHtp.so")
	assert.NoError(t, l.TerminateAllBackends())
}

func TestLoaderWithoutBinders(t *testing.T) {
	l := NewLoader()
	assert.False(t, l.Bound())

	// The path does not exist: the loader must fail before opening it.
	_, err := l.Load(filepath.Join(t.TempDir(), "libQnnHtp.so"))
	require.ErrorIs(t, err, ErrNoBinding)
	assert.Contains(t, err.Error(), "Bind")
	assert.NoError(t, l.TerminateAllBackends())
}

func TestClosedLibrary(t *testing.T) {
	lib := &Library{path: "libQnnCpu.so"}
	assert.NoError(t, lib.Close())
	_, err := lib.Symbol(GetProvidersSymbol)
	assert.Error(t, err)
	assert.Equal(t, "libQnnCpu.so", lib.Path())
}

func TestCString(t *testing.T) {
	buf := []byte("QnnHtp\x00garbage")
	assert.Equal(t, "QnnHtp", cString(unsafe.Pointer(&buf[0])))
	assert.Equal(t, "", cString(nil))
}

func TestReadProvider(t *testing.T) {
	name := []byte("HTP_QTI_AISW\x00")

	// backend id, padding, name pointer, core version, backend version, table.
	type provider struct {
		backendID  uint32
		_          uint32
		name       unsafe.Pointer
		core       Version
		backend    Version
		firstEntry uintptr
	}
	p := provider{
		backendID: 6,
		name:      unsafe.Pointer(&name[0]),
		core:      Version{2, 14, 0},
		backend:   Version{5, 14, 0},
	}

	info := readProvider(unsafe.Pointer(&p))
	assert.Equal(t, uint32(6), info.BackendID)
	assert.Equal(t, "HTP_QTI_AISW", info.Name)
	assert.Equal(t, "2.14.0", info.CoreAPI.String())
	assert.Equal(t, Version{5, 14, 0}, info.BackendAPI)
	assert.Equal(t, unsafe.Pointer(&p.firstEntry), info.Table)
}
