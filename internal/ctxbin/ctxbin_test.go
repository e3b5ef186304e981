package ctxbin

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *File {
	h := NewHeader("forward", "htp", "SM8550")
	h.Metadata = map[string]string{"driver": "reference"}
	return New(ContextBinary("opaque driver bytes"), h)
}

func TestNewHeader(t *testing.T) {
	h := NewHeader("forward", "dsp", "")
	assert.Equal(t, FormatVersion, h.FormatVersion)
	_, err := uuid.Parse(h.BuildID)
	assert.NoError(t, err)
	assert.False(t, h.CreatedAt.IsZero())

	other := NewHeader("forward", "dsp", "")
	assert.NotEqual(t, h.BuildID, other.BuildID)
}

func TestMarshalRoundTrip(t *testing.T) {
	f := sample()
	f.Flags = FlagOnlinePrepare

	data, err := Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, MagicBytes, string(data[:4]))

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, f.Payload, got.Payload)
	assert.Equal(t, 19, got.Payload.Size())
	assert.Equal(t, "forward", got.Header.GraphName)
	assert.Equal(t, "htp", got.Header.BackendKind)
	assert.Equal(t, f.Header.BuildID, got.Header.BuildID)
	assert.Equal(t, int64(19), got.Header.PayloadSize)
	assert.True(t, f.Header.CreatedAt.Equal(got.Header.CreatedAt))
	assert.Equal(t, FlagOnlinePrepare|FlagHasMetadata, got.Flags)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forward.actx")
	require.NoError(t, Save(path, sample()))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ContextBinary("opaque driver bytes"), got.Payload)

	_, err = Load(filepath.Join(t.TempDir(), "missing.actx"))
	assert.Error(t, err)
}

func TestChecksumMismatch(t *testing.T) {
	data, err := Marshal(sample())
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff

	_, err = Unmarshal(data)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestInvalidMagic(t *testing.T) {
	data, err := Marshal(sample())
	require.NoError(t, err)
	copy(data, "BORN")

	_, err = Unmarshal(data)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestUnsupportedVersion(t *testing.T) {
	data, err := Marshal(sample())
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[4:8], 7)

	_, err = Unmarshal(data)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestTruncated(t *testing.T) {
	data, err := Marshal(sample())
	require.NoError(t, err)

	for _, n := range []int{2, 10, FixedHeaderSize, len(data) - 1} {
		_, err := Unmarshal(data[:n])
		assert.ErrorIs(t, err, ErrTruncated, "length %d", n)
	}
}

func TestHeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(MagicBytes)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(FormatVersion))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0))
	_ = binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1))

	_, err := Unmarshal(buf.Bytes())
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

// envelope encodes a header and payload by hand, bypassing Write's checks.
func envelope(t *testing.T, h Header, payload []byte) []byte {
	t.Helper()
	headerJSON, err := json.Marshal(h)
	require.NoError(t, err)

	checksum := ComputeChecksum(payload)
	var buf bytes.Buffer
	buf.WriteString(MagicBytes)
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(FormatVersion)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))))
	buf.Write(checksum[:])
	buf.Write(headerJSON)
	buf.Write(payload)
	return buf.Bytes()
}

func TestDeclaredPayloadSize(t *testing.T) {
	h := NewHeader("forward", "htp", "")

	h.PayloadSize = 1 << 62
	_, err := Unmarshal(envelope(t, h, []byte("tiny")))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	h.PayloadSize = MaxPayloadSize
	_, err = Unmarshal(envelope(t, h, []byte("tiny")))
	assert.ErrorIs(t, err, ErrTruncated)

	h.PayloadSize = 4
	got, err := Unmarshal(envelope(t, h, []byte("tiny")))
	require.NoError(t, err)
	assert.Equal(t, ContextBinary("tiny"), got.Payload)
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(h *Header)
		field string
	}{
		{"empty graph", func(h *Header) { h.GraphName = "" }, "graph_name"},
		{"null byte", func(h *Header) { h.GraphName = "a\x00b" }, "graph_name"},
		{"no kind", func(h *Header) { h.BackendKind = "" }, "backend_kind"},
		{"size mismatch", func(h *Header) { h.PayloadSize = 3 }, "payload_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeader("forward", "gpu", "")
			tt.edit(&h)
			err := ValidateHeader(&h, 0)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	h := NewHeader("forward", "gpu", "")
	assert.NoError(t, ValidateHeader(&h, 0))
}

func TestWriteRejectsInvalidHeader(t *testing.T) {
	f := New(ContextBinary("x"), Header{BackendKind: "htp"})
	_, err := Marshal(f)
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}
