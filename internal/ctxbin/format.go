package ctxbin

import (
	"time"

	"github.com/google/uuid"
)

// Format constants.
const (
	MagicBytes      = "ACTX"
	FormatVersion   = 1
	FixedHeaderSize = 4 + 4 + 4 + 8 + ChecksumSize
	ChecksumSize    = 32
)

// Flags for the envelope.
const (
	FlagHasMetadata   uint32 = 1 << 0 // bit 0: custom metadata included
	FlagOnlinePrepare uint32 = 1 << 1 // bit 1: graph was built for on-device preparation
)

// ContextBinary is a serialized driver context. Its length is the size of
// the blob; the bytes are never interpreted.
type ContextBinary []byte

// Size returns the blob length in bytes.
func (b ContextBinary) Size() int {
	return len(b)
}

// Header is the JSON header of an envelope.
type Header struct {
	FormatVersion int               `json:"format_version"`
	GraphName     string            `json:"graph_name"`
	BackendKind   string            `json:"backend_kind"`
	SocModel      string            `json:"soc_model,omitempty"`
	BuildID       string            `json:"build_id"`
	CreatedAt     time.Time         `json:"created_at"`
	PayloadSize   int64             `json:"payload_size"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewHeader returns a header stamped with a fresh build id and the current
// time.
func NewHeader(graphName, backendKind, socModel string) Header {
	return Header{
		FormatVersion: FormatVersion,
		GraphName:     graphName,
		BackendKind:   backendKind,
		SocModel:      socModel,
		BuildID:       uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
	}
}

// File is a context binary with its header.
type File struct {
	Header  Header
	Flags   uint32
	Payload ContextBinary
}

// New wraps a context binary. The payload is not copied.
func New(payload ContextBinary, h Header) *File {
	h.PayloadSize = int64(len(payload))
	return &File{Header: h, Payload: payload}
}
