package ctxbin

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Read decodes an envelope from r and verifies its checksum.
func Read(r io.Reader) (*File, error) {
	magic := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, readErr("magic bytes", err)
	}
	if string(magic) != MagicBytes {
		return nil, ErrInvalidMagic
	}

	var (
		version    uint32
		flags      uint32
		headerSize uint64
		stored     [ChecksumSize]byte
	)
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, readErr("version", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return nil, readErr("flags", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, readErr("header size", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	if _, err := io.ReadFull(r, stored[:]); err != nil {
		return nil, readErr("checksum", err)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, readErr("header", err)
	}
	var h Header
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if h.PayloadSize < 0 {
		return nil, &ValidationError{Field: "payload_size", Details: fmt.Sprintf("negative size %d", h.PayloadSize)}
	}

	if h.PayloadSize > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.PayloadSize)
	}

	// The declared size is untrusted until the checksum matches, so the
	// buffer grows with the data actually read.
	payload, err := io.ReadAll(io.LimitReader(r, h.PayloadSize))
	if err != nil {
		return nil, readErr("payload", err)
	}
	if int64(len(payload)) < h.PayloadSize {
		return nil, readErr("payload", io.ErrUnexpectedEOF)
	}
	if err := ValidateHeader(&h, int64(len(payload))); err != nil {
		return nil, err
	}
	if err := ValidateChecksum(ComputeChecksum(payload), stored); err != nil {
		return nil, err
	}
	return &File{Header: h, Flags: flags, Payload: payload}, nil
}

func readErr(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, what)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

// Unmarshal decodes an envelope held in memory.
func Unmarshal(data []byte) (*File, error) {
	return Read(bytes.NewReader(data))
}

// Load reads an envelope from path.
func Load(path string) (*File, error) {
	//nolint:gosec // G304: path is chosen by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}
