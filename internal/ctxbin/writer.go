package ctxbin

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Write encodes f to w.
func Write(w io.Writer, f *File) error {
	h := f.Header
	h.PayloadSize = int64(len(f.Payload))
	if h.FormatVersion == 0 {
		h.FormatVersion = FormatVersion
	}
	if err := ValidateHeader(&h, h.PayloadSize); err != nil {
		return err
	}

	headerJSON, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	flags := f.Flags
	if len(h.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	checksum := ComputeChecksum(f.Payload)

	if _, err := io.WriteString(w, MagicBytes); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	for _, v := range []any{uint32(FormatVersion), flags, uint64(len(headerJSON))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to write fixed header: %w", err)
		}
	}
	if _, err := w.Write(checksum[:]); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(f.Payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// Marshal encodes f into a new buffer.
func Marshal(f *File) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(FixedHeaderSize + 512 + len(f.Payload))
	if err := Write(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes f to path, replacing any existing file.
func Save(path string, f *File) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	//nolint:gosec // G306: context binaries are not secret
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
