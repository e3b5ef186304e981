package ctxbin

import (
	"fmt"
	"strings"
)

// Validation limits.
const (
	MaxHeaderSize    = 1 << 20
	MaxPayloadSize   = 4 << 30
	MaxGraphNameLen  = 256
	MaxMetadataCount = 1024
)

// ValidateHeader checks a decoded header against the payload it describes.
func ValidateHeader(h *Header, payloadSize int64) error {
	if h.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: header says %d", ErrUnsupportedVersion, h.FormatVersion)
	}
	if h.GraphName == "" {
		return &ValidationError{Field: "graph_name", Details: "empty"}
	}
	if len(h.GraphName) > MaxGraphNameLen {
		return &ValidationError{Field: "graph_name", Details: fmt.Sprintf("length %d > max %d", len(h.GraphName), MaxGraphNameLen)}
	}
	if strings.ContainsRune(h.GraphName, 0) {
		return &ValidationError{Field: "graph_name", Details: "contains null byte"}
	}
	if h.BackendKind == "" {
		return &ValidationError{Field: "backend_kind", Details: "empty"}
	}
	if h.PayloadSize > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.PayloadSize)
	}
	if h.PayloadSize != payloadSize {
		return &ValidationError{Field: "payload_size", Details: fmt.Sprintf("header says %d, payload has %d", h.PayloadSize, payloadSize)}
	}
	if len(h.Metadata) > MaxMetadataCount {
		return &ValidationError{Field: "metadata", Details: fmt.Sprintf("%d entries > max %d", len(h.Metadata), MaxMetadataCount)}
	}
	return nil
}
