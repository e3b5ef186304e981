// Package blobs reads and writes context binaries from local paths or
// object storage URLs.
package blobs

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Location is a parsed blob URL.
type Location struct {
	Scheme string // "file" or "gs"
	Bucket string // gs only
	Path   string // local path, or object name for gs
}

// String formats the location as a URL.
func (l Location) String() string {
	if l.Scheme == "gs" {
		return "gs://" + l.Bucket + "/" + l.Path
	}
	return l.Path
}

// ParseURL parses a blob URL. Plain paths and file:// URLs are local;
// gs://bucket/object names an object in Cloud Storage.
func ParseURL(url string) (Location, error) {
	switch {
	case url == "":
		return Location{}, fmt.Errorf("empty blob url")
	case strings.HasPrefix(url, "gs://"):
		rest := strings.TrimPrefix(url, "gs://")
		bucket, object, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || object == "" {
			return Location{}, fmt.Errorf("invalid gs url %q: want gs://bucket/object", url)
		}
		return Location{Scheme: "gs", Bucket: bucket, Path: object}, nil
	case strings.HasPrefix(url, "file://"):
		return Location{Scheme: "file", Path: strings.TrimPrefix(url, "file://")}, nil
	case strings.Contains(url, "://"):
		return Location{}, fmt.Errorf("unsupported blob url scheme in %q", url)
	default:
		return Location{Scheme: "file", Path: url}, nil
	}
}

// Open opens the blob at url for reading.
func Open(ctx context.Context, url string) (io.ReadCloser, error) {
	loc, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	if loc.Scheme == "gs" {
		return openGCS(ctx, loc)
	}
	return openLocal(ctx, loc)
}

// Create opens the blob at url for writing. The blob becomes visible when
// the writer is closed without error.
func Create(ctx context.Context, url string) (io.WriteCloser, error) {
	loc, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	if loc.Scheme == "gs" {
		return createGCS(ctx, loc)
	}
	return createLocal(ctx, loc)
}

// ReadAll reads the whole blob at url.
func ReadAll(ctx context.Context, url string) ([]byte, error) {
	r, err := Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return data, nil
}

// WriteAll writes data as the blob at url.
func WriteAll(ctx context.Context, url string, data []byte) error {
	w, err := Create(ctx, url)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing %s: %w", url, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", url, err)
	}
	return nil
}
