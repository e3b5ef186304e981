package blobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"
)

func openLocal(ctx context.Context, loc Location) (io.ReadCloser, error) {
	log := klog.FromContext(ctx)

	//nolint:gosec // G304: path is chosen by the caller
	f, err := os.Open(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", loc.Path, err)
	}
	log.V(4).Info("opened local blob", "path", loc.Path)
	return f, nil
}

// localWriter writes to a temp file next to the destination and renames it
// into place on Close.
type localWriter struct {
	ctx  context.Context
	tmp  *os.File
	dest string
	err  error
}

func createLocal(ctx context.Context, loc Location) (io.WriteCloser, error) {
	tmp, err := os.CreateTemp(filepath.Dir(loc.Path), ".upload")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	return &localWriter{ctx: ctx, tmp: tmp, dest: loc.Path}, nil
}

func (w *localWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	if err != nil && w.err == nil {
		w.err = err
	}
	return n, err
}

func (w *localWriter) Close() error {
	log := klog.FromContext(w.ctx)

	closeErr := w.tmp.Close()
	if w.err == nil {
		w.err = closeErr
	}
	if w.err != nil {
		if err := os.Remove(w.tmp.Name()); err != nil {
			log.Error(err, "removing temp file", "path", w.tmp.Name())
		}
		return w.err
	}
	if err := os.Rename(w.tmp.Name(), w.dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	log.V(4).Info("wrote local blob", "path", w.dest)
	return nil
}
