package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"cloud.google.com/go/storage"
	"k8s.io/klog/v2"
)

// gcsReader closes the object reader and the client it came from.
type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	return errors.Join(err, r.client.Close())
}

func openGCS(ctx context.Context, loc Location) (io.ReadCloser, error) {
	log := klog.FromContext(ctx)

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}

	log.Info("downloading blob from GCS", "source", loc.String())
	r, err := client.Bucket(loc.Bucket).Object(loc.Path).NewReader(ctx)
	if err != nil {
		_ = client.Close()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("opening object from GCS %q: %w", loc.String(), fs.ErrNotExist)
		}
		return nil, fmt.Errorf("opening object from GCS %q: %w", loc.String(), err)
	}
	return &gcsReader{Reader: r, client: client}, nil
}

// gcsWriter commits the object on Close.
type gcsWriter struct {
	ctx       context.Context
	w         *storage.Writer
	client    *storage.Client
	loc       Location
	n         int64
	startedAt time.Time
}

func createGCS(ctx context.Context, loc Location) (io.WriteCloser, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	w := client.Bucket(loc.Bucket).Object(loc.Path).NewWriter(ctx)
	return &gcsWriter{ctx: ctx, w: w, client: client, loc: loc, startedAt: time.Now()}, nil
}

func (g *gcsWriter) Write(p []byte) (int, error) {
	n, err := g.w.Write(p)
	g.n += int64(n)
	return n, err
}

func (g *gcsWriter) Close() error {
	log := klog.FromContext(g.ctx)
	defer g.client.Close()

	if err := g.w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer: %w", err)
	}
	log.Info("uploaded blob to GCS", "url", g.loc.String(), "bytes", g.n, "duration", time.Since(g.startedAt))
	return nil
}
