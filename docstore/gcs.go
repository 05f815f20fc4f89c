package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores blobs as objects in one bucket, under an optional prefix.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS connects with Application Default Credentials, or with the service
// account file when credentialsFile is set.
func NewGCS(ctx context.Context, bucket, prefix, credentialsFile string) (*GCS, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs bucket %q not found or not accessible: %w", bucket, err)
	}
	return &GCS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (g *GCS) object(name string) (*storage.ObjectHandle, string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return nil, "", err
	}
	key := clean
	if g.prefix != "" {
		key = g.prefix + "/" + clean
	}
	return g.client.Bucket(g.bucket).Object(key), clean, nil
}

func (g *GCS) Put(ctx context.Context, name string, data []byte) error {
	obj, clean, err := g.object(name)
	if err != nil {
		return err
	}
	wc := obj.NewWriter(ctx)
	wc.ContentType = ContentType(clean, data)
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("upload %s: %w", clean, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", clean, err)
	}
	return nil
}

func (g *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, clean, err := g.object(name)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, notFound(clean)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", clean, err)
	}
	return r, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
