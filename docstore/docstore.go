/*
Package docstore keeps the original uploaded files.

PURPOSE:
  Ingested records reference their source file by name. The blobs live
  outside the database, either in a local directory or a GCS bucket, and
  the API serves them back by that name.

SEE ALSO:
  - local.go: Directory on disk
  - gcs.go: Google Cloud Storage bucket
*/
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/warp/ap-engine/ap"
)

// Store puts and opens blobs by filename.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// ErrInvalidName is returned for names that are empty or escape the store.
var ErrInvalidName = errors.New("invalid document name")

// CleanName reduces an uploaded filename to its base name.
func CleanName(name string) (string, error) {
	base := filepath.Base(path.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "/" || base == "." || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// ContentType guesses the MIME type from the extension, then the bytes.
func ContentType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func notFound(name string) error {
	return &ap.NotFoundError{Entity: "document", Key: name}
}
