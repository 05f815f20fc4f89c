package docstore_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/docstore"
)

func TestLocal_PutOpen(t *testing.T) {
	store, err := docstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "Set1_PO-78001.pdf", []byte("%PDF-1.4 one")))
	require.NoError(t, store.Put(ctx, "Set1_PO-78001.pdf", []byte("%PDF-1.4 two")))

	rc, err := store.Open(ctx, "Set1_PO-78001.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 two", string(body))
}

func TestLocal_OpenMissing(t *testing.T) {
	store, err := docstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "nope.pdf")
	assert.True(t, ap.IsNotFound(err))
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"invoice.pdf", "invoice.pdf", false},
		{"../../etc/passwd", "passwd", false},
		{`C:\uploads\grn.pdf`, "grn.pdf", false},
		{"", "", true},
		{"..", "", true},
	}
	for _, tt := range tests {
		got, err := docstore.CleanName(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, docstore.ErrInvalidName, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", docstore.ContentType("a.pdf", nil))
	assert.Contains(t, docstore.ContentType("noext", []byte("%PDF-1.4")), "application/pdf")
}
