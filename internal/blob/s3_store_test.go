package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves path-style object requests for bucket "files-bucket"
func fakeS3(t *testing.T, objects map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/files-bucket/")
		switch {
		case strings.HasPrefix(key, "forbidden/"):
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		case r.Method == http.MethodGet:
			body, ok := objects[key]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			_, _ = io.WriteString(w, body)
		case r.Method == http.MethodDelete:
			delete(objects, key)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func newTestS3Store(t *testing.T, endpoint string) *S3Store {
	t.Helper()
	store, err := NewS3Store(context.Background(), S3Config{
		Bucket:    "files-bucket",
		Region:    "us-east-1",
		Endpoint:  endpoint,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	return store
}

func TestS3StoreDownload(t *testing.T) {
	server := fakeS3(t, map[string]string{"files/u1/1_a.txt": "contents"})
	defer server.Close()
	store := newTestS3Store(t, server.URL)

	data, err := store.Download(context.Background(), "files/u1/1_a.txt", 1024)
	require.NoError(t, err)
	assert.Equal(t, "contents", string(data))

	_, err = store.Download(context.Background(), "files/u1/1_a.txt", 3)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestS3StoreClassifiesErrors(t *testing.T) {
	server := fakeS3(t, map[string]string{})
	defer server.Close()
	store := newTestS3Store(t, server.URL)

	_, err := store.Download(context.Background(), "files/u1/missing", 1024)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = store.Download(context.Background(), "forbidden/x", 1024)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, KindPermission, Classify(err))
}

func TestS3StoreDelete(t *testing.T) {
	objects := map[string]string{"files/u1/1_a.txt": "contents"}
	server := fakeS3(t, objects)
	defer server.Close()
	store := newTestS3Store(t, server.URL)

	require.NoError(t, store.Delete(context.Background(), "files/u1/1_a.txt"))
	assert.NotContains(t, objects, "files/u1/1_a.txt")
}
