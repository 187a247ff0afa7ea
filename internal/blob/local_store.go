package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps blobs as files under a root directory
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) path(pointer string) (string, error) {
	if pointer == "" || strings.HasPrefix(pointer, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPointer, pointer)
	}
	p := filepath.Join(s.root, filepath.FromSlash(pointer))
	if !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPointer, pointer)
	}
	return p, nil
}

// Upload writes the blob atomically through a temp file
func (s *LocalStore) Upload(ctx context.Context, pointer string, body io.Reader, size int64, contentType string) error {
	p, err := s.path(pointer)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return wrapFS("upload", pointer, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return wrapFS("upload", pointer, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, readerWithContext(ctx, body)); err != nil {
		tmp.Close()
		return wrapFS("upload", pointer, err)
	}
	if err := tmp.Close(); err != nil {
		return wrapFS("upload", pointer, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return wrapFS("upload", pointer, err)
	}
	return nil
}

// Download reads the blob at pointer
func (s *LocalStore) Download(ctx context.Context, pointer string, maxBytes int64) ([]byte, error) {
	p, err := s.path(pointer)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, wrapFS("download", pointer, err)
	}
	defer f.Close()

	data, err := readLimited(readerWithContext(ctx, f), maxBytes)
	if err != nil {
		return nil, wrapFS("download", pointer, err)
	}
	return data, nil
}

// Delete removes the blob at pointer
func (s *LocalStore) Delete(ctx context.Context, pointer string) error {
	p, err := s.path(pointer)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return wrapFS("delete", pointer, err)
	}
	return nil
}

func wrapFS(op, pointer string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s %s: %w", op, pointer, ErrObjectNotFound)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%s %s: %w", op, pointer, ErrPermissionDenied)
	default:
		return fmt.Errorf("%s %s: %w", op, pointer, err)
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
