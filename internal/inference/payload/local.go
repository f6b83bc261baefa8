package payload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
)

// LocalStore keeps payloads as files in one directory. A payload reference is
// the file name: the md5 of the content followed by the original extension,
// so uploading the same bytes twice yields the same reference.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create payload directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// Put stores data and returns its reference. ext is the file extension
// including the dot, for example ".png".
func (s *LocalStore) Put(_ context.Context, data []byte, ext string) (string, error) {
	ref := ContentRef(data, ext)
	path := filepath.Join(s.dir, ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to store payload: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to store payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to store payload: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store payload: %w", err)
	}
	return ref, nil
}

func (s *LocalStore) Read(_ context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", broker.ErrPayloadNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload %s: %w", ref, err)
	}
	return data, nil
}

func (s *LocalStore) resolve(ref string) (string, error) {
	if ref == "" || !filepath.IsLocal(ref) {
		return "", fmt.Errorf("%w: reference %q escapes the payload directory", broker.ErrInvalidPayload, ref)
	}
	return filepath.Join(s.dir, ref), nil
}
