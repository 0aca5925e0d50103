package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local keeps objects under a directory on disk. URLs are baseURL + key.
type Local struct {
	root    string
	baseURL string
}

func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Put(_ context.Context, key string, data []byte, contentType string) (Object, error) {
	if err := checkKey(key); err != nil {
		return Object{}, err
	}
	p := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Object{}, fmt.Errorf("create media dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return Object{}, fmt.Errorf("write media object: %w", err)
	}
	obj := Object{Key: key, ContentType: contentType, Size: len(data)}
	if l.baseURL != "" {
		obj.URL = l.baseURL + "/" + key
	}
	return obj, nil
}

func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, filepath.FromSlash(key)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read media object: %w", err)
	}
	return data, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(l.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove media object: %w", err)
	}
	return nil
}
