package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// sidecarDir holds per-object provenance records inside the destination
// directory, keeping the local backend at parity with object tagging.
const sidecarDir = ".blsync"

type LocalBackend struct {
	root string
}

type LocalConfig struct {
	Dir string
}

type sidecar struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

func NewLocalBackend(config *LocalConfig) (*LocalBackend, error) {
	if config == nil || config.Dir == "" {
		return nil, &StorageError{
			Type:    ErrorTypeInvalidInput,
			Message: "destination directory is required",
		}
	}
	return &LocalBackend{root: config.Dir}, nil
}

func (l *LocalBackend) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.Contains(clean, "..") || filepath.IsAbs(clean) {
		return "", &StorageError{
			Type:    ErrorTypeInvalidInput,
			Message: fmt.Sprintf("invalid object key %q", key),
		}
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalBackend) sidecarPath(key string) (string, error) {
	path, err := l.objectPath(key)
	if err != nil {
		return "", err
	}
	rel, _ := filepath.Rel(l.root, path)
	return filepath.Join(l.root, sidecarDir, rel+".json"), nil
}

func (l *LocalBackend) readSidecar(key string) (*sidecar, error) {
	path, err := l.sidecarPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &sidecar{}, nil
	}
	if err != nil {
		return nil, &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to read provenance sidecar",
			Cause:   err,
		}
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to decode provenance sidecar",
			Cause:   err,
		}
	}
	return &sc, nil
}

func (l *LocalBackend) Head(_ context.Context, key string) (*ObjectInfo, error) {
	path, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		return &ObjectInfo{Exists: false}, nil
	}
	if err != nil {
		return nil, &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to stat object",
			Cause:   err,
		}
	}

	sc, err := l.readSidecar(key)
	if err != nil {
		return nil, err
	}

	info := &ObjectInfo{
		Exists:   true,
		Size:     stat.Size(),
		Metadata: make(map[string]string, len(sc.Metadata)),
	}
	for k, v := range sc.Metadata {
		info.Metadata[strings.ToLower(k)] = v
	}
	return info, nil
}

func (l *LocalBackend) Get(_ context.Context, key string) ([]byte, error) {
	path, err := l.objectPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &StorageError{
			Type:    ErrorTypeNotFound,
			Message: "object not found",
			Cause:   err,
		}
	}
	if err != nil {
		return nil, &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to read object",
			Cause:   err,
		}
	}
	return data, nil
}

func (l *LocalBackend) Put(_ context.Context, key string, body []byte, opts *PutOptions) error {
	if opts == nil {
		opts = &PutOptions{}
	}

	path, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to create destination directory",
			Cause:   err,
		}
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to write object",
			Cause:   err,
		}
	}

	scPath, err := l.sidecarPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(scPath), 0o755); err != nil {
		return &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to create sidecar directory",
			Cause:   err,
		}
	}
	scData, err := json.Marshal(&sidecar{Metadata: opts.Metadata, Tags: opts.Tags})
	if err != nil {
		return &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to encode provenance sidecar",
			Cause:   err,
		}
	}
	if err := os.WriteFile(scPath, scData, 0o644); err != nil {
		return &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to write provenance sidecar",
			Cause:   err,
		}
	}
	return nil
}

func (l *LocalBackend) Delete(_ context.Context, key string) error {
	path, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &StorageError{
			Type:    ErrorTypeInternal,
			Message: "failed to remove object",
			Cause:   err,
		}
	}
	if scPath, err := l.sidecarPath(key); err == nil {
		_ = os.Remove(scPath)
		l.cleanupEmptyDirectories(filepath.Dir(scPath))
	}
	l.cleanupEmptyDirectories(filepath.Dir(path))
	return nil
}

func (l *LocalBackend) List(_ context.Context, prefix string, fn func(key string) error) error {
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == l.root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if d.Name() == sidecarDir {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		return fn(key)
	})
	if err != nil {
		return err
	}
	return nil
}

func (l *LocalBackend) GetTags(_ context.Context, key string) (map[string]string, error) {
	sc, err := l.readSidecar(key)
	if err != nil {
		return nil, err
	}
	if sc.Tags == nil {
		return map[string]string{}, nil
	}
	return sc.Tags, nil
}

func (l *LocalBackend) Ping(_ context.Context) error {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return &StorageError{
			Type:    ErrorTypeNetworkError,
			Message: "destination directory is not writable",
			Cause:   err,
		}
	}
	return nil
}

func (l *LocalBackend) Close() error {
	return nil
}

// cleanupEmptyDirectories removes now-empty parents up to the root.
func (l *LocalBackend) cleanupEmptyDirectories(dirPath string) {
	for {
		if dirPath == l.root || !strings.HasPrefix(dirPath, l.root) {
			return
		}
		entries, err := os.ReadDir(dirPath)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dirPath); err != nil {
			return
		}
		dirPath = filepath.Dir(dirPath)
	}
}
