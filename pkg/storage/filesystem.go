package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const localTokenScope = "upload"

// LocalStorage persists files on disk under a base directory and serves them
// through HMAC signed download links.
type LocalStorage struct {
	baseDir   string
	signer    *SignedURLSigner
	publicURL string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
// publicURL is the absolute or root-relative prefix that download tokens are appended to.
func NewLocalStorage(baseDir string, signer *SignedURLSigner, publicURL string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStorage{
		baseDir:   baseDir,
		signer:    signer,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Put copies r into the object identified by key.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare upload directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("write upload stream: %w", err)
	}
	return nil
}

// Open returns a read-only handle for the stored object.
func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// URL returns a signed download link for key.
func (s *LocalStorage) URL(_ context.Context, key string) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("signed url signer not configured")
	}
	token, _, err := s.signer.Generate(localTokenScope, key)
	if err != nil {
		return "", err
	}
	return s.publicURL + "/" + token, nil
}

// KeyFromURL validates the signed token at the end of rawURL and returns the object key.
func (s *LocalStorage) KeyFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse file url: %w", err)
	}
	return s.KeyFromToken(path.Base(parsed.Path))
}

// KeyFromToken validates a download token and returns the object key.
func (s *LocalStorage) KeyFromToken(token string) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("signed url signer not configured")
	}
	scope, key, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", err
	}
	if scope != localTokenScope {
		return "", fmt.Errorf("invalid token scope")
	}
	return key, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes files older than the provided TTL and returns deleted keys.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			rel = p
		}
		deleted = append(deleted, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup uploads: %w", err)
	}
	return deleted, nil
}

// resolve maps a slash separated key onto the base dir, refusing keys that escape it.
func (s *LocalStorage) resolve(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("empty object key")
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}
