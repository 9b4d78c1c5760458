package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sales-eval-api/internal/models"
	appErrors "github.com/noah-isme/sales-eval-api/pkg/errors"
	"github.com/noah-isme/sales-eval-api/pkg/extract"
	"github.com/noah-isme/sales-eval-api/pkg/storage"
)

const defaultMaxUploadBytes = 20 << 20

// UploadConfig limits accepted uploads.
type UploadConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

type tokenKeyResolver interface {
	KeyFromToken(token string) (string, error)
}

type expiringStore interface {
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// UploadService validates and stores user files and reads them back for extraction.
type UploadService struct {
	backend storage.Backend
	logger  *zap.Logger
	config  UploadConfig
	now     func() time.Time
}

// NewUploadService constructs the service.
func NewUploadService(backend storage.Backend, logger *zap.Logger, config UploadConfig) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxFileSizeBytes <= 0 {
		config.MaxFileSizeBytes = defaultMaxUploadBytes
	}
	return &UploadService{backend: backend, logger: logger, config: config, now: func() time.Time { return time.Now().UTC() }}
}

// Upload sniffs, checks and stores r, returning a URL the caller can hand back later.
func (s *UploadService) Upload(ctx context.Context, filename string, r io.Reader) (*models.UploadResult, error) {
	data, err := s.readLimited(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}

	detected := mimetype.Detect(data)
	if !s.allowed(detected) {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "file type is not allowed"),
			map[string]string{"content_type": detected.String()},
		)
	}

	ext := detected.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	key := fmt.Sprintf("%s/%s%s", s.now().Format("2006/01/02"), uuid.NewString(), ext)
	if err := s.backend.Put(ctx, key, bytes.NewReader(data), detected.String()); err != nil {
		return nil, internalError(err, "failed to store file")
	}
	url, err := s.backend.URL(ctx, key)
	if err != nil {
		return nil, internalError(err, "failed to build file url")
	}

	s.logger.Info("file uploaded",
		zap.String("key", key),
		zap.String("content_type", detected.String()),
		zap.Int("size", len(data)),
	)
	return &models.UploadResult{FileURL: url, FileKey: key, ContentType: detected.String(), Size: int64(len(data))}, nil
}

// Load reads back a previously uploaded file from its URL.
func (s *UploadService) Load(ctx context.Context, fileURL string) (*extract.Document, error) {
	key, err := s.backend.KeyFromURL(fileURL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file_url is not a valid upload link")
	}
	data, err := s.read(ctx, key)
	if err != nil {
		return nil, err
	}
	return &extract.Document{Filename: filepath.Base(key), MIMEType: mimetype.Detect(data).String(), Data: data}, nil
}

// OpenByToken serves a signed local download. Backends without tokens report not found.
func (s *UploadService) OpenByToken(ctx context.Context, token string) ([]byte, string, error) {
	resolver, ok := s.backend.(tokenKeyResolver)
	if !ok {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	key, err := resolver.KeyFromToken(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "file link is invalid or expired")
	}
	data, err := s.read(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return data, mimetype.Detect(data).String(), nil
}

// Cleanup removes local files older than ttl. It is a no-op for remote backends.
func (s *UploadService) Cleanup(ttl time.Duration) (int, error) {
	store, ok := s.backend.(expiringStore)
	if !ok || ttl <= 0 {
		return 0, nil
	}
	deleted, err := store.CleanupOlderThan(ttl)
	if err != nil {
		return 0, err
	}
	if len(deleted) > 0 {
		s.logger.Info("expired uploads removed", zap.Int("count", len(deleted)))
	}
	return len(deleted), nil
}

func (s *UploadService) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.backend.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, internalError(err, "failed to open file")
	}
	defer rc.Close() //nolint:errcheck
	return s.readLimited(rc)
}

func (s *UploadService) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.config.MaxFileSizeBytes+1))
	if err != nil {
		return nil, internalError(err, "failed to read file")
	}
	if int64(len(data)) > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.config.MaxFileSizeBytes))
	}
	return data, nil
}

// allowed accepts the detected type or any of its parents, so an xlsx passes when zip is allowed.
func (s *UploadService) allowed(detected *mimetype.MIME) bool {
	if len(s.config.AllowedMIMEs) == 0 {
		return true
	}
	for m := detected; m != nil; m = m.Parent() {
		for _, allowed := range s.config.AllowedMIMEs {
			if m.Is(allowed) {
				return true
			}
		}
	}
	return false
}
