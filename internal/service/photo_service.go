package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/dto"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
	"github.com/civicgrid/civicgrid-api/pkg/storage"
)

type photoStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

var allowedPhotoExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// PhotoService stores uploaded issue photos and mints signed download URLs.
type PhotoService struct {
	storage  photoStorage
	signer   *storage.SignedURLSigner
	maxBytes int64
	logger   *zap.Logger
}

// NewPhotoService constructs the service.
func NewPhotoService(store photoStorage, signer *storage.SignedURLSigner, cfg config.PhotosConfig, logger *zap.Logger) *PhotoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &PhotoService{storage: store, signer: signer, maxBytes: maxBytes, logger: logger}
}

// Store writes the upload to disk and returns a signed photo URL. The
// original filename only contributes its extension; stored names are random.
func (s *PhotoService) Store(ctx context.Context, ownerID, filename string, r io.Reader) (*dto.PhotoResponse, error) {
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := allowedPhotoExtensions[ext]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported photo type %q", ext))
	}

	relPath := fmt.Sprintf("%s/%s%s", time.Now().UTC().Format("2006/01"), uuid.NewString(), ext)

	limited := &io.LimitedReader{R: r, N: s.maxBytes + 1}
	if _, err := s.storage.SaveStream(relPath, limited); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	if limited.N == 0 {
		if err := s.storage.Delete(relPath); err != nil {
			s.logger.Warn("cleanup of oversized photo failed", zap.String("path", relPath), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("photo exceeds %d bytes", s.maxBytes))
	}

	token, expiresAt, err := s.signer.Generate(ownerID, relPath)
	if err != nil {
		return nil, fmt.Errorf("sign photo url: %w", err)
	}

	s.logger.Info("photo stored",
		zap.String("owner_id", ownerID),
		zap.String("path", relPath))

	return &dto.PhotoResponse{
		PhotoURL:  "/photos/" + token,
		ExpiresAt: expiresAt,
	}, nil
}

// Fetch validates a download token and opens the photo for streaming.
// The caller owns the returned file handle.
func (s *PhotoService) Fetch(ctx context.Context, token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "photo not found")
	}

	contentType := allowedPhotoExtensions[strings.ToLower(path.Ext(relPath))]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return file, contentType, nil
}
