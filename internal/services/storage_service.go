package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/synesthesie/artmarket/internal/config"
)

var ErrInvalidPublicID = errors.New("public id escapes the storage root")

// LocalImageStore stores images on local disk. The files are served by the
// API under PublicAssetsURL.
type LocalImageStore struct {
	root        string
	publicURL   string
	timeout     time.Duration
	concurrency int
	variants    variantBuilder
}

func NewLocalImageStore(cfg *config.Config) (*LocalImageStore, error) {
	root, err := filepath.Abs(cfg.LocalAssetsPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}

	store := &LocalImageStore{
		root:        root,
		publicURL:   strings.TrimRight(cfg.PublicAssetsURL, "/"),
		timeout:     cfg.ImageStoreTimeout,
		concurrency: cfg.ImageUploadConcurrency,
	}
	store.variants = variantBuilder{baseURL: cfg.ImageVariantsBaseURL, original: store.fileURL}
	return store, nil
}

// Root is the directory the files live in.
func (s *LocalImageStore) Root() string {
	return s.root
}

func (s *LocalImageStore) UploadMany(ctx context.Context, files []UploadFile, namespace string) ([]StoredImage, error) {
	return uploadConcurrently(ctx, files, namespace, s.concurrency, s.timeout, s.put, s.DeleteMany)
}

// put writes to a temporary file first so readers never see a partial image.
func (s *LocalImageStore) put(ctx context.Context, key string, file UploadFile) (StoredImage, error) {
	if err := ctx.Err(); err != nil {
		return StoredImage{}, err
	}
	absPath, err := s.pathFor(key)
	if err != nil {
		return StoredImage{}, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return StoredImage{}, err
	}

	tmp := absPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return StoredImage{}, err
	}
	if _, err := f.Write(file.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return StoredImage{}, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return StoredImage{}, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return StoredImage{}, err
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return StoredImage{}, err
	}

	return StoredImage{URL: s.fileURL(key), PublicID: key}, nil
}

// DeleteMany removes the files. Missing files are not an error.
func (s *LocalImageStore) DeleteMany(ctx context.Context, publicIDs []string) error {
	var errs []error
	for _, id := range publicIDs {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		absPath, err := s.pathFor(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(absPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *LocalImageStore) VariantsFor(publicID string) *ImageVariants {
	return s.variants.variantsFor(publicID)
}

func (s *LocalImageStore) fileURL(key string) string {
	return s.publicURL + "/" + strings.TrimLeft(filepath.ToSlash(key), "/")
}

func (s *LocalImageStore) pathFor(publicID string) (string, error) {
	absPath := filepath.Join(s.root, filepath.FromSlash(publicID))
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPublicID, publicID)
	}
	return absPath, nil
}
