package services

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// UploadFile is one validated image buffer waiting to be stored.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// StoredImage is what the gateway hands back for an uploaded file.
type StoredImage struct {
	URL      string
	PublicID string
}

// ImageVariants are resized renditions derived from a stored image.
type ImageVariants struct {
	Thumbnail string `json:"thumbnail"`
	Medium    string `json:"medium"`
	Large     string `json:"large"`
	Original  string `json:"original"`
}

// ImageStore is the image hosting gateway.
type ImageStore interface {
	// UploadMany stores files under namespace. Results follow input order.
	// Either every file is stored or none is.
	UploadMany(ctx context.Context, files []UploadFile, namespace string) ([]StoredImage, error)
	DeleteMany(ctx context.Context, publicIDs []string) error
	// VariantsFor returns nil for an empty public id.
	VariantsFor(publicID string) *ImageVariants
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// buildObjectKey creates a namespaced storage key
func buildObjectKey(namespace string, file UploadFile) string {
	ext, ok := imageExtensions[file.ContentType]
	if !ok {
		ext = strings.ToLower(filepath.Ext(file.Name))
	}
	return path.Join(namespace, uuid.New().String()+ext)
}

// variantBuilder derives variant urls. With a resizing proxy configured the
// sizes are requested from it, otherwise every size is the original.
type variantBuilder struct {
	baseURL  string
	original func(publicID string) string
}

var variantTransforms = struct{ thumbnail, medium, large string }{
	thumbnail: "w_200,h_200,c_fill",
	medium:    "w_800,c_limit",
	large:     "w_1200,c_limit",
}

func (b variantBuilder) variantsFor(publicID string) *ImageVariants {
	if publicID == "" {
		return nil
	}
	original := b.original(publicID)
	if b.baseURL == "" {
		return &ImageVariants{Thumbnail: original, Medium: original, Large: original, Original: original}
	}
	base := strings.TrimRight(b.baseURL, "/")
	return &ImageVariants{
		Thumbnail: base + "/" + variantTransforms.thumbnail + "/" + publicID,
		Medium:    base + "/" + variantTransforms.medium + "/" + publicID,
		Large:     base + "/" + variantTransforms.large + "/" + publicID,
		Original:  original,
	}
}

type putFunc func(ctx context.Context, key string, file UploadFile) (StoredImage, error)
type removeFunc func(ctx context.Context, publicIDs []string) error

// uploadConcurrently runs put for every file with at most limit uploads in
// flight. Results keep input order. When any upload fails the ones that
// already succeeded are removed again.
func uploadConcurrently(ctx context.Context, files []UploadFile, namespace string, limit int, timeout time.Duration, put putFunc, remove removeFunc) ([]StoredImage, error) {
	if len(files) == 0 {
		return []StoredImage{}, nil
	}
	if limit < 1 {
		limit = 1
	}

	uploadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]StoredImage, len(files))
	g, gctx := errgroup.WithContext(uploadCtx)
	g.SetLimit(limit)
	for idx, file := range files {
		g.Go(func() error {
			stored, err := put(gctx, buildObjectKey(namespace, file), file)
			if err != nil {
				return fmt.Errorf("upload %q: %w", file.Name, err)
			}
			results[idx] = stored
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var uploaded []string
		for _, r := range results {
			if r.PublicID != "" {
				uploaded = append(uploaded, r.PublicID)
			}
		}
		if len(uploaded) > 0 {
			cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			defer cleanupCancel()
			if rmErr := remove(cleanupCtx, uploaded); rmErr != nil {
				log.Warn().Err(rmErr).Strs("public_ids", uploaded).Msg("failed to roll back partial image upload")
			}
		}
		return nil, err
	}
	return results, nil
}
