package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/synesthesie/artmarket/internal/config"
	"github.com/synesthesie/artmarket/internal/models"
	"github.com/synesthesie/artmarket/internal/repository"
	"github.com/synesthesie/artmarket/pkg/validation"
)

const maxTitleLength = 200

// Caller is the authenticated user issuing a request. A nil *Caller is anonymous.
type Caller struct {
	UserID uuid.UUID
	Role   models.Role
}

func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == models.RoleAdmin
}

func (c *Caller) owns(artwork *models.Artwork) bool {
	return c != nil && artwork.IsOwnedBy(c.UserID)
}

func (c *Caller) canManage(artwork *models.Artwork) bool {
	return c.IsAdmin() || c.owns(artwork)
}

// ListParams are the raw listing parameters as received from the client.
type ListParams struct {
	Page      int
	Limit     int
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	Medium    string
	Style     string
	Search    string
	Featured  *bool
	ArtistID  *uuid.UUID
	SortBy    string
	SortOrder string
}

// ArtworkPage is one page of a listing.
type ArtworkPage struct {
	Artworks   []models.Artwork
	Page       int
	Limit      int
	TotalItems int64
	TotalPages int
}

// ArtworkInput is the set of fields a client may write. Nil fields are left
// untouched on update.
type ArtworkInput struct {
	Title         *string
	Description   *string
	Category      *string
	Medium        *string
	Style         *string
	Width         *float64
	Height        *float64
	Depth         *float64
	DimensionUnit *string
	Price         *float64
	Currency      *string
	Tags          *[]string
	Status        *models.ArtworkStatus
	IsPublic      *bool
	Availability  *models.Availability
	Featured      *bool
}

// ArtworkService implements listing, lifecycle and engagement for artworks.
type ArtworkService struct {
	repo   repository.ArtworkRepository
	images ImageStore
	cfg    *config.Config
}

func NewArtworkService(repo repository.ArtworkRepository, images ImageStore, cfg *config.Config) *ArtworkService {
	return &ArtworkService{repo: repo, images: images, cfg: cfg}
}

// Images exposes the gateway so responses can derive variants.
func (s *ArtworkService) Images() ImageStore {
	return s.images
}

// List returns one page of published public artworks.
func (s *ArtworkService) List(ctx context.Context, params ListParams) (*ArtworkPage, error) {
	q, page, err := s.buildListQuery(params)
	if err != nil {
		return nil, err
	}

	artworks, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, Internal("listing artworks", err)
	}

	return &ArtworkPage{
		Artworks:   artworks,
		Page:       page,
		Limit:      q.Limit,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
	}, nil
}

// buildListQuery normalizes params and returns the repository query with the page it serves.
func (s *ArtworkService) buildListQuery(params ListParams) (repository.ListQuery, int, error) {
	page := max(params.Page, 1)
	limit := params.Limit
	if limit <= 0 {
		limit = s.cfg.ListingDefaultLimit
	}
	limit = min(limit, s.cfg.ListingMaxLimit)
	if page-1 > math.MaxInt/limit {
		return repository.ListQuery{}, 0, Validation("page is out of range", nil)
	}

	sortBy := repository.SortByCreatedAt
	if params.SortBy != "" {
		f, ok := repository.ParseSortField(params.SortBy)
		if !ok {
			return repository.ListQuery{}, 0, Validation(fmt.Sprintf("Unsupported sortBy %q", params.SortBy), nil)
		}
		sortBy = f
	}

	ascending := false
	switch strings.ToLower(params.SortOrder) {
	case "", "desc":
	case "asc":
		ascending = true
	default:
		return repository.ListQuery{}, 0, Validation("sortOrder must be asc or desc", nil)
	}

	if (params.MinPrice != nil && *params.MinPrice < 0) || (params.MaxPrice != nil && *params.MaxPrice < 0) {
		return repository.ListQuery{}, 0, Validation("Price bounds must not be negative", nil)
	}
	if params.MinPrice != nil && params.MaxPrice != nil && *params.MinPrice > *params.MaxPrice {
		return repository.ListQuery{}, 0, Validation("minPrice must not exceed maxPrice", nil)
	}

	return repository.ListQuery{
		Offset:    (page - 1) * limit,
		Limit:     limit,
		Category:  strings.TrimSpace(params.Category),
		MinPrice:  params.MinPrice,
		MaxPrice:  params.MaxPrice,
		Medium:    strings.TrimSpace(params.Medium),
		Style:     strings.TrimSpace(params.Style),
		Search:    strings.TrimSpace(params.Search),
		Featured:  params.Featured,
		ArtistID:  params.ArtistID,
		SortBy:    sortBy,
		Ascending: ascending,
	}, page, nil
}

// loadVisible fetches an artwork and hides it from callers who may not see it.
// Hidden artworks are reported exactly like missing ones.
func (s *ArtworkService) loadVisible(ctx context.Context, id uuid.UUID, caller *Caller) (*models.Artwork, error) {
	artwork, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRepoError(err, "loading artwork")
	}
	if !artwork.IsPublic && artwork.Status != models.ArtworkStatusPublished && !caller.canManage(artwork) {
		return nil, NotFound("Artwork not found")
	}
	return artwork, nil
}

// loadManaged fetches an artwork the caller is about to mutate.
func (s *ArtworkService) loadManaged(ctx context.Context, id uuid.UUID, caller *Caller) (*models.Artwork, error) {
	if caller == nil {
		return nil, Unauthorized("Authentication required")
	}
	artwork, err := s.loadVisible(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if !caller.canManage(artwork) {
		return nil, Forbidden("Only the artist or an admin can modify this artwork")
	}
	return artwork, nil
}

// Get returns one artwork. Every view by someone other than the artist is counted.
func (s *ArtworkService) Get(ctx context.Context, id uuid.UUID, caller *Caller) (*models.Artwork, error) {
	artwork, err := s.loadVisible(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if caller.owns(artwork) {
		return artwork, nil
	}

	views, err := s.repo.IncrementViews(ctx, artwork.ID)
	if err != nil {
		return nil, wrapRepoError(err, "recording view")
	}
	artwork.Views = views
	return artwork, nil
}

// Related returns listed artworks similar to the given one.
func (s *ArtworkService) Related(ctx context.Context, id uuid.UUID, caller *Caller, limit int) ([]models.Artwork, error) {
	artwork, err := s.loadVisible(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.RelatedDefaultLimit
	}
	limit = min(limit, s.cfg.RelatedMaxLimit)

	related, err := s.repo.Related(ctx, artwork, limit)
	if err != nil {
		return nil, Internal("loading related artworks", err)
	}
	return related, nil
}

// Create stores the uploaded files and then the artwork owned by caller.
func (s *ArtworkService) Create(ctx context.Context, caller *Caller, input ArtworkInput, files []UploadFile) (*models.Artwork, error) {
	if caller == nil {
		return nil, Unauthorized("Authentication required")
	}
	if input.Title == nil {
		return nil, Validation("Title is required", nil)
	}

	artwork := &models.Artwork{
		ID:           uuid.New(),
		ArtistID:     caller.UserID,
		Status:       models.ArtworkStatusDraft,
		IsPublic:     true,
		Availability: models.AvailabilityAvailable,
		Currency:     "USD",
		Tags:         []string{},
		Dimensions:   models.Dimensions{Unit: "cm"},
	}
	if err := s.applyInput(artwork, input, caller); err != nil {
		return nil, err
	}
	files, err := s.checkFiles(files, 0)
	if err != nil {
		return nil, err
	}

	added, err := s.upload(ctx, artwork, files)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, artwork); err != nil {
		s.discardUploads(ctx, artwork.ID, added)
		return nil, Internal("creating artwork", err)
	}

	log.Info().Str("artwork_id", artwork.ID.String()).Str("artist_id", caller.UserID.String()).Int("images", len(files)).Msg("artwork created")
	return s.reload(ctx, artwork), nil
}

// Update merges input into the artwork and appends any new images.
func (s *ArtworkService) Update(ctx context.Context, id uuid.UUID, caller *Caller, input ArtworkInput, files []UploadFile) (*models.Artwork, error) {
	artwork, err := s.loadManaged(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if err := s.applyInput(artwork, input, caller); err != nil {
		return nil, err
	}
	files, err = s.checkFiles(files, len(artwork.Images))
	if err != nil {
		return nil, err
	}

	added, err := s.upload(ctx, artwork, files)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, artwork); err != nil {
		s.discardUploads(ctx, artwork.ID, added)
		return nil, wrapRepoError(err, "updating artwork")
	}
	return s.reload(ctx, artwork), nil
}

// RemoveImage drops one image. A failing remote delete is logged and ignored.
func (s *ArtworkService) RemoveImage(ctx context.Context, id, imageID uuid.UUID, caller *Caller) error {
	artwork, err := s.loadManaged(ctx, id, caller)
	if err != nil {
		return err
	}
	removed, ok := artwork.RemoveImage(imageID)
	if !ok {
		return NotFound("Image not found")
	}

	if removed.PublicID != "" {
		if err := s.images.DeleteMany(ctx, []string{removed.PublicID}); err != nil {
			log.Warn().Err(err).Str("artwork_id", artwork.ID.String()).Str("image_id", imageID.String()).Msg("failed to delete image from store")
		}
	}

	if err := s.repo.Save(ctx, artwork); err != nil {
		return wrapRepoError(err, "removing image")
	}
	return nil
}

// SetMainImage makes imageID the only main image.
func (s *ArtworkService) SetMainImage(ctx context.Context, id, imageID uuid.UUID, caller *Caller) error {
	artwork, err := s.loadManaged(ctx, id, caller)
	if err != nil {
		return err
	}
	if !artwork.SetMainImage(imageID) {
		return NotFound("Image not found")
	}
	if err := s.repo.Save(ctx, artwork); err != nil {
		return wrapRepoError(err, "setting main image")
	}
	return nil
}

// Delete removes the artwork. Remote image cleanup never blocks the delete.
func (s *ArtworkService) Delete(ctx context.Context, id uuid.UUID, caller *Caller) error {
	artwork, err := s.loadManaged(ctx, id, caller)
	if err != nil {
		return err
	}

	if ids := artwork.PublicIDs(); len(ids) > 0 {
		if err := s.images.DeleteMany(ctx, ids); err != nil {
			log.Warn().Err(err).Str("artwork_id", artwork.ID.String()).Int("images", len(ids)).Msg("failed to delete artwork images from store")
		}
	}

	if err := s.repo.Delete(ctx, artwork.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NotFound("Artwork not found")
		}
		return DeleteFailed(err)
	}
	log.Info().Str("artwork_id", artwork.ID.String()).Msg("artwork deleted")
	return nil
}

// ToggleLike likes or unlikes the artwork for caller.
func (s *ArtworkService) ToggleLike(ctx context.Context, id uuid.UUID, caller *Caller) (bool, int64, error) {
	if caller == nil {
		return false, 0, Unauthorized("Authentication required")
	}
	artwork, err := s.loadVisible(ctx, id, caller)
	if err != nil {
		return false, 0, err
	}
	liked, count, err := s.repo.ToggleLike(ctx, artwork.ID, caller.UserID)
	if err != nil {
		return false, 0, wrapRepoError(err, "toggling like")
	}
	return liked, count, nil
}

func (s *ArtworkService) applyInput(artwork *models.Artwork, in ArtworkInput, caller *Caller) error {
	if in.Featured != nil && *in.Featured != artwork.Featured && !caller.IsAdmin() {
		return Forbidden("Only admins can change the featured flag")
	}

	if in.Title != nil {
		title := validation.SanitizeText(*in.Title)
		if title == "" {
			return Validation("Title must not be empty", nil)
		}
		if len([]rune(title)) > maxTitleLength {
			return Validation(fmt.Sprintf("Title must be at most %d characters", maxTitleLength), nil)
		}
		artwork.Title = title
	}
	if in.Description != nil {
		artwork.Description = validation.SanitizeText(*in.Description)
	}
	if in.Category != nil {
		artwork.Category = validation.SanitizeText(*in.Category)
	}
	if in.Medium != nil {
		artwork.Medium = validation.SanitizeText(*in.Medium)
	}
	if in.Style != nil {
		artwork.Style = validation.SanitizeText(*in.Style)
	}

	if in.Width != nil {
		if *in.Width <= 0 {
			return Validation("Width must be positive", nil)
		}
		artwork.Dimensions.Width = *in.Width
	}
	if in.Height != nil {
		if *in.Height <= 0 {
			return Validation("Height must be positive", nil)
		}
		artwork.Dimensions.Height = *in.Height
	}
	if in.Depth != nil {
		switch {
		case *in.Depth < 0:
			return Validation("Depth must be positive", nil)
		case *in.Depth == 0:
			artwork.Dimensions.Depth = nil
		default:
			depth := *in.Depth
			artwork.Dimensions.Depth = &depth
		}
	}
	if in.DimensionUnit != nil {
		unit := strings.ToLower(validation.SanitizeText(*in.DimensionUnit))
		if unit != "cm" && unit != "in" && unit != "mm" {
			return Validation("Dimension unit must be cm, mm or in", nil)
		}
		artwork.Dimensions.Unit = unit
	}

	if in.Price != nil {
		if *in.Price < 0 || math.IsNaN(*in.Price) || math.IsInf(*in.Price, 0) {
			return Validation("Price must not be negative", nil)
		}
		artwork.Price = *in.Price
	}
	if in.Currency != nil {
		code, err := validation.NormalizeCurrency(*in.Currency)
		if err != nil {
			return Validation("Currency must be a three letter code", err)
		}
		artwork.Currency = code
	}
	if in.Tags != nil {
		artwork.Tags = validation.NormalizeTags(*in.Tags)
	}

	if in.Status != nil {
		if !in.Status.Valid() {
			return Validation(fmt.Sprintf("Unknown status %q", *in.Status), nil)
		}
		artwork.Status = *in.Status
	}
	if in.IsPublic != nil {
		artwork.IsPublic = *in.IsPublic
	}
	if in.Availability != nil {
		if !in.Availability.Valid() {
			return Validation(fmt.Sprintf("Unknown availability %q", *in.Availability), nil)
		}
		artwork.Availability = *in.Availability
	}
	if in.Featured != nil {
		artwork.Featured = *in.Featured
	}
	return nil
}

// checkFiles enforces the image count and validates every file before any
// upload starts. It fills in the sniffed content type.
func (s *ArtworkService) checkFiles(files []UploadFile, existing int) ([]UploadFile, error) {
	if existing+len(files) > s.cfg.UploadMaxImages {
		return nil, Validation(fmt.Sprintf("An artwork can have at most %d images", s.cfg.UploadMaxImages), nil)
	}
	checked := make([]UploadFile, len(files))
	for idx, f := range files {
		mimeType, err := validation.ValidateImageFile(f.Data, s.cfg.UploadMaxImageSize)
		if err != nil {
			return nil, Validation(fmt.Sprintf("Invalid image %q", f.Name), err)
		}
		f.ContentType = mimeType
		checked[idx] = f
	}
	return checked, nil
}

// upload stores files and appends them to the artwork. It returns the new public ids.
func (s *ArtworkService) upload(ctx context.Context, artwork *models.Artwork, files []UploadFile) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	stored, err := s.images.UploadMany(ctx, files, s.cfg.ImageNamespace)
	if err != nil {
		return nil, UploadFailed(err)
	}

	images := make([]models.ArtworkImage, len(stored))
	ids := make([]string, len(stored))
	for idx, img := range stored {
		images[idx] = models.ArtworkImage{URL: img.URL, PublicID: img.PublicID}
		ids[idx] = img.PublicID
	}
	artwork.AppendImages(images...)
	return ids, nil
}

func (s *ArtworkService) discardUploads(ctx context.Context, artworkID uuid.UUID, publicIDs []string) {
	if len(publicIDs) == 0 {
		return
	}
	if err := s.images.DeleteMany(context.WithoutCancel(ctx), publicIDs); err != nil {
		log.Warn().Err(err).Str("artwork_id", artworkID.String()).Strs("public_ids", publicIDs).Msg("failed to discard uploaded images")
	}
}

// reload returns the stored artwork with its relations, or the in-memory copy
// if the read fails.
func (s *ArtworkService) reload(ctx context.Context, artwork *models.Artwork) *models.Artwork {
	fresh, err := s.repo.FindByID(ctx, artwork.ID)
	if err != nil {
		log.Warn().Err(err).Str("artwork_id", artwork.ID.String()).Msg("failed to reload artwork")
		return artwork
	}
	return fresh
}
