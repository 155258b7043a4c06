package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/synesthesie/artmarket/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when an artwork does not exist.
var ErrNotFound = errors.New("artwork not found")

// SortField is a column listings can be ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByPrice     SortField = "price"
	SortByViews     SortField = "views"
	SortByTitle     SortField = "title"
)

var sortColumns = map[SortField]string{
	SortByCreatedAt: "created_at",
	SortByUpdatedAt: "updated_at",
	SortByPrice:     "price",
	SortByViews:     "views",
	SortByTitle:     "title",
}

// ParseSortField maps a client supplied name onto a known sort column.
func ParseSortField(name string) (SortField, bool) {
	f := SortField(name)
	_, ok := sortColumns[f]
	return f, ok
}

// ListQuery holds normalized listing parameters. Zero values mean "no filter".
type ListQuery struct {
	Offset    int
	Limit     int
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	Medium    string
	Style     string
	Search    string
	Featured  *bool
	ArtistID  *uuid.UUID
	SortBy    SortField
	Ascending bool
}

// ArtworkRepository persists artworks with their images and likes.
type ArtworkRepository interface {
	// List returns one page of listed (published and public) artworks plus the total match count.
	List(ctx context.Context, q ListQuery) ([]models.Artwork, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Artwork, error)
	Create(ctx context.Context, artwork *models.Artwork) error
	// Save writes the editable columns and synchronizes the image set. Views are never written.
	Save(ctx context.Context, artwork *models.Artwork) error
	Delete(ctx context.Context, id uuid.UUID) error
	// IncrementViews atomically adds one view and returns the new count.
	IncrementViews(ctx context.Context, id uuid.UUID) (int64, error)
	// ToggleLike removes the user's like if present, adds it otherwise.
	ToggleLike(ctx context.Context, artworkID, userID uuid.UUID) (liked bool, count int64, err error)
	// Related returns listed artworks sharing category, style, artist or a tag with the given one.
	Related(ctx context.Context, artwork *models.Artwork, limit int) ([]models.Artwork, error)
}

// editableColumns are written by Save. views, artist_id and created_at are deliberately absent.
var editableColumns = []string{
	"title", "description", "category", "medium", "style",
	"width", "height", "depth", "dimension_unit",
	"price", "currency", "tags",
	"status", "is_public", "availability", "featured",
	"updated_at",
}

type gormArtworkRepository struct {
	db *gorm.DB
}

// NewArtworkRepository returns a postgres backed repository.
func NewArtworkRepository(db *gorm.DB) ArtworkRepository {
	return &gormArtworkRepository{db: db}
}

func preloadArtist(db *gorm.DB) *gorm.DB {
	return db.Select("id", "role", "first_name", "last_name", "artist_name", "is_verified")
}

func preloadImages(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func preloadLikes(db *gorm.DB) *gorm.DB {
	return db.Select("artwork_id", "user_id", "created_at")
}

// listedScope is the baseline every public listing applies.
func listedScope(db *gorm.DB) *gorm.DB {
	return db.Where("status = ? AND is_public = ?", models.ArtworkStatusPublished, true)
}

// filterScope applies the optional listing filters.
func filterScope(q ListQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if q.Category != "" {
			db = db.Where("category = ?", q.Category)
		}
		if q.MinPrice != nil {
			db = db.Where("price >= ?", *q.MinPrice)
		}
		if q.MaxPrice != nil {
			db = db.Where("price <= ?", *q.MaxPrice)
		}
		if q.Medium != "" {
			db = db.Where("medium ILIKE ?", containsPattern(q.Medium))
		}
		if q.Style != "" {
			db = db.Where("style ILIKE ?", containsPattern(q.Style))
		}
		if q.Featured != nil {
			db = db.Where("featured = ?", *q.Featured)
		}
		if q.ArtistID != nil {
			db = db.Where("artist_id = ?", *q.ArtistID)
		}
		if q.Search != "" {
			db = db.Where(models.SearchDocument+" @@ plainto_tsquery('simple', ?)", q.Search)
		}
		return db
	}
}

func orderScope(q ListQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		column, ok := sortColumns[q.SortBy]
		if !ok {
			column = sortColumns[SortByCreatedAt]
		}
		return db.
			Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: !q.Ascending}).
			Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})
	}
}

func (r *gormArtworkRepository) List(ctx context.Context, q ListQuery) ([]models.Artwork, int64, error) {
	var (
		artworks []models.Artwork
		total    int64
	)

	base := r.db.WithContext(ctx).Model(&models.Artwork{}).Scopes(listedScope, filterScope(q))
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count artworks: %w", err)
	}
	if total == 0 || int64(q.Offset) >= total {
		return []models.Artwork{}, total, nil
	}

	err := base.Session(&gorm.Session{}).
		Scopes(orderScope(q)).
		Preload("Artist", preloadArtist).
		Preload("Images", preloadImages).
		Preload("Likes", preloadLikes).
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&artworks).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list artworks: %w", err)
	}
	return artworks, total, nil
}

func (r *gormArtworkRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Artwork, error) {
	var artwork models.Artwork
	err := r.db.WithContext(ctx).
		Preload("Artist", preloadArtist).
		Preload("Images", preloadImages).
		Preload("Likes", preloadLikes).
		Preload("Likes.User", preloadArtist).
		First(&artwork, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &artwork, nil
}

func (r *gormArtworkRepository) Create(ctx context.Context, artwork *models.Artwork) error {
	// Images are created through the association in the same transaction.
	if err := r.db.WithContext(ctx).Omit("Artist", "Likes").Create(artwork).Error; err != nil {
		return fmt.Errorf("create artwork: %w", err)
	}
	return nil
}

func (r *gormArtworkRepository) Save(ctx context.Context, artwork *models.Artwork) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := updateEditable(tx, artwork)
		if res.Error != nil {
			return fmt.Errorf("update artwork: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		keep := make([]uuid.UUID, 0, len(artwork.Images))
		for _, img := range artwork.Images {
			keep = append(keep, img.ID)
		}

		stale := tx.Where("artwork_id = ?", artwork.ID)
		if len(keep) > 0 {
			stale = stale.Where("id NOT IN ?", keep)
		}
		if err := stale.Delete(&models.ArtworkImage{}).Error; err != nil {
			return fmt.Errorf("remove images: %w", err)
		}

		if len(artwork.Images) == 0 {
			return nil
		}
		for idx := range artwork.Images {
			artwork.Images[idx].ArtworkID = artwork.ID
		}
		if err := upsertImages(tx, artwork.Images).Error; err != nil {
			return fmt.Errorf("upsert images: %w", err)
		}
		return nil
	})
}

func (r *gormArtworkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("artwork_id = ?", id).Delete(&models.ArtworkLike{}).Error; err != nil {
			return fmt.Errorf("delete likes: %w", err)
		}
		if err := tx.Where("artwork_id = ?", id).Delete(&models.ArtworkImage{}).Error; err != nil {
			return fmt.Errorf("delete images: %w", err)
		}
		res := tx.Delete(&models.Artwork{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete artwork: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormArtworkRepository) IncrementViews(ctx context.Context, id uuid.UUID) (int64, error) {
	var artwork models.Artwork
	res := incrementViews(r.db.WithContext(ctx), &artwork, id)
	if res.Error != nil {
		return 0, fmt.Errorf("increment views: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return artwork.Views, nil
}

func (r *gormArtworkRepository) ToggleLike(ctx context.Context, artworkID, userID uuid.UUID) (bool, int64, error) {
	var (
		liked bool
		count int64
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed := removeLike(tx, artworkID, userID)
		if removed.Error != nil {
			return fmt.Errorf("remove like: %w", removed.Error)
		}
		if removed.RowsAffected == 0 {
			like := models.ArtworkLike{ArtworkID: artworkID, UserID: userID}
			if err := insertLike(tx, &like).Error; err != nil {
				return fmt.Errorf("add like: %w", err)
			}
			liked = true
		}
		return tx.Model(&models.ArtworkLike{}).Where("artwork_id = ?", artworkID).Count(&count).Error
	})
	if err != nil {
		return false, 0, err
	}
	return liked, count, nil
}

func (r *gormArtworkRepository) Related(ctx context.Context, artwork *models.Artwork, limit int) ([]models.Artwork, error) {
	var related []models.Artwork

	err := r.db.WithContext(ctx).
		Scopes(listedScope, relatedScope(artwork)).
		Preload("Artist", preloadArtist).
		Preload("Images", preloadImages).
		Preload("Likes", preloadLikes).
		Order("created_at DESC").
		Order("id").
		Limit(limit).
		Find(&related).Error
	if err != nil {
		return nil, fmt.Errorf("related artworks: %w", err)
	}
	return related, nil
}

// updateEditable writes only editableColumns of artwork.
func updateEditable(tx *gorm.DB, artwork *models.Artwork) *gorm.DB {
	return tx.Model(&models.Artwork{ID: artwork.ID}).
		Select(editableColumns).
		Omit(clause.Associations).
		Updates(artwork)
}

// upsertImages inserts new images and rewrites order, flag and location of existing ones.
func upsertImages(tx *gorm.DB, images []models.ArtworkImage) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"position", "is_main", "url", "public_id"}),
	}).Create(&images)
}

// incrementViews adds one view in the database and scans the new count into dest.
func incrementViews(tx *gorm.DB, dest *models.Artwork, id uuid.UUID) *gorm.DB {
	return tx.Model(dest).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "views"}}}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
}

func removeLike(tx *gorm.DB, artworkID, userID uuid.UUID) *gorm.DB {
	return tx.Where("artwork_id = ? AND user_id = ?", artworkID, userID).Delete(&models.ArtworkLike{})
}

// insertLike is a no-op when a concurrent toggle already inserted the same pair.
func insertLike(tx *gorm.DB, like *models.ArtworkLike) *gorm.DB {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(like)
}

// relatedScope matches other artworks sharing the artist, category, style or any tag.
func relatedScope(artwork *models.Artwork) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		match := db.Session(&gorm.Session{NewDB: true}).Where("artist_id = ?", artwork.ArtistID)
		if artwork.Category != "" {
			match = match.Or("category = ?", artwork.Category)
		}
		if artwork.Style != "" {
			match = match.Or("style = ?", artwork.Style)
		}
		if len(artwork.Tags) > 0 {
			match = match.Or("tags && ?", pq.StringArray(artwork.Tags))
		}
		return db.Where("id <> ?", artwork.ID).Where(match)
	}
}

func containsPattern(s string) string {
	r := []rune{}
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return "%" + string(r) + "%"
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
