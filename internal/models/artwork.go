package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type ArtworkStatus string

const (
	ArtworkStatusDraft     ArtworkStatus = "draft"
	ArtworkStatusPublished ArtworkStatus = "published"
	ArtworkStatusArchived  ArtworkStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ArtworkStatus) Valid() bool {
	switch s {
	case ArtworkStatusDraft, ArtworkStatusPublished, ArtworkStatusArchived:
		return true
	}
	return false
}

type Availability string

const (
	AvailabilityAvailable  Availability = "available"
	AvailabilitySold       Availability = "sold"
	AvailabilityReserved   Availability = "reserved"
	AvailabilityNotForSale Availability = "not_for_sale"
)

func (a Availability) Valid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilitySold, AvailabilityReserved, AvailabilityNotForSale:
		return true
	}
	return false
}

// Dimensions of the physical piece. Depth is optional (flat works).
type Dimensions struct {
	Width  float64  `gorm:"column:width" json:"width"`
	Height float64  `gorm:"column:height" json:"height"`
	Depth  *float64 `gorm:"column:depth" json:"depth,omitempty"`
	Unit   string   `gorm:"column:dimension_unit;size:8;default:cm" json:"unit"`
}

// Artwork is a listed piece together with its ordered images.
type Artwork struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:80;index" json:"category"`
	Medium      string    `gorm:"size:120" json:"medium"`
	Style       string    `gorm:"size:120;index" json:"style"`

	Dimensions Dimensions `gorm:"embedded" json:"dimensions"`

	Price    float64        `gorm:"type:numeric(12,2);not null;default:0;index" json:"price"`
	Currency string         `gorm:"size:3;not null;default:USD" json:"currency"`
	Tags     pq.StringArray `gorm:"type:text[]" json:"tags"`

	Status       ArtworkStatus `gorm:"size:16;not null;default:draft;index" json:"status"`
	IsPublic     bool          `gorm:"not null;default:true;index" json:"isPublic"`
	Availability Availability  `gorm:"size:16;not null;default:available" json:"availability"`
	Featured     bool          `gorm:"not null;default:false;index" json:"featured"`

	ArtistID uuid.UUID `gorm:"type:uuid;not null;index" json:"artistId"`
	Artist   *User     `gorm:"foreignKey:ArtistID" json:"artist,omitempty"`

	Views int64 `gorm:"not null;default:0" json:"views"`

	Images []ArtworkImage `gorm:"foreignKey:ArtworkID;constraint:OnDelete:CASCADE" json:"images"`
	Likes  []ArtworkLike  `gorm:"foreignKey:ArtworkID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a *Artwork) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IsListed reports whether the artwork may appear in public listings.
func (a *Artwork) IsListed() bool {
	return a.Status == ArtworkStatusPublished && a.IsPublic
}

// IsOwnedBy reports whether userID is the artist of record.
func (a *Artwork) IsOwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && a.ArtistID == userID
}

// LikeCount counts the loaded likes.
func (a *Artwork) LikeCount() int {
	return len(a.Likes)
}

// ArtworkImage is owned by an Artwork and ordered by Position.
type ArtworkImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ArtworkID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	Position  int       `gorm:"not null;default:0" json:"-"`
	URL       string    `gorm:"size:1024;not null" json:"url"`
	PublicID  string    `gorm:"size:512" json:"publicId"`
	IsMain    bool      `gorm:"not null;default:false" json:"isMain"`
	CreatedAt time.Time `json:"createdAt"`
}

func (i *ArtworkImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ArtworkLike records one user's like. The composite key keeps likes unique per user.
type ArtworkLike struct {
	ArtworkID uuid.UUID `gorm:"type:uuid;primaryKey" json:"artworkId"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"userId"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppendImages adds images after the existing ones. When the artwork has no
// main image yet, the first appended image becomes main.
func (a *Artwork) AppendImages(images ...ArtworkImage) {
	hadMain := a.MainImage() != nil
	for idx := range images {
		img := images[idx]
		if img.ID == uuid.Nil {
			img.ID = uuid.New()
		}
		img.ArtworkID = a.ID
		img.IsMain = !hadMain && idx == 0
		a.Images = append(a.Images, img)
	}
	a.renumber()
}

// RemoveImage drops the image with the given local id and returns it.
// If the removed image was main, the new first image takes over.
func (a *Artwork) RemoveImage(imageID uuid.UUID) (ArtworkImage, bool) {
	for idx, img := range a.Images {
		if img.ID != imageID {
			continue
		}
		a.Images = append(a.Images[:idx:idx], a.Images[idx+1:]...)
		a.renumber()
		if img.IsMain {
			a.normalizeMain()
		}
		return img, true
	}
	return ArtworkImage{}, false
}

// SetMainImage flags exactly the matching image as main. It reports false and
// leaves the images untouched when no image matches.
func (a *Artwork) SetMainImage(imageID uuid.UUID) bool {
	found := false
	for _, img := range a.Images {
		if img.ID == imageID {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for idx := range a.Images {
		a.Images[idx].IsMain = a.Images[idx].ID == imageID
	}
	return true
}

// MainImage returns the current main image, if any.
func (a *Artwork) MainImage() *ArtworkImage {
	for idx := range a.Images {
		if a.Images[idx].IsMain {
			return &a.Images[idx]
		}
	}
	return nil
}

// PublicIDs lists the non-empty external identifiers of all images.
func (a *Artwork) PublicIDs() []string {
	ids := make([]string, 0, len(a.Images))
	for _, img := range a.Images {
		if img.PublicID != "" {
			ids = append(ids, img.PublicID)
		}
	}
	return ids
}

// normalizeMain keeps at most one main image and, when images exist, exactly one.
func (a *Artwork) normalizeMain() {
	seen := false
	for idx := range a.Images {
		if a.Images[idx].IsMain {
			if seen {
				a.Images[idx].IsMain = false
			}
			seen = true
		}
	}
	if !seen && len(a.Images) > 0 {
		a.Images[0].IsMain = true
	}
}

func (a *Artwork) renumber() {
	for idx := range a.Images {
		a.Images[idx].Position = idx
	}
}
