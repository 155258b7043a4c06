package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/synesthesie/artmarket/internal/models"
	"github.com/synesthesie/artmarket/internal/services"
)

type imageResponse struct {
	ID       uuid.UUID               `json:"id"`
	URL      string                  `json:"url"`
	PublicID string                  `json:"publicId"`
	IsMain   bool                    `json:"isMain"`
	Variants *services.ImageVariants `json:"variants"`
}

type artistResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	ArtistName  string    `json:"artistName,omitempty"`
	IsVerified  bool      `json:"isVerified"`
}

type artworkResponse struct {
	ID           uuid.UUID            `json:"id"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Category     string               `json:"category"`
	Medium       string               `json:"medium"`
	Style        string               `json:"style"`
	Dimensions   models.Dimensions    `json:"dimensions"`
	Price        float64              `json:"price"`
	Currency     string               `json:"currency"`
	Tags         []string             `json:"tags"`
	Status       models.ArtworkStatus `json:"status"`
	IsPublic     bool                 `json:"isPublic"`
	Availability models.Availability  `json:"availability"`
	Featured     bool                 `json:"featured"`
	ArtistID     uuid.UUID            `json:"artistId"`
	Artist       *artistResponse      `json:"artist,omitempty"`
	Images       []imageResponse      `json:"images"`
	Views        int64                `json:"views"`
	LikeCount    int                  `json:"likeCount"`
	IsLiked      bool                 `json:"isLiked"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

type paginationResponse struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

func toArtworkResponse(a *models.Artwork, images services.ImageStore, caller *services.Caller) artworkResponse {
	resp := artworkResponse{
		ID:           a.ID,
		Title:        a.Title,
		Description:  a.Description,
		Category:     a.Category,
		Medium:       a.Medium,
		Style:        a.Style,
		Dimensions:   a.Dimensions,
		Price:        a.Price,
		Currency:     a.Currency,
		Tags:         append([]string{}, a.Tags...),
		Status:       a.Status,
		IsPublic:     a.IsPublic,
		Availability: a.Availability,
		Featured:     a.Featured,
		ArtistID:     a.ArtistID,
		Images:       make([]imageResponse, 0, len(a.Images)),
		Views:        a.Views,
		LikeCount:    a.LikeCount(),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.Artist != nil {
		resp.Artist = &artistResponse{
			ID:          a.Artist.ID,
			DisplayName: a.Artist.DisplayName(),
			FirstName:   a.Artist.FirstName,
			LastName:    a.Artist.LastName,
			ArtistName:  a.Artist.ArtistName,
			IsVerified:  a.Artist.IsVerified,
		}
	}
	for _, img := range a.Images {
		resp.Images = append(resp.Images, imageResponse{
			ID:       img.ID,
			URL:      img.URL,
			PublicID: img.PublicID,
			IsMain:   img.IsMain,
			Variants: images.VariantsFor(img.PublicID),
		})
	}
	if caller != nil {
		for _, like := range a.Likes {
			if like.UserID == caller.UserID {
				resp.IsLiked = true
				break
			}
		}
	}
	return resp
}

func toArtworkResponses(artworks []models.Artwork, images services.ImageStore, caller *services.Caller) []artworkResponse {
	out := make([]artworkResponse, 0, len(artworks))
	for idx := range artworks {
		out = append(out, toArtworkResponse(&artworks[idx], images, caller))
	}
	return out
}

var errorStatus = map[services.ErrorKind]int{
	services.KindNotFound:     http.StatusNotFound,
	services.KindForbidden:    http.StatusForbidden,
	services.KindValidation:   http.StatusBadRequest,
	services.KindUpload:       http.StatusBadRequest,
	services.KindDelete:       http.StatusInternalServerError,
	services.KindUnauthorized: http.StatusUnauthorized,
	services.KindInternal:     http.StatusInternalServerError,
}

// respondError writes {"error": kind, "message": text}. Inner errors only go to the log.
func respondError(c *gin.Context, err error) {
	kind := services.KindInternal
	message := "Internal server error"

	var se *services.ServiceError
	if errors.As(err, &se) {
		kind = se.Kind
		message = se.Message
	}
	status, ok := errorStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError || kind == services.KindUpload {
		log.Error().Err(err).AnErr("cause", errors.Unwrap(err)).Str("kind", string(kind)).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": string(kind), "message": message})
}

func validationError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": string(services.KindValidation), "message": message})
}
