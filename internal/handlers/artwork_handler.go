package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/synesthesie/artmarket/internal/config"
	"github.com/synesthesie/artmarket/internal/middleware"
	"github.com/synesthesie/artmarket/internal/models"
	"github.com/synesthesie/artmarket/internal/services"
)

// imagesField is the multipart field carrying image files.
const imagesField = "images"

type ArtworkHandler struct {
	artworkService *services.ArtworkService
	cfg            *config.Config
}

func NewArtworkHandler(artworkService *services.ArtworkService, cfg *config.Config) *ArtworkHandler {
	return &ArtworkHandler{artworkService: artworkService, cfg: cfg}
}

type listArtworksQuery struct {
	Page      int      `form:"page"`
	Limit     int      `form:"limit"`
	Category  string   `form:"category"`
	MinPrice  *float64 `form:"minPrice" binding:"omitempty,min=0"`
	MaxPrice  *float64 `form:"maxPrice" binding:"omitempty,min=0"`
	Medium    string   `form:"medium"`
	Style     string   `form:"style"`
	Search    string   `form:"search"`
	Featured  *bool    `form:"featured"`
	ArtistID  string   `form:"artistId" binding:"omitempty,uuid"`
	SortBy    string   `form:"sortBy"`
	SortOrder string   `form:"sortOrder" binding:"omitempty,oneof=asc desc"`
}

type dimensionsRequest struct {
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
	Depth  *float64 `json:"depth"`
	Unit   *string  `json:"unit"`
}

// artworkRequest is bound from multipart forms and JSON bodies alike.
type artworkRequest struct {
	Title        *string            `form:"title" json:"title"`
	Description  *string            `form:"description" json:"description"`
	Category     *string            `form:"category" json:"category"`
	Medium       *string            `form:"medium" json:"medium"`
	Style        *string            `form:"style" json:"style"`
	Width        *float64           `form:"width" json:"width"`
	Height       *float64           `form:"height" json:"height"`
	Depth        *float64           `form:"depth" json:"depth"`
	Unit         *string            `form:"unit" json:"unit"`
	Dimensions   *dimensionsRequest `form:"-" json:"dimensions"`
	Price        *float64           `form:"price" json:"price"`
	Currency     *string            `form:"currency" json:"currency"`
	Tags         []string           `form:"tags" json:"tags"`
	Status       *string            `form:"status" json:"status"`
	IsPublic     *bool              `form:"isPublic" json:"isPublic"`
	Availability *string            `form:"availability" json:"availability"`
	Featured     *bool              `form:"featured" json:"featured"`
}

func (r *artworkRequest) toInput(multipartForm bool) services.ArtworkInput {
	in := services.ArtworkInput{
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		Medium:        r.Medium,
		Style:         r.Style,
		Width:         r.Width,
		Height:        r.Height,
		Depth:         r.Depth,
		DimensionUnit: r.Unit,
		Price:         r.Price,
		Currency:      r.Currency,
		IsPublic:      r.IsPublic,
		Featured:      r.Featured,
	}
	if d := r.Dimensions; d != nil {
		in.Width = firstSet(in.Width, d.Width)
		in.Height = firstSet(in.Height, d.Height)
		in.Depth = firstSet(in.Depth, d.Depth)
		in.DimensionUnit = firstSet(in.DimensionUnit, d.Unit)
	}
	if r.Tags != nil {
		tags := r.Tags
		if multipartForm {
			tags = splitTags(tags)
		}
		in.Tags = &tags
	}
	if r.Status != nil {
		status := models.ArtworkStatus(strings.ToLower(strings.TrimSpace(*r.Status)))
		in.Status = &status
	}
	if r.Availability != nil {
		availability := models.Availability(strings.ToLower(strings.TrimSpace(*r.Availability)))
		in.Availability = &availability
	}
	return in
}

func firstSet[T any](values ...*T) *T {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// splitTags accepts both repeated form fields and comma separated values.
func splitTags(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		validationError(c, fmt.Sprintf("Invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}

// ListArtworks returns published public artworks
func (h *ArtworkHandler) ListArtworks(c *gin.Context) {
	var q listArtworksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		validationError(c, "Invalid query parameters: "+err.Error())
		return
	}

	params := services.ListParams{
		Page:      q.Page,
		Limit:     q.Limit,
		Category:  q.Category,
		MinPrice:  q.MinPrice,
		MaxPrice:  q.MaxPrice,
		Medium:    q.Medium,
		Style:     q.Style,
		Search:    q.Search,
		Featured:  q.Featured,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	}
	if q.ArtistID != "" {
		artistID := uuid.MustParse(q.ArtistID)
		params.ArtistID = &artistID
	}

	page, err := h.artworkService.List(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"artworks": toArtworkResponses(page.Artworks, h.artworkService.Images(), middleware.CallerFrom(c)),
		"pagination": paginationResponse{
			CurrentPage:  page.Page,
			TotalPages:   page.TotalPages,
			TotalItems:   page.TotalItems,
			ItemsPerPage: page.Limit,
		},
	})
}

// GetArtwork returns one artwork and counts the view
func (h *ArtworkHandler) GetArtwork(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	caller := middleware.CallerFrom(c)

	artwork, err := h.artworkService.Get(c.Request.Context(), id, caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artwork": toArtworkResponse(artwork, h.artworkService.Images(), caller)})
}

// GetRelatedArtworks returns similar listed artworks
func (h *ArtworkHandler) GetRelatedArtworks(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			validationError(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	caller := middleware.CallerFrom(c)

	related, err := h.artworkService.Related(c.Request.Context(), id, caller, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relatedArtworks": toArtworkResponses(related, h.artworkService.Images(), caller)})
}

// CreateArtwork creates an artwork from a multipart form or a JSON body
func (h *ArtworkHandler) CreateArtwork(c *gin.Context) {
	input, files, ok := h.bindArtwork(c)
	if !ok {
		return
	}
	caller := middleware.CallerFrom(c)

	artwork, err := h.artworkService.Create(c.Request.Context(), caller, input, files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Artwork created successfully",
		"artwork": toArtworkResponse(artwork, h.artworkService.Images(), caller),
	})
}

// UpdateArtwork merges the given fields and appends uploaded images
func (h *ArtworkHandler) UpdateArtwork(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	input, files, ok := h.bindArtwork(c)
	if !ok {
		return
	}
	caller := middleware.CallerFrom(c)

	artwork, err := h.artworkService.Update(c.Request.Context(), id, caller, input, files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Artwork updated successfully",
		"artwork": toArtworkResponse(artwork, h.artworkService.Images(), caller),
	})
}

// DeleteArtwork removes an artwork and its images
func (h *ArtworkHandler) DeleteArtwork(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.artworkService.Delete(c.Request.Context(), id, middleware.CallerFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Artwork deleted successfully"})
}

// ToggleLike likes or unlikes an artwork
func (h *ArtworkHandler) ToggleLike(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	liked, count, err := h.artworkService.ToggleLike(c.Request.Context(), id, middleware.CallerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Artwork unliked"
	if liked {
		message = "Artwork liked"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "liked": liked, "likeCount": count})
}

// RemoveImage deletes one image of an artwork
func (h *ArtworkHandler) RemoveImage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	imageID, ok := parseID(c, "imageId")
	if !ok {
		return
	}
	if err := h.artworkService.RemoveImage(c.Request.Context(), id, imageID, middleware.CallerFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image removed successfully"})
}

// SetMainImage marks one image as the cover
func (h *ArtworkHandler) SetMainImage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	imageID, ok := parseID(c, "imageId")
	if !ok {
		return
	}
	if err := h.artworkService.SetMainImage(c.Request.Context(), id, imageID, middleware.CallerFrom(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Main image updated successfully"})
}

// bindArtwork reads the fields and, for multipart requests, the image files.
func (h *ArtworkHandler) bindArtwork(c *gin.Context) (services.ArtworkInput, []services.UploadFile, bool) {
	isMultipart := strings.HasPrefix(c.ContentType(), "multipart/")
	if isMultipart {
		bodyLimit := int64(h.cfg.UploadMaxImages)*h.cfg.UploadMaxImageSize + 1<<20
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)
	}

	var req artworkRequest
	if err := c.ShouldBind(&req); err != nil {
		validationError(c, "Invalid request body: "+err.Error())
		return services.ArtworkInput{}, nil, false
	}
	if !isMultipart {
		return req.toInput(false), nil, true
	}

	form, err := c.MultipartForm()
	if err != nil {
		validationError(c, "Invalid multipart form")
		return services.ArtworkInput{}, nil, false
	}
	files, err := h.readFiles(form.File[imagesField])
	if err != nil {
		validationError(c, err.Error())
		return services.ArtworkInput{}, nil, false
	}
	return req.toInput(true), files, true
}

// readFiles loads the uploaded parts. Reads stop one byte past the size
// limit so oversized files are still rejected by validation.
func (h *ArtworkHandler) readFiles(headers []*multipart.FileHeader) ([]services.UploadFile, error) {
	files := make([]services.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read file %q", fh.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(f, h.cfg.UploadMaxImageSize+1))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read file %q", fh.Filename)
		}
		files = append(files, services.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}
