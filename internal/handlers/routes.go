package handlers

import (
	"github.com/gin-gonic/gin"
)

// RouteMiddleware groups the per-route middleware the artwork routes need.
type RouteMiddleware struct {
	Auth         gin.HandlerFunc
	OptionalAuth gin.HandlerFunc
	UploadLimit  gin.HandlerFunc
}

// RegisterArtworkRoutes mounts the artwork endpoints on api.
func RegisterArtworkRoutes(api *gin.RouterGroup, h *ArtworkHandler, mw RouteMiddleware) {
	artworks := api.Group("/artworks")
	{
		artworks.GET("", mw.OptionalAuth, h.ListArtworks)
		artworks.GET("/:id", mw.OptionalAuth, h.GetArtwork)
		artworks.GET("/:id/related", mw.OptionalAuth, h.GetRelatedArtworks)

		artworks.POST("", mw.Auth, mw.UploadLimit, h.CreateArtwork)
		artworks.PUT("/:id", mw.Auth, mw.UploadLimit, h.UpdateArtwork)
		artworks.DELETE("/:id", mw.Auth, h.DeleteArtwork)
		artworks.POST("/:id/like", mw.Auth, h.ToggleLike)
		artworks.DELETE("/:id/images/:imageId", mw.Auth, h.RemoveImage)
		artworks.PUT("/:id/images/:imageId/main", mw.Auth, h.SetMainImage)
	}
}
