package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type subscriptionPayload struct {
	Active bool `json:"active"`
}

type galleryItemPayload struct {
	Exhibition         summaryPayload      `json:"exhibition"`
	ViewerSubscription subscriptionPayload `json:"viewer_subscription"`
}

type galleryResponsePayload struct {
	Exhibitions []galleryItemPayload `json:"exhibitions"`
}

// galleryAllowed answers the gallery governance check and writes the denial when locked.
func (h *httpHandler) galleryAllowed(c *gin.Context) bool {
	session, _ := viewerSession(c)
	decision, err := h.access.CanAccessGallery(c.Request.Context(), session.SessionID)
	if err != nil {
		h.respondError(c, err)
		return false
	}
	if !decision.Allowed {
		respondDenied(c, decision, nil, "")
		return false
	}
	return true
}

func (h *httpHandler) handleListGallery(c *gin.Context) {
	if !h.galleryAllowed(c) {
		return
	}

	listed, err := h.gallery.ListGallery(c.Request.Context())
	if err != nil {
		h.logger.Error("gallery listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	response := galleryResponsePayload{Exhibitions: make([]galleryItemPayload, 0, len(listed))}
	for _, exhibition := range listed {
		item, err := h.galleryItem(c, exhibition)
		if err != nil {
			h.respondError(c, err)
			return
		}
		response.Exhibitions = append(response.Exhibitions, item)
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGalleryExhibition(c *gin.Context) {
	if !h.galleryAllowed(c) {
		return
	}

	exhibition, err := h.gallery.FindGalleryExhibition(c.Request.Context(), c.Param("exhibitionId"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("gallery lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	item, err := h.galleryItem(c, exhibition)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *httpHandler) galleryItem(c *gin.Context, exhibition exhibitions.Exhibition) (galleryItemPayload, error) {
	item := galleryItemPayload{Exhibition: summaryPayloadFrom(exhibition.Summary())}
	session, ok := viewerSession(c)
	if !ok || session.ViewerID == "" {
		return item, nil
	}
	active, err := h.grants.HasValidGrantForExhibition(c.Request.Context(), session.ViewerID, exhibition.ID)
	if err != nil {
		return galleryItemPayload{}, err
	}
	item.ViewerSubscription.Active = active
	return item, nil
}
