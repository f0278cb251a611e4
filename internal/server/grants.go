package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/gin-gonic/gin"
)

type issueGrantPayload struct {
	ViewerID     string     `json:"viewer_id"`
	ExhibitionID string     `json:"exhibition_id"`
	VersionID    string     `json:"version_id"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

func (h *httpHandler) handleIssueGrant(c *gin.Context) {
	var request issueGrantPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	grant, err := h.grants.IssueGrant(c.Request.Context(), access.IssueGrantRequest{
		ViewerID:     request.ViewerID,
		ExhibitionID: request.ExhibitionID,
		VersionID:    request.VersionID,
		ExpiresAt:    request.ExpiresAt,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, grantPayloadFrom(grant))
}

func (h *httpHandler) handleRevokeGrant(c *gin.Context) {
	grant, err := h.grants.RevokeGrant(c.Request.Context(), c.Param("grantId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grantPayloadFrom(grant))
}

func (h *httpHandler) handleCheckGrant(c *gin.Context) {
	viewerID := strings.TrimSpace(c.Query("viewer_id"))
	exhibitionID := strings.TrimSpace(c.Query("exhibition_id"))
	if viewerID == "" || exhibitionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	granted, err := h.grants.HasValidGrantForExhibition(c.Request.Context(), viewerID, exhibitionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": granted})
}
