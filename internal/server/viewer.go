package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/runs"
	"github.com/gin-gonic/gin"
)

type claimRequestPayload struct {
	PublicTagID string `json:"public_tag_id"`
	Nickname    string `json:"nickname"`
}

type claimResponsePayload struct {
	ViewerID     string    `json:"viewer_id"`
	Nickname     string    `json:"nickname"`
	ExhibitionID string    `json:"exhibition_id,omitempty"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type activateRequestPayload struct {
	Mode string `json:"mode"`
}

type activateResponsePayload struct {
	Decision   decisionPayload `json:"decision"`
	RunID      string          `json:"run_id"`
	VersionID  string          `json:"version_id"`
	State      statePayload    `json:"state"`
	Exhibition summaryPayload  `json:"exhibition"`
}

func (h *httpHandler) handleClaim(c *gin.Context) {
	var request claimRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.PublicTagID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.sessions.Claim(c.Request.Context(), request.PublicTagID, request.Nickname)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, claimResponsePayload{
		ViewerID:     result.Profile.ID,
		Nickname:     result.Profile.Nickname,
		ExhibitionID: result.ExhibitionID,
		SessionToken: result.Issued.Token,
		ExpiresAt:    result.Issued.Session.ExpiresAt.UTC(),
	})
}

func (h *httpHandler) handleTagEntry(c *gin.Context) {
	h.resolveEntry(c, runs.EntryRequest{PublicTagID: c.Param("publicTagId")})
}

func (h *httpHandler) handleExhibitionEntry(c *gin.Context) {
	h.resolveEntry(c, runs.EntryRequest{ExhibitionID: c.Param("exhibitionId")})
}

func (h *httpHandler) resolveEntry(c *gin.Context, request runs.EntryRequest) {
	if session, ok := viewerSession(c); ok {
		request.SessionID = session.SessionID
		request.ViewerID = session.ViewerID
	}

	entry, err := h.runs.ResolveEntry(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !entry.Decision.Allowed {
		respondDenied(c, entry.Decision, entry.Summary, entry.SessionToken)
		return
	}
	c.JSON(http.StatusOK, entryPayloadFrom(entry))
}

func (h *httpHandler) handleActivate(c *gin.Context) {
	session, _ := viewerSession(c)

	var request activateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.runs.Activate(c.Request.Context(), runs.ActivateRequest{
		ExhibitionID: c.Param("exhibitionId"),
		SessionID:    session.SessionID,
		ViewerID:     session.ViewerID,
		Mode:         strings.ToUpper(strings.TrimSpace(request.Mode)),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !result.Decision.Allowed {
		respondDenied(c, result.Decision, nil, "")
		return
	}

	c.JSON(http.StatusOK, activateResponsePayload{
		Decision:   decisionPayloadFrom(result.Decision),
		RunID:      result.Run.ID,
		VersionID:  result.Run.VersionID,
		State:      statePayloadFrom(result.State),
		Exhibition: summaryPayloadFrom(result.Summary),
	})
}

func (h *httpHandler) handlePause(c *gin.Context) {
	session, _ := viewerSession(c)
	state, err := h.runs.Pause(c.Request.Context(), session.SessionID, c.Param("exhibitionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": statePayloadFrom(state)})
}

func (h *httpHandler) handleResume(c *gin.Context) {
	session, _ := viewerSession(c)
	state, err := h.runs.Resume(c.Request.Context(), session.SessionID, c.Param("exhibitionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": statePayloadFrom(state)})
}
