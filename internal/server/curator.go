package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/gin-gonic/gin"
)

type createExhibitionPayload struct {
	Type                string `json:"type"`
	TotalDays           int    `json:"total_days"`
	Visibility          string `json:"visibility"`
	MonetizationEnabled bool   `json:"monetization_enabled"`
}

type updateExhibitionPayload struct {
	Type                *string `json:"type"`
	TotalDays           *int    `json:"total_days"`
	Visibility          *string `json:"visibility"`
	MonetizationEnabled *bool   `json:"monetization_enabled"`
}

type saveDraftPayload struct {
	HTML      *string         `json:"html"`
	CSS       *string         `json:"css"`
	AssetRefs json.RawMessage `json:"asset_refs"`
}

type addAssetPayload struct {
	URL           string          `json:"url"`
	ThumbnailURL  *string         `json:"thumbnail_url"`
	UsageMetadata json.RawMessage `json:"usage_metadata"`
}

type publishResponsePayload struct {
	Version      versionPayload    `json:"version"`
	Day          dayContentPayload `json:"day"`
	FirstPublish bool              `json:"first_publish"`
}

func (h *httpHandler) handleCreateExhibition(c *gin.Context) {
	var request createExhibitionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	exhibition, err := h.curation.CreateExhibition(c.Request.Context(), exhibitions.CreateExhibitionRequest{
		CuratorID:           c.GetString(curatorIDContextKey),
		Type:                request.Type,
		TotalDays:           request.TotalDays,
		Visibility:          request.Visibility,
		MonetizationEnabled: request.MonetizationEnabled,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exhibitionPayloadFrom(exhibition))
}

func (h *httpHandler) handleUpdateExhibition(c *gin.Context) {
	var request updateExhibitionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	exhibition, err := h.curation.UpdateExhibition(c.Request.Context(), exhibitions.UpdateExhibitionRequest{
		CuratorID:           c.GetString(curatorIDContextKey),
		ExhibitionID:        c.Param("exhibitionId"),
		Type:                request.Type,
		TotalDays:           request.TotalDays,
		Visibility:          request.Visibility,
		MonetizationEnabled: request.MonetizationEnabled,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exhibitionPayloadFrom(exhibition))
}

func (h *httpHandler) handleArchiveExhibition(c *gin.Context) {
	exhibition, err := h.curation.ArchiveExhibition(c.Request.Context(), c.GetString(curatorIDContextKey), c.Param("exhibitionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, exhibitionPayloadFrom(exhibition))
}

func (h *httpHandler) handleSaveDraft(c *gin.Context) {
	dayIndex, ok := dayIndexParam(c)
	if !ok {
		return
	}
	var request saveDraftPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	draft, err := h.curation.SaveDraft(c.Request.Context(), exhibitions.SaveDraftRequest{
		CuratorID:    c.GetString(curatorIDContextKey),
		ExhibitionID: c.Param("exhibitionId"),
		DayIndex:     dayIndex,
		HTML:         request.HTML,
		CSS:          request.CSS,
		AssetRefs:    request.AssetRefs,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dayContentPayloadFrom(draft))
}

func (h *httpHandler) handleAddAsset(c *gin.Context) {
	dayIndex, ok := dayIndexParam(c)
	if !ok {
		return
	}
	var request addAssetPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	asset, err := h.curation.AddAsset(c.Request.Context(), exhibitions.AddAssetRequest{
		CuratorID:     c.GetString(curatorIDContextKey),
		ExhibitionID:  c.Param("exhibitionId"),
		DayIndex:      dayIndex,
		AssetURL:      request.URL,
		ThumbnailURL:  request.ThumbnailURL,
		UsageMetadata: request.UsageMetadata,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assetPayloadFrom(asset))
}

func (h *httpHandler) handlePublish(c *gin.Context) {
	dayIndex, ok := dayIndexParam(c)
	if !ok {
		return
	}
	result, err := h.curation.Publish(c.Request.Context(), exhibitions.PublishRequest{
		CuratorID:    c.GetString(curatorIDContextKey),
		ExhibitionID: c.Param("exhibitionId"),
		DayIndex:     dayIndex,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, publishResponsePayload{
		Version: versionPayload{
			ID:        result.Version.ID,
			Sequence:  result.Version.Sequence,
			TotalDays: result.Version.TotalDays,
			CreatedAt: result.Version.CreatedAt,
		},
		Day:          dayContentPayloadFrom(result.Day),
		FirstPublish: result.FirstPublish,
	})
}

func (h *httpHandler) handleListVersionDays(c *gin.Context) {
	contents, err := h.curation.ListVersionDayContents(
		c.Request.Context(),
		c.GetString(curatorIDContextKey),
		c.Param("exhibitionId"),
		c.Param("versionId"),
	)
	if err != nil {
		h.respondError(c, err)
		return
	}
	days := make([]dayContentPayload, 0, len(contents))
	for _, content := range contents {
		days = append(days, dayContentPayloadFrom(content))
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func dayIndexParam(c *gin.Context) (int, bool) {
	dayIndex, err := strconv.Atoi(c.Param("dayIndex"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_day_index"})
		return 0, false
	}
	return dayIndex, true
}
