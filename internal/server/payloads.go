package server

import (
	"encoding/json"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/runs"
)

type decisionPayload struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func decisionPayloadFrom(decision access.Decision) decisionPayload {
	return decisionPayload{Allowed: decision.Allowed, Reason: string(decision.Reason)}
}

type summaryPayload struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	TotalDays  int    `json:"total_days"`
	Status     string `json:"status"`
	Visibility string `json:"visibility"`
}

func summaryPayloadFrom(summary exhibitions.Summary) summaryPayload {
	return summaryPayload{
		ID:         summary.ID,
		Type:       string(summary.Type),
		TotalDays:  summary.TotalDays,
		Status:     string(summary.Status),
		Visibility: string(summary.Visibility),
	}
}

type statePayload struct {
	Status       string     `json:"status"`
	LastDayIndex int        `json:"last_day_index"`
	ActivatedAt  *time.Time `json:"activated_at,omitempty"`
	PausedAt     *time.Time `json:"paused_at,omitempty"`
}

func statePayloadFrom(state runs.ViewerExhibitionState) statePayload {
	return statePayload{
		Status:       string(state.Status),
		LastDayIndex: state.LastDayIndex,
		ActivatedAt:  state.ActivatedAt,
		PausedAt:     state.PausedAt,
	}
}

type renderAssetPayload struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	ThumbnailURL  *string         `json:"thumbnail_url,omitempty"`
	UsageMetadata json.RawMessage `json:"usage_metadata,omitempty"`
}

type renderPayload struct {
	Mode      string               `json:"mode"`
	HTML      string               `json:"html,omitempty"`
	CSS       string               `json:"css,omitempty"`
	AssetRefs json.RawMessage      `json:"asset_refs,omitempty"`
	Assets    []renderAssetPayload `json:"assets,omitempty"`
	Blocks    json.RawMessage      `json:"blocks,omitempty"`
}

func renderPayloadFrom(render *runs.Render) *renderPayload {
	if render == nil {
		return nil
	}
	payload := &renderPayload{
		Mode:      string(render.Mode),
		HTML:      render.HTML,
		CSS:       render.CSS,
		AssetRefs: render.AssetRefs,
		Blocks:    render.Blocks,
	}
	for _, asset := range render.Assets {
		payload.Assets = append(payload.Assets, renderAssetPayload{
			ID:            asset.ID,
			URL:           asset.URL,
			ThumbnailURL:  asset.ThumbnailURL,
			UsageMetadata: asset.UsageMetadata,
		})
	}
	return payload
}

type entryPayload struct {
	Decision           decisionPayload `json:"decision"`
	SessionToken       string          `json:"session_token,omitempty"`
	RequiresActivation bool            `json:"requires_activation"`
	Exhibition         *summaryPayload `json:"exhibition,omitempty"`
	State              *statePayload   `json:"state,omitempty"`
	VersionID          string          `json:"version_id,omitempty"`
	DayIndex           int             `json:"day_index,omitempty"`
	Render             *renderPayload  `json:"render"`
}

func entryPayloadFrom(entry runs.Entry) entryPayload {
	payload := entryPayload{
		Decision:           decisionPayloadFrom(entry.Decision),
		SessionToken:       entry.SessionToken,
		RequiresActivation: entry.RequiresActivation,
		VersionID:          entry.VersionID,
		DayIndex:           entry.DayIndex,
		Render:             renderPayloadFrom(entry.Render),
	}
	if entry.Summary != nil {
		summary := summaryPayloadFrom(*entry.Summary)
		payload.Exhibition = &summary
	}
	if entry.State != nil {
		state := statePayloadFrom(*entry.State)
		payload.State = &state
	}
	return payload
}

type exhibitionPayload struct {
	ID                  string    `json:"id"`
	Type                string    `json:"type"`
	TotalDays           int       `json:"total_days"`
	Visibility          string    `json:"visibility"`
	Status              string    `json:"status"`
	MonetizationEnabled bool      `json:"monetization_enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func exhibitionPayloadFrom(exhibition exhibitions.Exhibition) exhibitionPayload {
	return exhibitionPayload{
		ID:                  exhibition.ID,
		Type:                string(exhibition.Type),
		TotalDays:           exhibition.TotalDays,
		Visibility:          string(exhibition.Visibility),
		Status:              string(exhibition.Status),
		MonetizationEnabled: exhibition.MonetizationEnabled,
		CreatedAt:           exhibition.CreatedAt,
		UpdatedAt:           exhibition.UpdatedAt,
	}
}

type assetPayload struct {
	ID            string          `json:"id"`
	URL           string          `json:"url"`
	ThumbnailURL  *string         `json:"thumbnail_url,omitempty"`
	UsageMetadata json.RawMessage `json:"usage_metadata,omitempty"`
}

func assetPayloadFrom(asset exhibitions.DayAsset) assetPayload {
	return assetPayload{
		ID:            asset.ID,
		URL:           asset.AssetURL,
		ThumbnailURL:  asset.ThumbnailURL,
		UsageMetadata: json.RawMessage(asset.UsageMetadata),
	}
}

type dayContentPayload struct {
	ID        string          `json:"id"`
	VersionID string          `json:"version_id"`
	DayIndex  int             `json:"day_index"`
	Status    string          `json:"status"`
	HTML      string          `json:"html"`
	CSS       string          `json:"css"`
	AssetRefs json.RawMessage `json:"asset_refs,omitempty"`
	Assets    []assetPayload  `json:"assets"`
}

func dayContentPayloadFrom(content exhibitions.DayContent) dayContentPayload {
	payload := dayContentPayload{
		ID:        content.ID,
		VersionID: content.VersionID,
		DayIndex:  content.DayIndex,
		Status:    string(content.Status),
		HTML:      content.HTML,
		CSS:       content.CSS,
		AssetRefs: json.RawMessage(content.AssetRefs),
		Assets:    make([]assetPayload, 0, len(content.Assets)),
	}
	for _, asset := range content.Assets {
		payload.Assets = append(payload.Assets, assetPayloadFrom(asset))
	}
	return payload
}

type versionPayload struct {
	ID        string    `json:"id"`
	Sequence  int64     `json:"sequence"`
	TotalDays int       `json:"total_days"`
	CreatedAt time.Time `json:"created_at"`
}

type grantPayload struct {
	ID           string     `json:"id"`
	ViewerID     string     `json:"viewer_id"`
	ExhibitionID *string    `json:"exhibition_id,omitempty"`
	VersionID    *string    `json:"version_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func grantPayloadFrom(grant access.AccessGrant) grantPayload {
	return grantPayload{
		ID:           grant.ID,
		ViewerID:     grant.ViewerID,
		ExhibitionID: grant.ExhibitionID,
		VersionID:    grant.VersionID,
		ExpiresAt:    grant.ExpiresAt,
		RevokedAt:    grant.RevokedAt,
		CreatedAt:    grant.CreatedAt,
	}
}
