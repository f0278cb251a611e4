package runs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EntryRequest identifies the exhibition either by scanned tag or directly. ViewerID and SessionID are optional.
type EntryRequest struct {
	PublicTagID  string
	ExhibitionID string
	ViewerID     string
	SessionID    string
}

// Entry is the resolved view of an exhibition for one session.
// When Decision is not allowed, or RequiresActivation is set, no run was consulted and Render is nil.
type Entry struct {
	Decision           access.Decision
	SessionToken       string
	SessionID          string
	RequiresActivation bool
	Summary            *exhibitions.Summary
	State              *ViewerExhibitionState
	VersionID          string
	DayIndex           int
	Render             *Render
}

// Render is the payload for one day. HTML mode carries markup, style and assets; BLOCKS mode carries
// the block document of exhibitions created before versioning.
type Render struct {
	Mode      exhibitions.RenderMode
	HTML      string
	CSS       string
	AssetRefs json.RawMessage
	Assets    []RenderAsset
	Blocks    json.RawMessage
}

// RenderAsset is one media item of a rendered day.
type RenderAsset struct {
	ID            string
	URL           string
	ThumbnailURL  *string
	UsageMetadata json.RawMessage
}

// ResolveEntry decides what the session sees of the exhibition right now. Entering through a tag without a
// session starts an anonymous session bound to that tag. For an activated session it loads the latest run,
// advances the stored day unless paused, and assembles the day's render payload from the run's version.
func (s *Service) ResolveEntry(ctx context.Context, request EntryRequest) (Entry, error) {
	exhibitionID := request.ExhibitionID
	entry := Entry{SessionID: request.SessionID}

	if request.PublicTagID != "" {
		binding, err := s.tags.ResolveTag(ctx, request.PublicTagID)
		if err != nil {
			return Entry{}, err
		}
		exhibitionID = binding.ExhibitionID
		if entry.SessionID == "" && s.sessions != nil {
			issued, err := s.sessions.IssueSession(ctx, request.ViewerID, binding.TagID)
			if err != nil {
				return Entry{}, err
			}
			entry.SessionID = issued.Session.SessionID
			entry.SessionToken = issued.Token
		}
	}
	if exhibitionID == "" {
		return Entry{}, serviceerr.Validation(opResolveEntry, "missing_target", errMissingTarget)
	}

	decision, err := s.access.CanAccessExhibition(ctx, access.ExhibitionRequest{
		ExhibitionID: exhibitionID,
		ViewerID:     request.ViewerID,
		SessionID:    entry.SessionID,
	})
	if err != nil {
		return Entry{}, err
	}
	entry.Decision = decision
	if !decision.Allowed && decision.Reason != access.ReasonGrantRequired {
		return entry, nil
	}

	repository := exhibitions.NewRepository(s.db)
	exhibition, err := repository.FindExhibition(ctx, exhibitionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, serviceerr.NotFound(opResolveEntry, "exhibition_missing", err)
	}
	if err != nil {
		s.logError(opResolveEntry, "exhibition_query_failed", err, zap.String("exhibition_id", exhibitionID))
		return Entry{}, serviceerr.New(opResolveEntry, "exhibition_query_failed", err)
	}
	summary := exhibition.Summary()
	entry.Summary = &summary
	if !decision.Allowed {
		return entry, nil
	}

	if entry.SessionID == "" {
		entry.RequiresActivation = true
		return entry, nil
	}
	state, found, err := s.findState(ctx, s.db, opResolveEntry, entry.SessionID, exhibition.ID)
	if err != nil {
		return Entry{}, err
	}
	if !found || state.ActivatedAt == nil {
		entry.RequiresActivation = true
		return entry, nil
	}

	run, err := s.latestRun(ctx, entry.SessionID, exhibition.ID)
	if err != nil {
		return Entry{}, err
	}
	version, err := repository.FindVersion(ctx, run.VersionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logIntegrity(opResolveEntry, "version_missing",
			zap.String("run_id", run.ID),
			zap.String("version_id", run.VersionID))
		return Entry{}, serviceerr.Integrity(opResolveEntry, "version_missing", err)
	}
	if err != nil {
		s.logError(opResolveEntry, "version_query_failed", err, zap.String("version_id", run.VersionID))
		return Entry{}, serviceerr.New(opResolveEntry, "version_query_failed", err)
	}

	now := s.clock().UTC()
	dayIndex := DayIndexAt(run, version.TotalDays, now)
	state, err = s.advance(ctx, state, dayIndex, version.TotalDays, now)
	if err != nil {
		return Entry{}, err
	}

	render, err := s.render(ctx, repository, version, dayIndex)
	if err != nil {
		return Entry{}, err
	}

	pinned := version.Summary()
	entry.Summary = &pinned
	entry.State = &state
	entry.VersionID = version.ID
	entry.DayIndex = dayIndex
	entry.Render = render
	return entry, nil
}

func (s *Service) latestRun(ctx context.Context, sessionID, exhibitionID string) (Run, error) {
	var run Run
	err := s.db.WithContext(ctx).
		Where("viewer_session_id = ? AND exhibition_id = ?", sessionID, exhibitionID).
		Order("started_at DESC, id DESC").
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logIntegrity(opResolveEntry, "run_missing",
			zap.String("session_id", sessionID),
			zap.String("exhibition_id", exhibitionID))
		return Run{}, serviceerr.NotFound(opResolveEntry, "run_missing", err)
	}
	if err != nil {
		s.logError(opResolveEntry, "run_query_failed", err, zap.String("exhibition_id", exhibitionID))
		return Run{}, serviceerr.New(opResolveEntry, "run_query_failed", err)
	}
	return run, nil
}

// advance moves lastDayIndex forward and completes the state in a single conditional write. lastDayIndex
// never moves backwards. Completion applies even when the stored day is past a shortened version's last day.
// The guard skips the write when the state was paused or advanced further by a concurrent request.
func (s *Service) advance(ctx context.Context, state ViewerExhibitionState, dayIndex, totalDays int, now time.Time) (ViewerExhibitionState, error) {
	if state.Status == StatePaused {
		return state, nil
	}
	completes := dayIndex >= totalDays && state.Status != StateCompleted
	if dayIndex <= state.LastDayIndex && !completes {
		return state, nil
	}

	updates := map[string]any{"last_day_index": gorm.Expr("MAX(last_day_index, ?)", dayIndex), "updated_at": now}
	query := s.db.WithContext(ctx).Model(&ViewerExhibitionState{}).
		Where("id = ? AND status <> ?", state.ID, StatePaused)
	if completes {
		updates["status"] = StateCompleted
		updates["paused_at"] = nil
	} else {
		query = query.Where("last_day_index <= ?", dayIndex)
	}
	outcome := query.Updates(updates)
	if outcome.Error != nil {
		s.logError(opResolveEntry, "state_advance_failed", outcome.Error, zap.String("state_id", state.ID))
		return ViewerExhibitionState{}, serviceerr.New(opResolveEntry, "state_advance_failed", outcome.Error)
	}
	if outcome.RowsAffected == 0 {
		reloaded, found, err := s.findState(ctx, s.db, opResolveEntry, state.ViewerSessionID, state.ExhibitionID)
		if err != nil {
			return ViewerExhibitionState{}, err
		}
		if !found {
			s.logIntegrity(opResolveEntry, "state_missing", zap.String("state_id", state.ID))
			return ViewerExhibitionState{}, serviceerr.Integrity(opResolveEntry, "state_missing", nil)
		}
		return reloaded, nil
	}

	state.LastDayIndex = max(state.LastDayIndex, dayIndex)
	state.UpdatedAt = now
	if completes {
		state.Status = StateCompleted
		state.PausedAt = nil
	}
	return state, nil
}

// render prefers the version's PUBLISHED content and falls back to pre-versioning content.
// A day with neither yields a nil payload.
func (s *Service) render(ctx context.Context, repository *exhibitions.Repository, version exhibitions.Version, dayIndex int) (*Render, error) {
	content, err := repository.FindDayContent(ctx, version.ID, dayIndex, exhibitions.ContentStatusPublished)
	if err == nil {
		render := &Render{
			Mode:      exhibitions.RenderModeHTML,
			HTML:      content.HTML,
			CSS:       content.CSS,
			AssetRefs: json.RawMessage(content.AssetRefs),
			Assets:    make([]RenderAsset, 0, len(content.Assets)),
		}
		for _, asset := range content.Assets {
			render.Assets = append(render.Assets, RenderAsset{
				ID:            asset.ID,
				URL:           asset.AssetURL,
				ThumbnailURL:  asset.ThumbnailURL,
				UsageMetadata: json.RawMessage(asset.UsageMetadata),
			})
		}
		return render, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opResolveEntry, "content_query_failed", err, zap.String("version_id", version.ID))
		return nil, serviceerr.New(opResolveEntry, "content_query_failed", err)
	}

	legacy, err := repository.FindLegacyExhibit(ctx, version.ExhibitionID, dayIndex)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opResolveEntry, "legacy_query_failed", err, zap.String("exhibition_id", version.ExhibitionID))
		return nil, serviceerr.New(opResolveEntry, "legacy_query_failed", err)
	}
	switch legacy.Mode {
	case exhibitions.RenderModeBlocks:
		blocks := json.RawMessage(legacy.BlocksJSON)
		if len(blocks) == 0 {
			blocks = json.RawMessage("[]")
		}
		return &Render{Mode: exhibitions.RenderModeBlocks, Blocks: blocks}, nil
	case exhibitions.RenderModeHTML:
		return &Render{Mode: exhibitions.RenderModeHTML, HTML: legacy.HTML, CSS: legacy.CSS}, nil
	default:
		return nil, nil
	}
}
