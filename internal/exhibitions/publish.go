package exhibitions

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/unfold/internal/events"
	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PublishRequest identifies the drafted day a curator publishes.
type PublishRequest struct {
	CuratorID    string
	ExhibitionID string
	DayIndex     int
}

// PublishResult describes the version created by a publish and the day it published.
type PublishResult struct {
	Version      Version
	Day          DayContent
	FirstPublish bool
}

// Publish snapshots a new version of the exhibition in a single transaction. Every day PUBLISHED under the
// previous version is duplicated onto the new one, the drafted day is published over it, and pending drafts of
// other days move forward with it. Earlier versions are never modified, so runs pinned to them keep rendering
// the content they started with.
func (s *Service) Publish(ctx context.Context, request PublishRequest) (PublishResult, error) {
	var result PublishResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repository := NewRepository(tx)
		exhibition, err := s.ownedExhibition(ctx, repository, opPublish, request.CuratorID, request.ExhibitionID)
		if err != nil {
			return err
		}
		if err := ValidateDayIndex(request.DayIndex, exhibition.TotalDays); err != nil {
			return serviceerr.Validation(opPublish, "invalid_day_index", err)
		}

		latest, err := repository.LatestVersion(ctx, exhibition.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return serviceerr.NotFound(opPublish, "draft_missing", err)
		}
		if err != nil {
			s.logError(opPublish, "version_query_failed", err, zap.String("exhibition_id", exhibition.ID))
			return serviceerr.New(opPublish, "version_query_failed", err)
		}

		draft, err := repository.FindDayContent(ctx, latest.ID, request.DayIndex, ContentStatusDraft)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return serviceerr.NotFound(opPublish, "draft_missing", err)
		}
		if err != nil {
			s.logError(opPublish, "draft_query_failed", err, zap.String("version_id", latest.ID))
			return serviceerr.New(opPublish, "draft_query_failed", err)
		}

		published, err := repository.ListDayContents(ctx, latest.ID, ContentStatusPublished)
		if err != nil {
			s.logError(opPublish, "published_query_failed", err, zap.String("version_id", latest.ID))
			return serviceerr.New(opPublish, "published_query_failed", err)
		}
		pendingDrafts, err := repository.ListDayContents(ctx, latest.ID, ContentStatusDraft)
		if err != nil {
			s.logError(opPublish, "draft_list_failed", err, zap.String("version_id", latest.ID))
			return serviceerr.New(opPublish, "draft_list_failed", err)
		}

		firstPublish := exhibition.Status == StatusDraft
		if firstPublish {
			exhibition.Status = StatusActive
			exhibition.Visibility = VisibilityPublic
			exhibition.UpdatedAt = s.clock().UTC()
			if err := tx.Model(&Exhibition{}).Where("id = ?", exhibition.ID).Updates(map[string]any{
				"status":     exhibition.Status,
				"visibility": exhibition.Visibility,
				"updated_at": exhibition.UpdatedAt,
			}).Error; err != nil {
				s.logError(opPublish, "exhibition_update_failed", err, zap.String("exhibition_id", exhibition.ID))
				return serviceerr.New(opPublish, "exhibition_update_failed", err)
			}
		}

		version, err := s.snapshotVersion(ctx, tx, opPublish, exhibition, latest.Sequence+1)
		if err != nil {
			return err
		}

		for _, content := range published {
			if content.DayIndex == request.DayIndex {
				continue
			}
			if _, err := s.copyContent(ctx, tx, opPublish, content, version.ID, content.DayIndex, ContentStatusPublished, content.HTML); err != nil {
				return err
			}
		}
		for _, content := range pendingDrafts {
			if content.DayIndex == request.DayIndex {
				continue
			}
			if _, err := s.copyContent(ctx, tx, opPublish, content, version.ID, content.DayIndex, ContentStatusDraft, content.HTML); err != nil {
				return err
			}
		}

		day, err := s.copyContent(ctx, tx, opPublish, draft, version.ID, request.DayIndex, ContentStatusPublished, s.sanitizer.Sanitize(draft.HTML))
		if err != nil {
			return err
		}

		result = PublishResult{Version: version, Day: day, FirstPublish: firstPublish}
		return nil
	})
	if err != nil {
		return PublishResult{}, err
	}

	event := events.VersionPublished{
		ExhibitionID: result.Version.ExhibitionID,
		VersionID:    result.Version.ID,
		Sequence:     result.Version.Sequence,
		DayIndex:     result.Day.DayIndex,
		PublishedAt:  result.Version.CreatedAt,
	}
	if err := s.publisher.PublishVersionPublished(ctx, event); err != nil {
		s.logger.Warn("version published event not delivered",
			zap.String("operation", opPublish),
			zap.String("exhibition_id", event.ExhibitionID),
			zap.String("version_id", event.VersionID),
			zap.Error(err))
	}
	return result, nil
}
