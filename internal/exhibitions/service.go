package exhibitions

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/events"
	"github.com/MarcoPoloResearchLab/unfold/internal/ids"
	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew        = "exhibitions.service.new"
	opCreateExhibition  = "exhibitions.create"
	opUpdateExhibition  = "exhibitions.update"
	opArchiveExhibition = "exhibitions.archive"
	opSaveDraft         = "exhibitions.save_draft"
	opAddAsset          = "exhibitions.add_asset"
	opListDayContents   = "exhibitions.list_day_contents"
	opPublish           = "exhibitions.publish"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingCuratorID  = errors.New("curator identifier is required")
	errNoFields          = errors.New("no fields provided")
	errMissingAssetURL   = errors.New("asset url is required")
	errInvalidJSON       = errors.New("payload is not valid JSON")
)

// ServiceConfig describes the dependencies of the curator-facing exhibition Service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Sanitizer  Sanitizer
	Publisher  events.Publisher
	Logger     *zap.Logger
}

// Service implements curator editing and the versioned publication of day content.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	sanitizer  Sanitizer
	publisher  events.Publisher
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
// A nil Sanitizer defaults to the HTML allow-list and a nil Publisher drops events.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	sanitizer := cfg.Sanitizer
	if sanitizer == nil {
		sanitizer = NewHTMLSanitizer()
	}
	var publisher events.Publisher = events.NewNopPublisher()
	if cfg.Publisher != nil {
		publisher = cfg.Publisher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		sanitizer:  sanitizer,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

// CreateExhibitionRequest carries the fields of a new exhibition. Visibility defaults to DRAFT.
type CreateExhibitionRequest struct {
	CuratorID           string
	Type                string
	TotalDays           int
	Visibility          string
	MonetizationEnabled bool
}

// CreateExhibition stores a new DRAFT exhibition owned by the curator.
func (s *Service) CreateExhibition(ctx context.Context, request CreateExhibitionRequest) (Exhibition, error) {
	curatorID := strings.TrimSpace(request.CuratorID)
	if curatorID == "" {
		return Exhibition{}, serviceerr.Validation(opCreateExhibition, "missing_curator_id", errMissingCuratorID)
	}
	exhibitionType, err := ParseType(request.Type)
	if err != nil {
		return Exhibition{}, serviceerr.Validation(opCreateExhibition, "invalid_type", err)
	}
	visibility := VisibilityDraft
	if request.Visibility != "" {
		visibility, err = ParseVisibility(request.Visibility)
		if err != nil {
			return Exhibition{}, serviceerr.Validation(opCreateExhibition, "invalid_visibility", err)
		}
	}
	if err := validateConfig(exhibitionType, request.TotalDays, request.MonetizationEnabled); err != nil {
		return Exhibition{}, serviceerr.Validation(opCreateExhibition, "invalid_config", err)
	}

	exhibitionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateExhibition, "id_generation_failed", err)
		return Exhibition{}, serviceerr.New(opCreateExhibition, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	exhibition := Exhibition{
		ID:                  exhibitionID,
		CuratorID:           curatorID,
		Type:                exhibitionType,
		TotalDays:           request.TotalDays,
		Visibility:          visibility,
		Status:              StatusDraft,
		MonetizationEnabled: request.MonetizationEnabled,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.db.WithContext(ctx).Create(&exhibition).Error; err != nil {
		s.logError(opCreateExhibition, "insert_failed", err, zap.String("curator_id", curatorID))
		return Exhibition{}, serviceerr.New(opCreateExhibition, "insert_failed", err)
	}
	return exhibition, nil
}

// UpdateExhibitionRequest carries a partial exhibition update; nil fields are left unchanged.
type UpdateExhibitionRequest struct {
	CuratorID           string
	ExhibitionID        string
	Type                *string
	TotalDays           *int
	Visibility          *string
	MonetizationEnabled *bool
}

// UpdateExhibition applies a partial update, validating the resulting configuration as a whole.
func (s *Service) UpdateExhibition(ctx context.Context, request UpdateExhibitionRequest) (Exhibition, error) {
	if request.Type == nil && request.TotalDays == nil && request.Visibility == nil && request.MonetizationEnabled == nil {
		return Exhibition{}, serviceerr.Validation(opUpdateExhibition, "no_fields", errNoFields)
	}

	var updated Exhibition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exhibition, err := s.ownedExhibition(ctx, NewRepository(tx), opUpdateExhibition, request.CuratorID, request.ExhibitionID)
		if err != nil {
			return err
		}
		if request.Type != nil {
			exhibition.Type, err = ParseType(*request.Type)
			if err != nil {
				return serviceerr.Validation(opUpdateExhibition, "invalid_type", err)
			}
		}
		if request.Visibility != nil {
			exhibition.Visibility, err = ParseVisibility(*request.Visibility)
			if err != nil {
				return serviceerr.Validation(opUpdateExhibition, "invalid_visibility", err)
			}
		}
		if request.TotalDays != nil {
			exhibition.TotalDays = *request.TotalDays
		}
		if request.MonetizationEnabled != nil {
			exhibition.MonetizationEnabled = *request.MonetizationEnabled
		}
		if err := validateConfig(exhibition.Type, exhibition.TotalDays, exhibition.MonetizationEnabled); err != nil {
			return serviceerr.Validation(opUpdateExhibition, "invalid_config", err)
		}

		exhibition.UpdatedAt = s.clock().UTC()
		if err := tx.Model(&Exhibition{}).Where("id = ?", exhibition.ID).Updates(map[string]any{
			"type":                 exhibition.Type,
			"total_days":           exhibition.TotalDays,
			"visibility":           exhibition.Visibility,
			"monetization_enabled": exhibition.MonetizationEnabled,
			"updated_at":           exhibition.UpdatedAt,
		}).Error; err != nil {
			s.logError(opUpdateExhibition, "update_failed", err, zap.String("exhibition_id", exhibition.ID))
			return serviceerr.New(opUpdateExhibition, "update_failed", err)
		}
		updated = exhibition
		return nil
	})
	if err != nil {
		return Exhibition{}, err
	}
	return updated, nil
}

// ArchiveExhibition moves the exhibition to ARCHIVED and hides it.
func (s *Service) ArchiveExhibition(ctx context.Context, curatorID, exhibitionID string) (Exhibition, error) {
	exhibition, err := s.ownedExhibition(ctx, NewRepository(s.db), opArchiveExhibition, curatorID, exhibitionID)
	if err != nil {
		return Exhibition{}, err
	}
	exhibition.Status = StatusArchived
	exhibition.Visibility = VisibilityDraft
	exhibition.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Model(&Exhibition{}).Where("id = ?", exhibition.ID).Updates(map[string]any{
		"status":     exhibition.Status,
		"visibility": exhibition.Visibility,
		"updated_at": exhibition.UpdatedAt,
	}).Error; err != nil {
		s.logError(opArchiveExhibition, "update_failed", err, zap.String("exhibition_id", exhibition.ID))
		return Exhibition{}, serviceerr.New(opArchiveExhibition, "update_failed", err)
	}
	return exhibition, nil
}

// SaveDraftRequest carries a draft edit for one day; nil fields are left unchanged.
type SaveDraftRequest struct {
	CuratorID    string
	ExhibitionID string
	DayIndex     int
	HTML         *string
	CSS          *string
	AssetRefs    json.RawMessage
}

// SaveDraft upserts the DRAFT row of a day on the exhibition's latest version.
// The markup is sanitized before it is stored.
func (s *Service) SaveDraft(ctx context.Context, request SaveDraftRequest) (DayContent, error) {
	if request.HTML == nil && request.CSS == nil && request.AssetRefs == nil {
		return DayContent{}, serviceerr.Validation(opSaveDraft, "no_fields", errNoFields)
	}
	if request.AssetRefs != nil && !json.Valid(request.AssetRefs) {
		return DayContent{}, serviceerr.Validation(opSaveDraft, "invalid_asset_refs", errInvalidJSON)
	}

	var saved DayContent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		draft, err := s.editableDraft(ctx, tx, opSaveDraft, request.CuratorID, request.ExhibitionID, request.DayIndex)
		if err != nil {
			return err
		}
		if request.HTML != nil {
			draft.HTML = s.sanitizer.Sanitize(*request.HTML)
		}
		if request.CSS != nil {
			draft.CSS = *request.CSS
		}
		if request.AssetRefs != nil {
			draft.AssetRefs = cloneJSON(datatypes.JSON(request.AssetRefs))
		}
		draft.UpdatedAt = s.clock().UTC()
		if err := tx.Model(&DayContent{}).Where("id = ?", draft.ID).Updates(map[string]any{
			"html":       draft.HTML,
			"css":        draft.CSS,
			"asset_refs": draft.AssetRefs,
			"updated_at": draft.UpdatedAt,
		}).Error; err != nil {
			s.logError(opSaveDraft, "update_failed", err, zap.String("day_content_id", draft.ID))
			return serviceerr.New(opSaveDraft, "update_failed", err)
		}
		saved = draft
		return nil
	})
	if err != nil {
		return DayContent{}, err
	}
	return saved, nil
}

// AddAssetRequest attaches media to the DRAFT row of a day.
type AddAssetRequest struct {
	CuratorID     string
	ExhibitionID  string
	DayIndex      int
	AssetURL      string
	ThumbnailURL  *string
	UsageMetadata json.RawMessage
}

// AddAsset records asset metadata on the day's DRAFT row, creating the draft when needed.
func (s *Service) AddAsset(ctx context.Context, request AddAssetRequest) (DayAsset, error) {
	assetURL := strings.TrimSpace(request.AssetURL)
	if assetURL == "" {
		return DayAsset{}, serviceerr.Validation(opAddAsset, "missing_asset_url", errMissingAssetURL)
	}
	if request.UsageMetadata != nil && !json.Valid(request.UsageMetadata) {
		return DayAsset{}, serviceerr.Validation(opAddAsset, "invalid_usage_metadata", errInvalidJSON)
	}

	var created DayAsset
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		draft, err := s.editableDraft(ctx, tx, opAddAsset, request.CuratorID, request.ExhibitionID, request.DayIndex)
		if err != nil {
			return err
		}
		assetID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opAddAsset, "id_generation_failed", err)
			return serviceerr.New(opAddAsset, "id_generation_failed", err)
		}
		created = DayAsset{
			ID:            assetID,
			DayContentID:  draft.ID,
			AssetURL:      assetURL,
			ThumbnailURL:  request.ThumbnailURL,
			UsageMetadata: cloneJSON(datatypes.JSON(request.UsageMetadata)),
			CreatedAt:     s.clock().UTC(),
		}
		if err := tx.Create(&created).Error; err != nil {
			s.logError(opAddAsset, "insert_failed", err, zap.String("day_content_id", draft.ID))
			return serviceerr.New(opAddAsset, "insert_failed", err)
		}
		return nil
	})
	if err != nil {
		return DayAsset{}, err
	}
	return created, nil
}

// ListVersionDayContents returns every day content row of one of the curator's versions.
func (s *Service) ListVersionDayContents(ctx context.Context, curatorID, exhibitionID, versionID string) ([]DayContent, error) {
	repository := NewRepository(s.db)
	exhibition, err := s.ownedExhibition(ctx, repository, opListDayContents, curatorID, exhibitionID)
	if err != nil {
		return nil, err
	}
	version, err := repository.FindVersion(ctx, versionID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && version.ExhibitionID != exhibition.ID) {
		return nil, serviceerr.NotFound(opListDayContents, "version_missing", err)
	}
	if err != nil {
		s.logError(opListDayContents, "version_query_failed", err, zap.String("version_id", versionID))
		return nil, serviceerr.New(opListDayContents, "version_query_failed", err)
	}
	contents, err := repository.ListVersionContents(ctx, version.ID)
	if err != nil {
		s.logError(opListDayContents, "content_query_failed", err, zap.String("version_id", versionID))
		return nil, serviceerr.New(opListDayContents, "content_query_failed", err)
	}
	return contents, nil
}

// ownedExhibition loads a live exhibition and hides it from curators who do not own it.
func (s *Service) ownedExhibition(ctx context.Context, repository *Repository, operation, curatorID, exhibitionID string) (Exhibition, error) {
	exhibition, err := repository.FindExhibition(ctx, exhibitionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Exhibition{}, serviceerr.NotFound(operation, "exhibition_missing", err)
	}
	if err != nil {
		s.logError(operation, "exhibition_query_failed", err, zap.String("exhibition_id", exhibitionID))
		return Exhibition{}, serviceerr.New(operation, "exhibition_query_failed", err)
	}
	if curatorID == "" || exhibition.CuratorID != curatorID {
		return Exhibition{}, serviceerr.NotFound(operation, "exhibition_missing", nil)
	}
	return exhibition, nil
}

// editableDraft returns the DRAFT row for a day on the latest version, creating the version and the row as needed.
// A new draft starts from the day's PUBLISHED content on the same version, assets included.
func (s *Service) editableDraft(ctx context.Context, tx *gorm.DB, operation, curatorID, exhibitionID string, dayIndex int) (DayContent, error) {
	repository := NewRepository(tx)
	exhibition, err := s.ownedExhibition(ctx, repository, operation, curatorID, exhibitionID)
	if err != nil {
		return DayContent{}, err
	}
	if err := ValidateDayIndex(dayIndex, exhibition.TotalDays); err != nil {
		return DayContent{}, serviceerr.Validation(operation, "invalid_day_index", err)
	}

	version, err := repository.LatestVersion(ctx, exhibition.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		version, err = s.snapshotVersion(ctx, tx, operation, exhibition, 1)
	} else if err != nil {
		s.logError(operation, "version_query_failed", err, zap.String("exhibition_id", exhibition.ID))
		return DayContent{}, serviceerr.New(operation, "version_query_failed", err)
	}
	if err != nil {
		return DayContent{}, err
	}

	draft, err := repository.FindDayContent(ctx, version.ID, dayIndex, ContentStatusDraft)
	if err == nil {
		return draft, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(operation, "draft_query_failed", err, zap.String("version_id", version.ID))
		return DayContent{}, serviceerr.New(operation, "draft_query_failed", err)
	}

	seed := DayContent{}
	published, err := repository.FindDayContent(ctx, version.ID, dayIndex, ContentStatusPublished)
	if err == nil {
		seed = published
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(operation, "published_query_failed", err, zap.String("version_id", version.ID))
		return DayContent{}, serviceerr.New(operation, "published_query_failed", err)
	}
	return s.copyContent(ctx, tx, operation, seed, version.ID, dayIndex, ContentStatusDraft, seed.HTML)
}

// snapshotVersion appends a version capturing the exhibition's current configuration.
func (s *Service) snapshotVersion(ctx context.Context, tx *gorm.DB, operation string, exhibition Exhibition, sequence int64) (Version, error) {
	versionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return Version{}, serviceerr.New(operation, "id_generation_failed", err)
	}
	version := Version{
		ID:           versionID,
		ExhibitionID: exhibition.ID,
		Sequence:     sequence,
		Type:         exhibition.Type,
		TotalDays:    exhibition.TotalDays,
		Visibility:   exhibition.Visibility,
		Status:       exhibition.Status,
		CreatedAt:    s.clock().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&version).Error; err != nil {
		s.logError(operation, "version_insert_failed", err,
			zap.String("exhibition_id", exhibition.ID),
			zap.Int64("sequence", sequence))
		return Version{}, serviceerr.New(operation, "version_insert_failed", err)
	}
	return version, nil
}

// copyContent creates a content row under versionID from source, duplicating its assets by value.
func (s *Service) copyContent(ctx context.Context, tx *gorm.DB, operation string, source DayContent, versionID string, dayIndex int, status ContentStatus, html string) (DayContent, error) {
	contentID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return DayContent{}, serviceerr.New(operation, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	content := DayContent{
		ID:        contentID,
		VersionID: versionID,
		DayIndex:  dayIndex,
		Status:    status,
		HTML:      html,
		CSS:       source.CSS,
		AssetRefs: cloneJSON(source.AssetRefs),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(&content).Error; err != nil {
		s.logError(operation, "content_insert_failed", err,
			zap.String("version_id", versionID),
			zap.Int("day_index", dayIndex),
			zap.String("status", string(status)))
		return DayContent{}, serviceerr.New(operation, "content_insert_failed", err)
	}

	content.Assets = make([]DayAsset, 0, len(source.Assets))
	for _, asset := range source.Assets {
		assetID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(operation, "id_generation_failed", err)
			return DayContent{}, serviceerr.New(operation, "id_generation_failed", err)
		}
		duplicate := DayAsset{
			ID:            assetID,
			DayContentID:  content.ID,
			AssetURL:      asset.AssetURL,
			ThumbnailURL:  cloneString(asset.ThumbnailURL),
			UsageMetadata: cloneJSON(asset.UsageMetadata),
			CreatedAt:     asset.CreatedAt,
		}
		if err := tx.WithContext(ctx).Create(&duplicate).Error; err != nil {
			s.logError(operation, "asset_insert_failed", err, zap.String("day_content_id", content.ID))
			return DayContent{}, serviceerr.New(operation, "asset_insert_failed", err)
		}
		content.Assets = append(content.Assets, duplicate)
	}
	return content, nil
}

func cloneJSON(value datatypes.JSON) datatypes.JSON {
	if value == nil {
		return nil
	}
	return append(datatypes.JSON(nil), value...)
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("exhibition service error", attrs...)
}
