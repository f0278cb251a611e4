package access

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/ids"
	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opGrantStoreNew = "access.grant_store.new"
	opIssueGrant    = "access.issue_grant"
	opRevokeGrant   = "access.revoke_grant"
	opCheckGrant    = "access.check_grant"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingViewerID   = errors.New("viewer identifier is required")
	errMissingScope      = errors.New("exhibition or version identifier is required")
)

// GrantStoreConfig describes the dependencies of the GrantStore.
type GrantStoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// GrantStore owns entitlement records.
type GrantStore struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	logger     *zap.Logger
}

// NewGrantStore validates the configuration and returns a GrantStore.
func NewGrantStore(cfg GrantStoreConfig) (*GrantStore, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opGrantStoreNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opGrantStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrantStore{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// IssueGrantRequest scopes a new grant. At least one of ExhibitionID and VersionID is set.
type IssueGrantRequest struct {
	ViewerID     string
	ExhibitionID string
	VersionID    string
	ExpiresAt    *time.Time
}

// IssueGrant stores a new grant.
func (s *GrantStore) IssueGrant(ctx context.Context, request IssueGrantRequest) (AccessGrant, error) {
	viewerID := strings.TrimSpace(request.ViewerID)
	if viewerID == "" {
		return AccessGrant{}, serviceerr.Validation(opIssueGrant, "missing_viewer_id", errMissingViewerID)
	}
	exhibitionID := optionalID(request.ExhibitionID)
	versionID := optionalID(request.VersionID)
	if exhibitionID == nil && versionID == nil {
		return AccessGrant{}, serviceerr.Validation(opIssueGrant, "missing_scope", errMissingScope)
	}

	grantID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opIssueGrant, "id_generation_failed", err)
		return AccessGrant{}, serviceerr.New(opIssueGrant, "id_generation_failed", err)
	}
	grant := AccessGrant{
		ID:           grantID,
		ViewerID:     viewerID,
		ExhibitionID: exhibitionID,
		VersionID:    versionID,
		CreatedAt:    s.clock().UTC(),
	}
	if request.ExpiresAt != nil {
		expiresAt := request.ExpiresAt.UTC()
		grant.ExpiresAt = &expiresAt
	}
	if err := s.db.WithContext(ctx).Create(&grant).Error; err != nil {
		s.logError(opIssueGrant, "insert_failed", err, zap.String("viewer_id", viewerID))
		return AccessGrant{}, serviceerr.New(opIssueGrant, "insert_failed", err)
	}
	return grant, nil
}

// RevokeGrant marks the grant revoked. Revoking an already revoked grant keeps the first revocation time.
func (s *GrantStore) RevokeGrant(ctx context.Context, grantID string) (AccessGrant, error) {
	var grant AccessGrant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", grantID).Take(&grant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return serviceerr.NotFound(opRevokeGrant, "grant_missing", err)
		}
		if err != nil {
			s.logError(opRevokeGrant, "query_failed", err, zap.String("grant_id", grantID))
			return serviceerr.New(opRevokeGrant, "query_failed", err)
		}
		if grant.RevokedAt != nil {
			return nil
		}
		revokedAt := s.clock().UTC()
		if err := tx.Model(&AccessGrant{}).
			Where("id = ? AND revoked_at IS NULL", grantID).
			Update("revoked_at", revokedAt).Error; err != nil {
			s.logError(opRevokeGrant, "update_failed", err, zap.String("grant_id", grantID))
			return serviceerr.New(opRevokeGrant, "update_failed", err)
		}
		grant.RevokedAt = &revokedAt
		return nil
	})
	if err != nil {
		return AccessGrant{}, err
	}
	return grant, nil
}

// HasValidGrantForExhibition reports whether the viewer holds a valid grant scoped to the exhibition
// or to any of its versions.
func (s *GrantStore) HasValidGrantForExhibition(ctx context.Context, viewerID, exhibitionID string) (bool, error) {
	if viewerID == "" || exhibitionID == "" {
		return false, nil
	}
	versionsOfExhibition := s.db.Table("exhibition_versions").Select("id").Where("exhibition_id = ?", exhibitionID)

	var candidates []AccessGrant
	err := s.db.WithContext(ctx).
		Where("viewer_id = ?", viewerID).
		Where("revoked_at IS NULL").
		Where(s.db.Where("exhibition_id = ?", exhibitionID).Or("version_id IN (?)", versionsOfExhibition)).
		Order("created_at DESC").
		Find(&candidates).Error
	if err != nil {
		s.logError(opCheckGrant, "query_failed", err,
			zap.String("viewer_id", viewerID),
			zap.String("exhibition_id", exhibitionID))
		return false, serviceerr.New(opCheckGrant, "query_failed", err)
	}
	now := s.clock()
	for _, grant := range candidates {
		if grant.ValidAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func optionalID(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *GrantStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("grant store error", attrs...)
}
