package exhibitions

import (
	"context"

	"gorm.io/gorm"
)

const (
	queryExhibitionID      = "exhibition_id = ?"
	queryVersionDayStatus  = "version_id = ? AND day_index = ? AND status = ?"
	queryVersionStatus     = "version_id = ? AND status = ?"
	orderSequenceDesc      = "sequence DESC"
	orderDayIndexAsc       = "day_index ASC"
	orderCreatedAtDesc     = "created_at DESC"
	associationAssets      = "Assets"
	orderAssetCreatedAtAsc = "created_at ASC, id ASC"
)

// ReadOption adjusts a repository read.
type ReadOption func(*readOptions)

type readOptions struct {
	includeDeleted bool
}

// IncludeDeleted lets a read return soft-deleted exhibitions.
func IncludeDeleted() ReadOption {
	return func(options *readOptions) {
		options.includeDeleted = true
	}
}

// Repository reads exhibition rows. It never returns soft-deleted exhibitions unless IncludeDeleted is passed.
// Lookups of absent rows return gorm.ErrRecordNotFound.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to a database handle or an open transaction.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository reading through the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func liveExhibitions(db *gorm.DB) *gorm.DB {
	return db.Where("exhibitions.deleted_at IS NULL")
}

func (r *Repository) exhibitions(ctx context.Context, opts []ReadOption) *gorm.DB {
	options := readOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	query := r.db.WithContext(ctx).Model(&Exhibition{})
	if !options.includeDeleted {
		query = query.Scopes(liveExhibitions)
	}
	return query
}

// FindExhibition returns the exhibition with the given id.
func (r *Repository) FindExhibition(ctx context.Context, exhibitionID string, opts ...ReadOption) (Exhibition, error) {
	var exhibition Exhibition
	err := r.exhibitions(ctx, opts).Where("exhibitions.id = ?", exhibitionID).Take(&exhibition).Error
	return exhibition, err
}

// ListGallery returns the publicly listed, monetized broadcast exhibitions, newest first.
func (r *Repository) ListGallery(ctx context.Context) ([]Exhibition, error) {
	var listed []Exhibition
	err := r.exhibitions(ctx, nil).
		Scopes(galleryListed).
		Order(orderCreatedAtDesc).
		Find(&listed).Error
	return listed, err
}

// FindGalleryExhibition returns a gallery-listed exhibition by id.
func (r *Repository) FindGalleryExhibition(ctx context.Context, exhibitionID string) (Exhibition, error) {
	var exhibition Exhibition
	err := r.exhibitions(ctx, nil).
		Scopes(galleryListed).
		Where("exhibitions.id = ?", exhibitionID).
		Take(&exhibition).Error
	return exhibition, err
}

func galleryListed(db *gorm.DB) *gorm.DB {
	return db.Where(
		"exhibitions.type = ? AND exhibitions.visibility = ? AND exhibitions.status = ? AND exhibitions.monetization_enabled = ? AND exhibitions.governance_masked_at IS NULL",
		TypeOneToMany, VisibilityPublic, StatusActive, true,
	)
}

// LatestVersion returns the most recently published version of an exhibition.
func (r *Repository) LatestVersion(ctx context.Context, exhibitionID string) (Version, error) {
	var version Version
	err := r.db.WithContext(ctx).
		Where(queryExhibitionID, exhibitionID).
		Order(orderSequenceDesc).
		Take(&version).Error
	return version, err
}

// LatestEligibleVersion returns the newest version a viewer may pin to. For a public exhibition only versions
// snapshotted while public qualify, so content published during a draft phase is never shown.
func (r *Repository) LatestEligibleVersion(ctx context.Context, exhibition Exhibition) (Version, error) {
	query := r.db.WithContext(ctx).Where(queryExhibitionID, exhibition.ID)
	if exhibition.Visibility == VisibilityPublic {
		query = query.Where("visibility = ?", VisibilityPublic)
	}
	var version Version
	err := query.Order(orderSequenceDesc).Take(&version).Error
	return version, err
}

// FindVersion returns a version by id.
func (r *Repository) FindVersion(ctx context.Context, versionID string) (Version, error) {
	var version Version
	err := r.db.WithContext(ctx).Where("id = ?", versionID).Take(&version).Error
	return version, err
}

// FindDayContent returns the content row for (version, day, status) with its assets.
func (r *Repository) FindDayContent(ctx context.Context, versionID string, dayIndex int, status ContentStatus) (DayContent, error) {
	var content DayContent
	err := r.db.WithContext(ctx).
		Preload(associationAssets, orderAssets).
		Where(queryVersionDayStatus, versionID, dayIndex, status).
		Take(&content).Error
	return content, err
}

// ListDayContents returns every content row of a version with the given status, ordered by day.
func (r *Repository) ListDayContents(ctx context.Context, versionID string, status ContentStatus) ([]DayContent, error) {
	var contents []DayContent
	err := r.db.WithContext(ctx).
		Preload(associationAssets, orderAssets).
		Where(queryVersionStatus, versionID, status).
		Order(orderDayIndexAsc).
		Find(&contents).Error
	return contents, err
}

// ListVersionContents returns every content row of a version, drafts and published, ordered by day then status.
func (r *Repository) ListVersionContents(ctx context.Context, versionID string) ([]DayContent, error) {
	var contents []DayContent
	err := r.db.WithContext(ctx).
		Preload(associationAssets, orderAssets).
		Where("version_id = ?", versionID).
		Order("day_index ASC, status ASC").
		Find(&contents).Error
	return contents, err
}

// FindLegacyExhibit returns pre-versioning content for (exhibition, day).
func (r *Repository) FindLegacyExhibit(ctx context.Context, exhibitionID string, dayIndex int) (LegacyExhibit, error) {
	var exhibit LegacyExhibit
	err := r.db.WithContext(ctx).
		Where("exhibition_id = ? AND day_index = ?", exhibitionID, dayIndex).
		Take(&exhibit).Error
	return exhibit, err
}

func orderAssets(db *gorm.DB) *gorm.DB {
	return db.Order(orderAssetCreatedAtAsc)
}
