package exhibitions

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ExhibitionType distinguishes single-viewer exhibitions from broadcast ones.
type ExhibitionType string

const (
	TypeOneToOne  ExhibitionType = "ONE_TO_ONE"
	TypeOneToMany ExhibitionType = "ONE_TO_MANY"
)

// Visibility controls whether an exhibition is publicly reachable.
type Visibility string

const (
	VisibilityDraft  Visibility = "DRAFT"
	VisibilityPublic Visibility = "PUBLIC"
)

// Status is the lifecycle state of an exhibition.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// ContentStatus separates curator-editable drafts from immutable published day content.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "DRAFT"
	ContentStatusPublished ContentStatus = "PUBLISHED"
)

// RenderMode identifies how a day is rendered.
type RenderMode string

const (
	RenderModeHTML   RenderMode = "HTML"
	RenderModeBlocks RenderMode = "BLOCKS"
)

var (
	// ErrInvalidDayIndex indicates a day index outside 1..totalDays.
	ErrInvalidDayIndex = errors.New("exhibitions: invalid day index")
	// ErrInvalidTotalDays indicates a non-positive total day count.
	ErrInvalidTotalDays = errors.New("exhibitions: total days must be positive")
	// ErrMonetizationRequiresOneToMany indicates monetization on a ONE_TO_ONE exhibition.
	ErrMonetizationRequiresOneToMany = errors.New("exhibitions: monetization requires ONE_TO_MANY")
	// ErrInvalidType indicates an unknown exhibition type.
	ErrInvalidType = errors.New("exhibitions: invalid exhibition type")
	// ErrInvalidVisibility indicates an unknown visibility value.
	ErrInvalidVisibility = errors.New("exhibitions: invalid visibility")
)

// ParseType validates a raw exhibition type.
func ParseType(raw string) (ExhibitionType, error) {
	switch ExhibitionType(raw) {
	case TypeOneToOne, TypeOneToMany:
		return ExhibitionType(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, raw)
	}
}

// ParseVisibility validates a raw visibility value.
func ParseVisibility(raw string) (Visibility, error) {
	switch Visibility(raw) {
	case VisibilityDraft, VisibilityPublic:
		return Visibility(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, raw)
	}
}

// ValidateDayIndex checks that dayIndex addresses a day of an exhibition with totalDays days.
func ValidateDayIndex(dayIndex, totalDays int) error {
	if dayIndex < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidDayIndex, dayIndex)
	}
	if dayIndex > totalDays {
		return fmt.Errorf("%w: %d exceeds total days %d", ErrInvalidDayIndex, dayIndex, totalDays)
	}
	return nil
}

func validateConfig(exhibitionType ExhibitionType, totalDays int, monetizationEnabled bool) error {
	if totalDays <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTotalDays, totalDays)
	}
	if monetizationEnabled && exhibitionType != TypeOneToMany {
		return ErrMonetizationRequiresOneToMany
	}
	return nil
}

// Exhibition is the curator-owned container of daily content.
// DeletedAt is a plain column: reads go through Repository, which filters it explicitly.
type Exhibition struct {
	ID                  string         `gorm:"column:id;primaryKey;size:190;not null"`
	CuratorID           string         `gorm:"column:curator_id;size:190;not null;index"`
	Type                ExhibitionType `gorm:"column:type;size:16;not null"`
	TotalDays           int            `gorm:"column:total_days;not null"`
	Visibility          Visibility     `gorm:"column:visibility;size:16;not null;default:DRAFT"`
	Status              Status         `gorm:"column:status;size:16;not null;default:DRAFT"`
	MonetizationEnabled bool           `gorm:"column:monetization_enabled;not null;default:false"`
	GovernanceMaskedAt  *time.Time     `gorm:"column:governance_masked_at"`
	DeletedAt           *time.Time     `gorm:"column:deleted_at;index"`
	PurgeAfter          *time.Time     `gorm:"column:purge_after"`
	CreatedAt           time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Exhibition) TableName() string {
	return "exhibitions"
}

// Summary returns the viewer-facing projection of the exhibition config.
func (e Exhibition) Summary() Summary {
	return Summary{ID: e.ID, Type: e.Type, TotalDays: e.TotalDays, Status: e.Status, Visibility: e.Visibility}
}

// Version is an append-only snapshot of an exhibition's config taken at publication.
// Sequence increases by one per publish and is unique per exhibition.
type Version struct {
	ID           string         `gorm:"column:id;primaryKey;size:190;not null"`
	ExhibitionID string         `gorm:"column:exhibition_id;size:190;not null;uniqueIndex:idx_versions_exhibition_sequence,priority:1"`
	Sequence     int64          `gorm:"column:sequence;not null;uniqueIndex:idx_versions_exhibition_sequence,priority:2"`
	Type         ExhibitionType `gorm:"column:type;size:16;not null"`
	TotalDays    int            `gorm:"column:total_days;not null"`
	Visibility   Visibility     `gorm:"column:visibility;size:16;not null"`
	Status       Status         `gorm:"column:status;size:16;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Version) TableName() string {
	return "exhibition_versions"
}

// Summary returns the viewer-facing projection of the pinned version config.
func (v Version) Summary() Summary {
	return Summary{ID: v.ExhibitionID, Type: v.Type, TotalDays: v.TotalDays, Status: v.Status, Visibility: v.Visibility}
}

// DayContent holds the rendering payload of one day under one version.
// At most one DRAFT and one PUBLISHED row exist per (version, day).
type DayContent struct {
	ID        string         `gorm:"column:id;primaryKey;size:190;not null"`
	VersionID string         `gorm:"column:version_id;size:190;not null;uniqueIndex:idx_day_contents_version_day_status,priority:1"`
	DayIndex  int            `gorm:"column:day_index;not null;uniqueIndex:idx_day_contents_version_day_status,priority:2"`
	Status    ContentStatus  `gorm:"column:status;size:16;not null;uniqueIndex:idx_day_contents_version_day_status,priority:3"`
	HTML      string         `gorm:"column:html;type:text;not null;default:''"`
	CSS       string         `gorm:"column:css;type:text;not null;default:''"`
	AssetRefs datatypes.JSON `gorm:"column:asset_refs"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
	Assets    []DayAsset     `gorm:"foreignKey:DayContentID"`
}

// TableName provides the explicit table binding for GORM.
func (DayContent) TableName() string {
	return "exhibition_day_contents"
}

// DayAsset is media attached to exactly one day content row.
type DayAsset struct {
	ID            string         `gorm:"column:id;primaryKey;size:190;not null"`
	DayContentID  string         `gorm:"column:day_content_id;size:190;not null;index"`
	AssetURL      string         `gorm:"column:asset_url;size:2048;not null"`
	ThumbnailURL  *string        `gorm:"column:thumbnail_url;size:2048"`
	UsageMetadata datatypes.JSON `gorm:"column:usage_metadata"`
	CreatedAt     time.Time      `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (DayAsset) TableName() string {
	return "exhibition_day_assets"
}

// LegacyExhibit is single-day content of exhibitions created before versioning existed.
type LegacyExhibit struct {
	ExhibitionID string         `gorm:"column:exhibition_id;primaryKey;size:190;not null"`
	DayIndex     int            `gorm:"column:day_index;primaryKey;not null"`
	Mode         RenderMode     `gorm:"column:mode;size:16;not null"`
	BlocksJSON   datatypes.JSON `gorm:"column:blocks_json"`
	HTML         string         `gorm:"column:html;type:text;not null;default:''"`
	CSS          string         `gorm:"column:css;type:text;not null;default:''"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (LegacyExhibit) TableName() string {
	return "exhibits"
}

// Summary is the exhibition config shown to viewers.
type Summary struct {
	ID         string
	Type       ExhibitionType
	TotalDays  int
	Status     Status
	Visibility Visibility
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&Exhibition{}, &Version{}, &DayContent{}, &DayAsset{}, &LegacyExhibit{}}
}
