package access

import "time"

// Reason explains an access decision.
type Reason string

const (
	ReasonAllowed          Reason = "ALLOWED"
	ReasonMasked           Reason = "MASKED"
	ReasonGovernanceLocked Reason = "GOVERNANCE_LOCKED"
	ReasonGrantRequired    Reason = "GRANT_REQUIRED"
)

// Decision is the outcome of an access check. Denials are values, not errors.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision {
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// AccessGrant entitles a viewer to an exhibition, either directly or through one of its versions.
// A grant is valid while RevokedAt is unset and ExpiresAt is unset or in the future.
type AccessGrant struct {
	ID           string     `gorm:"column:id;primaryKey;size:190;not null"`
	ViewerID     string     `gorm:"column:viewer_id;size:190;not null;index:idx_access_grants_viewer"`
	ExhibitionID *string    `gorm:"column:exhibition_id;size:190;index"`
	VersionID    *string    `gorm:"column:version_id;size:190;index"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	RevokedAt    *time.Time `gorm:"column:revoked_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AccessGrant) TableName() string {
	return "access_grants"
}

// ValidAt reports whether the grant entitles its viewer at the given instant.
func (g AccessGrant) ValidAt(instant time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(instant)
}
