package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// NfcScopePolicy restricts where sessions originating from a curator's tags may go.
type NfcScopePolicy string

const (
	// NfcScopeExhibitionOnly keeps tag sessions inside the tag curator's own exhibitions and out of the gallery.
	NfcScopeExhibitionOnly NfcScopePolicy = "EXHIBITION_ONLY"
	// NfcScopeExhibitionAndGallery lets tag sessions browse the gallery and other curators' exhibitions.
	NfcScopeExhibitionAndGallery NfcScopePolicy = "EXHIBITION_AND_GALLERY"
)

// TagStatus reports whether a tag may be used as an entry point.
type TagStatus string

const (
	TagStatusActive   TagStatus = "ACTIVE"
	TagStatusInactive TagStatus = "INACTIVE"
)

// CuratorPolicy stores the governance policy of a curator.
type CuratorPolicy struct {
	CuratorID      string         `gorm:"column:curator_id;primaryKey;size:190;not null"`
	NfcScopePolicy NfcScopePolicy `gorm:"column:nfc_scope_policy;size:32;not null;default:EXHIBITION_AND_GALLERY"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (CuratorPolicy) TableName() string {
	return "curator_policies"
}

// NfcTag is a physical tag bound to at most one exhibition.
type NfcTag struct {
	ID                string    `gorm:"column:id;primaryKey;size:190;not null"`
	PublicTagID       string    `gorm:"column:public_tag_id;size:190;not null;uniqueIndex"`
	CuratorID         string    `gorm:"column:curator_id;size:190;not null;index"`
	BoundExhibitionID *string   `gorm:"column:bound_exhibition_id;size:190;index"`
	Status            TagStatus `gorm:"column:status;size:16;not null;default:ACTIVE"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (NfcTag) TableName() string {
	return "nfc_tags"
}

// ViewerProfile is a claimed viewer identity.
type ViewerProfile struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Nickname  string    `gorm:"column:nickname;size:190;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ViewerProfile) TableName() string {
	return "viewer_profiles"
}

// ViewerSession is an anonymous or claimed viewer session identified by the hash of its bearer token.
type ViewerSession struct {
	ID        string     `gorm:"column:id;primaryKey;size:190;not null"`
	TokenHash string     `gorm:"column:token_hash;size:64;not null;uniqueIndex"`
	ViewerID  *string    `gorm:"column:viewer_id;size:190;index"`
	NfcTagID  *string    `gorm:"column:nfc_tag_id;size:190;index"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ViewerSession) TableName() string {
	return "viewer_sessions"
}

// HashToken returns the hex SHA-256 digest stored for a raw session token.
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(rawToken)))
	return hex.EncodeToString(sum[:])
}

// TagBinding is the resolved view of a scanned tag.
type TagBinding struct {
	TagID        string
	PublicTagID  string
	ExhibitionID string
	CuratorID    string
	Status       TagStatus
}

// SessionBinding is the resolved view of a presented session token.
type SessionBinding struct {
	SessionID string
	ViewerID  string
	NfcTagID  string
	ExpiresAt time.Time
}

// SessionScope describes the governance scope inherited from the tag a session originated from.
// CuratorID is empty when the session is not bound to a tag.
type SessionScope struct {
	CuratorID string
	Policy    NfcScopePolicy
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&CuratorPolicy{}, &NfcTag{}, &ViewerProfile{}, &ViewerSession{}}
}
