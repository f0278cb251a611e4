package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	"gorm.io/gorm"
)

// DefaultSessionTTL is the lifetime of a newly issued viewer session.
const DefaultSessionTTL = 30 * 24 * time.Hour

const (
	opIssueSession = "identity.issue_session"
	opClaim        = "identity.claim"

	sessionTokenBytes = 32
)

var (
	errMissingIDProvider = errors.New("id provider is required")
	errEmptyNickname     = errors.New("nickname is required")
)

// IssuedSession pairs a stored session with the raw bearer token, which is returned exactly once.
type IssuedSession struct {
	Token   string
	Session SessionBinding
}

// IssueSession stores a new session, optionally tied to a viewer profile and the tag it was started from.
func (r *Resolver) IssueSession(ctx context.Context, viewerID, nfcTagID string) (IssuedSession, error) {
	return r.issueSession(ctx, r.db, viewerID, nfcTagID)
}

// ClaimResult is a new viewer profile with its first session.
type ClaimResult struct {
	Profile      ViewerProfile
	ExhibitionID string
	Issued       IssuedSession
}

// Claim creates a viewer profile from a tag scan and signs it in with a fresh session.
func (r *Resolver) Claim(ctx context.Context, publicTagID, nickname string) (ClaimResult, error) {
	trimmedNickname := strings.TrimSpace(nickname)
	if trimmedNickname == "" {
		return ClaimResult{}, serviceerr.Validation(opClaim, "empty_nickname", errEmptyNickname)
	}
	binding, err := r.ResolveTag(ctx, publicTagID)
	if err != nil {
		return ClaimResult{}, err
	}
	if r.idProvider == nil {
		return ClaimResult{}, serviceerr.New(opClaim, "missing_id_provider", errMissingIDProvider)
	}

	var result ClaimResult
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profileID, err := r.idProvider.NewID()
		if err != nil {
			r.logError(opClaim, "id_generation_failed", err)
			return serviceerr.New(opClaim, "id_generation_failed", err)
		}
		profile := ViewerProfile{ID: profileID, Nickname: trimmedNickname, CreatedAt: r.clock().UTC()}
		if err := tx.Create(&profile).Error; err != nil {
			r.logError(opClaim, "profile_insert_failed", err)
			return serviceerr.New(opClaim, "profile_insert_failed", err)
		}
		issued, err := r.issueSession(ctx, tx, profile.ID, binding.TagID)
		if err != nil {
			return err
		}
		result = ClaimResult{Profile: profile, ExhibitionID: binding.ExhibitionID, Issued: issued}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return result, nil
}

func (r *Resolver) issueSession(ctx context.Context, db *gorm.DB, viewerID, nfcTagID string) (IssuedSession, error) {
	if r.idProvider == nil {
		return IssuedSession{}, serviceerr.New(opIssueSession, "missing_id_provider", errMissingIDProvider)
	}
	rawToken, err := newSessionToken()
	if err != nil {
		r.logError(opIssueSession, "token_generation_failed", err)
		return IssuedSession{}, serviceerr.New(opIssueSession, "token_generation_failed", err)
	}
	sessionID, err := r.idProvider.NewID()
	if err != nil {
		r.logError(opIssueSession, "id_generation_failed", err)
		return IssuedSession{}, serviceerr.New(opIssueSession, "id_generation_failed", err)
	}

	now := r.clock().UTC()
	session := ViewerSession{
		ID:        sessionID,
		TokenHash: HashToken(rawToken),
		ViewerID:  optionalString(viewerID),
		NfcTagID:  optionalString(nfcTagID),
		ExpiresAt: now.Add(r.sessionTTL),
		CreatedAt: now,
	}
	if err := db.WithContext(ctx).Create(&session).Error; err != nil {
		r.logError(opIssueSession, "insert_failed", err)
		return IssuedSession{}, serviceerr.New(opIssueSession, "insert_failed", err)
	}
	return IssuedSession{
		Token: rawToken,
		Session: SessionBinding{
			SessionID: session.ID,
			ViewerID:  viewerID,
			NfcTagID:  nfcTagID,
			ExpiresAt: session.ExpiresAt,
		},
	}, nil
}

func newSessionToken() (string, error) {
	buffer := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
