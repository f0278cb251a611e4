package identity

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
	opResolveTag       = "identity.resolve_tag"
	opResolveSession   = "identity.resolve_session"
	opGetCuratorPolicy = "identity.get_curator_policy"
	opSessionScope     = "identity.session_scope"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errEmptyIdentifier = errors.New("identifier is empty")
)

// ResolverConfig describes the dependencies of the Resolver.
// IDProvider is only needed to issue sessions; SessionTTL defaults to DefaultSessionTTL.
type ResolverConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	SessionTTL time.Duration
	Logger     *zap.Logger
}

// Resolver maps tags and session tokens to their bound records.
type Resolver struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewResolver validates the configuration and returns a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New("identity.resolver.new", "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Resolver{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		sessionTTL: sessionTTL,
		logger:     logger,
	}, nil
}

// ResolveTag returns the exhibition and curator a public tag id is bound to.
// Unknown, inactive or unbound tags are reported as not found.
func (r *Resolver) ResolveTag(ctx context.Context, publicTagID string) (TagBinding, error) {
	trimmed := strings.TrimSpace(publicTagID)
	if trimmed == "" {
		return TagBinding{}, serviceerr.Validation(opResolveTag, "empty_tag_id", errEmptyIdentifier)
	}

	var tag NfcTag
	err := r.db.WithContext(ctx).Where("public_tag_id = ?", trimmed).Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TagBinding{}, serviceerr.NotFound(opResolveTag, "tag_missing", err)
	}
	if err != nil {
		r.logError(opResolveTag, "query_failed", err, zap.String("public_tag_id", trimmed))
		return TagBinding{}, serviceerr.New(opResolveTag, "query_failed", err)
	}
	if tag.Status != TagStatusActive {
		return TagBinding{}, serviceerr.NotFound(opResolveTag, "tag_inactive", nil)
	}
	if tag.BoundExhibitionID == nil || *tag.BoundExhibitionID == "" {
		return TagBinding{}, serviceerr.NotFound(opResolveTag, "tag_unbound", nil)
	}

	return TagBinding{
		TagID:        tag.ID,
		PublicTagID:  tag.PublicTagID,
		ExhibitionID: *tag.BoundExhibitionID,
		CuratorID:    tag.CuratorID,
		Status:       tag.Status,
	}, nil
}

// ResolveSession looks up the session for a raw bearer token.
func (r *Resolver) ResolveSession(ctx context.Context, rawToken string) (SessionBinding, error) {
	if strings.TrimSpace(rawToken) == "" {
		return SessionBinding{}, serviceerr.Validation(opResolveSession, "empty_token", errEmptyIdentifier)
	}

	var session ViewerSession
	err := r.db.WithContext(ctx).Where("token_hash = ?", HashToken(rawToken)).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionBinding{}, serviceerr.NotFound(opResolveSession, "session_missing", err)
	}
	if err != nil {
		r.logError(opResolveSession, "query_failed", err)
		return SessionBinding{}, serviceerr.New(opResolveSession, "query_failed", err)
	}
	if session.RevokedAt != nil {
		return SessionBinding{}, serviceerr.Validation(opResolveSession, "session_revoked", nil)
	}
	if !session.ExpiresAt.After(r.clock()) {
		return SessionBinding{}, serviceerr.Validation(opResolveSession, "session_expired", nil)
	}

	binding := SessionBinding{SessionID: session.ID, ExpiresAt: session.ExpiresAt}
	if session.ViewerID != nil {
		binding.ViewerID = *session.ViewerID
	}
	if session.NfcTagID != nil {
		binding.NfcTagID = *session.NfcTagID
	}
	return binding, nil
}

// GetCuratorPolicy returns the curator's NFC scope policy, defaulting to EXHIBITION_AND_GALLERY.
func (r *Resolver) GetCuratorPolicy(ctx context.Context, curatorID string) (NfcScopePolicy, error) {
	var policy CuratorPolicy
	err := r.db.WithContext(ctx).Where("curator_id = ?", curatorID).Take(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NfcScopeExhibitionAndGallery, nil
	}
	if err != nil {
		r.logError(opGetCuratorPolicy, "query_failed", err, zap.String("curator_id", curatorID))
		return "", serviceerr.New(opGetCuratorPolicy, "query_failed", err)
	}
	return policy.NfcScopePolicy, nil
}

// SessionScope resolves the curator and policy of the tag the session originated from.
// Sessions that are unknown or not bound to a tag yield an empty scope.
func (r *Resolver) SessionScope(ctx context.Context, sessionID string) (SessionScope, error) {
	if sessionID == "" {
		return SessionScope{}, nil
	}

	var session ViewerSession
	err := r.db.WithContext(ctx).Where("id = ?", sessionID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionScope{}, nil
	}
	if err != nil {
		r.logError(opSessionScope, "session_query_failed", err, zap.String("session_id", sessionID))
		return SessionScope{}, serviceerr.New(opSessionScope, "session_query_failed", err)
	}
	if session.NfcTagID == nil {
		return SessionScope{}, nil
	}

	var tag NfcTag
	err = r.db.WithContext(ctx).Where("id = ?", *session.NfcTagID).Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionScope{}, nil
	}
	if err != nil {
		r.logError(opSessionScope, "tag_query_failed", err, zap.String("session_id", sessionID))
		return SessionScope{}, serviceerr.New(opSessionScope, "tag_query_failed", err)
	}

	policy, err := r.GetCuratorPolicy(ctx, tag.CuratorID)
	if err != nil {
		return SessionScope{}, err
	}
	return SessionScope{CuratorID: tag.CuratorID, Policy: policy}, nil
}

func (r *Resolver) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("identity resolver error", attrs...)
}
