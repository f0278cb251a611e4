package access

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/identity"
	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opEngineNew           = "access.engine.new"
	opCanAccessGallery    = "access.can_access_gallery"
	opCanAccessExhibition = "access.can_access_exhibition"
)

var errMissingDependency = errors.New("policy engine dependency is required")

// ExhibitionLookup loads live exhibitions and reports gorm.ErrRecordNotFound for absent or soft-deleted ones.
type ExhibitionLookup interface {
	FindExhibition(ctx context.Context, exhibitionID string, opts ...exhibitions.ReadOption) (exhibitions.Exhibition, error)
}

// ScopeResolver resolves the curator policy attached to a session's originating tag.
type ScopeResolver interface {
	SessionScope(ctx context.Context, sessionID string) (identity.SessionScope, error)
}

// GrantChecker answers whether a viewer holds a valid grant for an exhibition.
type GrantChecker interface {
	HasValidGrantForExhibition(ctx context.Context, viewerID, exhibitionID string) (bool, error)
}

// EngineConfig describes the dependencies of the Engine.
type EngineConfig struct {
	Exhibitions ExhibitionLookup
	Scopes      ScopeResolver
	Grants      GrantChecker
	Logger      *zap.Logger
}

// Engine decides whether a viewer or session may reach an exhibition or the gallery.
type Engine struct {
	exhibitions ExhibitionLookup
	scopes      ScopeResolver
	grants      GrantChecker
	logger      *zap.Logger
}

// NewEngine validates the configuration and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Exhibitions == nil || cfg.Scopes == nil || cfg.Grants == nil {
		return nil, serviceerr.New(opEngineNew, "missing_dependency", errMissingDependency)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{exhibitions: cfg.Exhibitions, scopes: cfg.Scopes, grants: cfg.Grants, logger: logger}, nil
}

// CanAccessGallery locks the gallery for sessions that originate from an EXHIBITION_ONLY curator's tag.
func (e *Engine) CanAccessGallery(ctx context.Context, sessionID string) (Decision, error) {
	if sessionID == "" {
		return allow(), nil
	}
	scope, err := e.scopes.SessionScope(ctx, sessionID)
	if err != nil {
		e.logError(opCanAccessGallery, "scope_failed", err, zap.String("session_id", sessionID))
		return Decision{}, err
	}
	if scope.Policy == identity.NfcScopeExhibitionOnly {
		return deny(ReasonGovernanceLocked), nil
	}
	return allow(), nil
}

// ExhibitionRequest identifies who asks for which exhibition. ViewerID and SessionID are optional.
type ExhibitionRequest struct {
	ExhibitionID string
	ViewerID     string
	SessionID    string
}

// CanAccessExhibition evaluates, in order: masking, governance lock, whether a grant is needed at all,
// and finally the viewer's grants. Masked and locked exhibitions are decided before any grant lookup.
func (e *Engine) CanAccessExhibition(ctx context.Context, request ExhibitionRequest) (Decision, error) {
	exhibition, err := e.exhibitions.FindExhibition(ctx, request.ExhibitionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return deny(ReasonMasked), nil
	}
	if err != nil {
		e.logError(opCanAccessExhibition, "exhibition_query_failed", err, zap.String("exhibition_id", request.ExhibitionID))
		return Decision{}, serviceerr.New(opCanAccessExhibition, "exhibition_query_failed", err)
	}
	if exhibition.DeletedAt != nil || exhibition.GovernanceMaskedAt != nil {
		return deny(ReasonMasked), nil
	}

	if request.SessionID != "" {
		scope, err := e.scopes.SessionScope(ctx, request.SessionID)
		if err != nil {
			e.logError(opCanAccessExhibition, "scope_failed", err, zap.String("session_id", request.SessionID))
			return Decision{}, err
		}
		if scope.Policy == identity.NfcScopeExhibitionOnly && scope.CuratorID != exhibition.CuratorID {
			return deny(ReasonGovernanceLocked), nil
		}
	}

	if !RequiresGrant(exhibition) {
		return allow(), nil
	}
	if request.ViewerID == "" {
		return deny(ReasonGrantRequired), nil
	}

	granted, err := e.grants.HasValidGrantForExhibition(ctx, request.ViewerID, exhibition.ID)
	if err != nil {
		e.logError(opCanAccessExhibition, "grant_check_failed", err,
			zap.String("exhibition_id", exhibition.ID),
			zap.String("viewer_id", request.ViewerID))
		return Decision{}, err
	}
	if !granted {
		return deny(ReasonGrantRequired), nil
	}
	return allow(), nil
}

// RequiresGrant reports whether viewers need an entitlement: anything not publicly active, and monetized broadcasts.
func RequiresGrant(exhibition exhibitions.Exhibition) bool {
	if exhibition.Visibility != exhibitions.VisibilityPublic || exhibition.Status != exhibitions.StatusActive {
		return true
	}
	return exhibition.Type == exhibitions.TypeOneToMany && exhibition.MonetizationEnabled
}

func (e *Engine) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	e.logger.Error("access policy error", attrs...)
}
