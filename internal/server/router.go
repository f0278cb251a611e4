package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/MarcoPoloResearchLab/unfold/internal/auth"
	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/identity"
	"github.com/MarcoPoloResearchLab/unfold/internal/runs"
	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	curatorIDContextKey = "unfold_curator_id"
	sessionContextKey   = "unfold_viewer_session"
	internalKeyHeader   = "X-Internal-Api-Key"
)

var (
	errMissingCuratorValidator = errors.New("curator validator dependency required")
	errMissingSessions         = errors.New("session resolver dependency required")
	errMissingRuns             = errors.New("runs service dependency required")
	errMissingCuration         = errors.New("exhibitions service dependency required")
	errMissingGallery          = errors.New("gallery repository dependency required")
	errMissingAccess           = errors.New("access engine dependency required")
	errMissingGrants           = errors.New("grant store dependency required")
	errMissingInternalKey      = errors.New("internal api key required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// CuratorTokenValidator validates curator bearer tokens.
type CuratorTokenValidator interface {
	ValidateToken(token string) (auth.CuratorClaims, error)
}

// SessionResolver resolves viewer bearer sessions and claims tags into profiles.
type SessionResolver interface {
	ResolveSession(ctx context.Context, rawToken string) (identity.SessionBinding, error)
	Claim(ctx context.Context, publicTagID, nickname string) (identity.ClaimResult, error)
}

// RunService drives activation and entry for viewer sessions.
type RunService interface {
	Activate(ctx context.Context, request runs.ActivateRequest) (runs.ActivateResult, error)
	Pause(ctx context.Context, sessionID, exhibitionID string) (runs.ViewerExhibitionState, error)
	Resume(ctx context.Context, sessionID, exhibitionID string) (runs.ViewerExhibitionState, error)
	ResolveEntry(ctx context.Context, request runs.EntryRequest) (runs.Entry, error)
}

// CurationService is the curator editing and publishing surface.
type CurationService interface {
	CreateExhibition(ctx context.Context, request exhibitions.CreateExhibitionRequest) (exhibitions.Exhibition, error)
	UpdateExhibition(ctx context.Context, request exhibitions.UpdateExhibitionRequest) (exhibitions.Exhibition, error)
	ArchiveExhibition(ctx context.Context, curatorID, exhibitionID string) (exhibitions.Exhibition, error)
	SaveDraft(ctx context.Context, request exhibitions.SaveDraftRequest) (exhibitions.DayContent, error)
	AddAsset(ctx context.Context, request exhibitions.AddAssetRequest) (exhibitions.DayAsset, error)
	Publish(ctx context.Context, request exhibitions.PublishRequest) (exhibitions.PublishResult, error)
	ListVersionDayContents(ctx context.Context, curatorID, exhibitionID, versionID string) ([]exhibitions.DayContent, error)
}

// GalleryCatalog lists exhibitions shown in the public gallery.
type GalleryCatalog interface {
	ListGallery(ctx context.Context) ([]exhibitions.Exhibition, error)
	FindGalleryExhibition(ctx context.Context, exhibitionID string) (exhibitions.Exhibition, error)
}

// GalleryAccess gates gallery listing for a session.
type GalleryAccess interface {
	CanAccessGallery(ctx context.Context, sessionID string) (access.Decision, error)
}

// GrantService manages and checks access grants.
type GrantService interface {
	IssueGrant(ctx context.Context, request access.IssueGrantRequest) (access.AccessGrant, error)
	RevokeGrant(ctx context.Context, grantID string) (access.AccessGrant, error)
	HasValidGrantForExhibition(ctx context.Context, viewerID, exhibitionID string) (bool, error)
}

type Dependencies struct {
	CuratorValidator CuratorTokenValidator
	Sessions         SessionResolver
	Runs             RunService
	Curation         CurationService
	Gallery          GalleryCatalog
	Access           GalleryAccess
	Grants           GrantService
	InternalAPIKey   string
	AllowedOrigins   []string
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.CuratorValidator == nil:
		return nil, errMissingCuratorValidator
	case deps.Sessions == nil:
		return nil, errMissingSessions
	case deps.Runs == nil:
		return nil, errMissingRuns
	case deps.Curation == nil:
		return nil, errMissingCuration
	case deps.Gallery == nil:
		return nil, errMissingGallery
	case deps.Access == nil:
		return nil, errMissingAccess
	case deps.Grants == nil:
		return nil, errMissingGrants
	case deps.InternalAPIKey == "":
		return nil, errMissingInternalKey
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		curators:       deps.CuratorValidator,
		sessions:       deps.Sessions,
		runs:           deps.Runs,
		curation:       deps.Curation,
		gallery:        deps.Gallery,
		access:         deps.Access,
		grants:         deps.Grants,
		internalAPIKey: deps.InternalAPIKey,
		logger:         logger,
	}

	router.GET("/healthz", handler.handleHealth)

	viewer := router.Group("/viewer")
	viewer.POST("/claim", handler.handleClaim)
	viewer.GET("/entry/:publicTagId", handler.optionalViewerSession, handler.handleTagEntry)
	viewer.GET("/exhibitions/:exhibitionId/entry", handler.optionalViewerSession, handler.handleExhibitionEntry)
	sessionRoutes := viewer.Group("/exhibitions/:exhibitionId")
	sessionRoutes.Use(handler.requireViewerSession)
	sessionRoutes.POST("/activate", handler.handleActivate)
	sessionRoutes.POST("/pause", handler.handlePause)
	sessionRoutes.POST("/resume", handler.handleResume)

	gallery := router.Group("/gallery")
	gallery.Use(handler.optionalViewerSession)
	gallery.GET("", handler.handleListGallery)
	gallery.GET("/:exhibitionId", handler.handleGalleryExhibition)

	curator := router.Group("/curator")
	curator.Use(handler.authorizeCurator)
	curator.POST("/exhibitions", handler.handleCreateExhibition)
	curator.PATCH("/exhibitions/:exhibitionId", handler.handleUpdateExhibition)
	curator.POST("/exhibitions/:exhibitionId/archive", handler.handleArchiveExhibition)
	curator.PUT("/exhibitions/:exhibitionId/days/:dayIndex/draft", handler.handleSaveDraft)
	curator.POST("/exhibitions/:exhibitionId/days/:dayIndex/assets", handler.handleAddAsset)
	curator.POST("/exhibitions/:exhibitionId/days/:dayIndex/publish", handler.handlePublish)
	curator.GET("/exhibitions/:exhibitionId/versions/:versionId/days", handler.handleListVersionDays)

	internal := router.Group("/internal")
	internal.Use(handler.requireInternalKey)
	internal.POST("/grants", handler.handleIssueGrant)
	internal.POST("/grants/:grantId/revoke", handler.handleRevokeGrant)
	internal.GET("/grants/check", handler.handleCheckGrant)

	return router, nil
}

type httpHandler struct {
	curators       CuratorTokenValidator
	sessions       SessionResolver
	runs           RunService
	curation       CurationService
	gallery        GalleryCatalog
	access         GalleryAccess
	grants         GrantService
	internalAPIKey string
	logger         *zap.Logger
}

func corsMiddleware(allowedOrigins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", internalKeyHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeCurator(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.curators.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredCuratorToken) {
			h.logger.Info("curator token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("curator token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(curatorIDContextKey, claims.CuratorID)
	c.Next()
}

// optionalViewerSession binds the viewer session when a bearer token is presented.
// A presented but unusable token is rejected rather than silently ignored.
func (h *httpHandler) optionalViewerSession(c *gin.Context) {
	if c.GetHeader("Authorization") == "" {
		c.Next()
		return
	}
	h.requireViewerSession(c)
}

func (h *httpHandler) requireViewerSession(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	session, err := h.sessions.ResolveSession(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, serviceerr.ErrNotFound) || errors.Is(err, serviceerr.ErrValidation) {
			h.logger.Info("viewer session rejected", zap.String("code", serviceerr.CodeOf(err)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": serviceerr.CodeOf(err)})
			return
		}
		h.logger.Error("viewer session lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": serviceerr.CodeOf(err)})
		return
	}
	c.Set(sessionContextKey, session)
	c.Next()
}

func (h *httpHandler) requireInternalKey(c *gin.Context) {
	presented := c.GetHeader(internalKeyHeader)
	if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(h.internalAPIKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func viewerSession(c *gin.Context) (identity.SessionBinding, bool) {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return identity.SessionBinding{}, false
	}
	session, ok := value.(identity.SessionBinding)
	return session, ok
}

// respondError maps service errors onto HTTP statuses, always carrying the operation code.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	code := serviceerr.CodeOf(err)
	switch {
	case errors.Is(err, serviceerr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "code": code})
	case errors.Is(err, serviceerr.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "code": code})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": code})
	}
}

// respondDenied renders a non-allowed access decision. MASKED and GOVERNANCE_LOCKED hide the exhibition.
// A session started by this request is handed back with GRANT_REQUIRED so the viewer can return on it.
func respondDenied(c *gin.Context, decision access.Decision, summary *exhibitions.Summary, sessionToken string) {
	if decision.Reason == access.ReasonGrantRequired {
		body := gin.H{"error": "grant_required", "decision": decisionPayloadFrom(decision)}
		if summary != nil {
			body["exhibition"] = summaryPayloadFrom(*summary)
		}
		if sessionToken != "" {
			body["session_token"] = sessionToken
		}
		c.JSON(http.StatusPaymentRequired, body)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "decision": decisionPayloadFrom(decision)})
}
