package runs

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/identity"
	"github.com/MarcoPoloResearchLab/unfold/internal/ids"
	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew   = "runs.service.new"
	opActivate     = "runs.activate"
	opPause        = "runs.pause"
	opResume       = "runs.resume"
	opResolveEntry = "runs.resolve_entry"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingAccess     = errors.New("access checker is required")
	errMissingTags       = errors.New("tag resolver is required")
	errMissingSession    = errors.New("viewer session is required")
	errMissingTarget     = errors.New("tag or exhibition identifier is required")
	errInvalidTransition = errors.New("transition not allowed from the current state")
)

// AccessChecker decides whether a request may reach an exhibition.
type AccessChecker interface {
	CanAccessExhibition(ctx context.Context, request access.ExhibitionRequest) (access.Decision, error)
}

// TagResolver maps scanned tags to the exhibition they are bound to.
type TagResolver interface {
	ResolveTag(ctx context.Context, publicTagID string) (identity.TagBinding, error)
}

// SessionIssuer starts anonymous sessions for viewers entering through a tag without one.
type SessionIssuer interface {
	IssueSession(ctx context.Context, viewerID, nfcTagID string) (identity.IssuedSession, error)
}

// ServiceConfig describes the dependencies of the run resolution Service. Sessions is optional.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider ids.Provider
	Access     AccessChecker
	Tags       TagResolver
	Sessions   SessionIssuer
	Logger     *zap.Logger
}

// Service pins viewer runs to exhibition versions and resolves which day they see.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider ids.Provider
	access     AccessChecker
	tags       TagResolver
	sessions   SessionIssuer
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, serviceerr.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, serviceerr.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Access == nil {
		return nil, serviceerr.New(opServiceNew, "missing_access", errMissingAccess)
	}
	if cfg.Tags == nil {
		return nil, serviceerr.New(opServiceNew, "missing_tags", errMissingTags)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		access:     cfg.Access,
		tags:       cfg.Tags,
		sessions:   cfg.Sessions,
		logger:     logger,
	}, nil
}

// ActivateRequest starts or continues a run. ViewerID is optional.
type ActivateRequest struct {
	ExhibitionID string
	SessionID    string
	ViewerID     string
	Mode         string
}

// ActivateResult carries the access decision and, when allowed, the new run and the state it produced.
type ActivateResult struct {
	Decision access.Decision
	Run      Run
	State    ViewerExhibitionState
	Summary  exhibitions.Summary
}

// Activate creates a run pinned to the latest eligible version and upserts the viewer state in one transaction.
// A denied access decision is returned without writing anything.
func (s *Service) Activate(ctx context.Context, request ActivateRequest) (ActivateResult, error) {
	if request.SessionID == "" {
		return ActivateResult{}, serviceerr.Validation(opActivate, "missing_session", errMissingSession)
	}
	mode, err := ParseMode(request.Mode)
	if err != nil {
		return ActivateResult{}, serviceerr.Validation(opActivate, "invalid_mode", err)
	}

	decision, err := s.access.CanAccessExhibition(ctx, access.ExhibitionRequest{
		ExhibitionID: request.ExhibitionID,
		ViewerID:     request.ViewerID,
		SessionID:    request.SessionID,
	})
	if err != nil {
		return ActivateResult{}, err
	}
	if !decision.Allowed {
		return ActivateResult{Decision: decision}, nil
	}

	result := ActivateResult{Decision: decision}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repository := exhibitions.NewRepository(tx)
		exhibition, err := repository.FindExhibition(ctx, request.ExhibitionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return serviceerr.NotFound(opActivate, "exhibition_missing", err)
		}
		if err != nil {
			s.logError(opActivate, "exhibition_query_failed", err, zap.String("exhibition_id", request.ExhibitionID))
			return serviceerr.New(opActivate, "exhibition_query_failed", err)
		}
		version, err := repository.LatestEligibleVersion(ctx, exhibition)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return serviceerr.NotFound(opActivate, "version_missing", err)
		}
		if err != nil {
			s.logError(opActivate, "version_query_failed", err, zap.String("exhibition_id", exhibition.ID))
			return serviceerr.New(opActivate, "version_query_failed", err)
		}

		existing, found, err := s.findState(ctx, tx, opActivate, request.SessionID, exhibition.ID)
		if err != nil {
			return err
		}

		now := s.clock().UTC()
		restartFromDay := 1
		activatedAt := now
		if mode == ModeContinue && found {
			if existing.LastDayIndex > 0 {
				restartFromDay = existing.LastDayIndex
			}
			if existing.ActivatedAt != nil {
				activatedAt = *existing.ActivatedAt
			}
		}

		runID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opActivate, "id_generation_failed", err)
			return serviceerr.New(opActivate, "id_generation_failed", err)
		}
		run := Run{
			ID:              runID,
			ViewerSessionID: request.SessionID,
			ExhibitionID:    exhibition.ID,
			VersionID:       version.ID,
			Mode:            mode,
			StartedAt:       now,
			RestartFromDay:  restartFromDay,
		}
		if err := tx.Create(&run).Error; err != nil {
			s.logError(opActivate, "run_insert_failed", err, zap.String("exhibition_id", exhibition.ID))
			return serviceerr.New(opActivate, "run_insert_failed", err)
		}

		stateID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opActivate, "id_generation_failed", err)
			return serviceerr.New(opActivate, "id_generation_failed", err)
		}
		state := ViewerExhibitionState{
			ID:              stateID,
			ViewerSessionID: request.SessionID,
			ExhibitionID:    exhibition.ID,
			ViewerID:        optionalString(request.ViewerID),
			Status:          StateActive,
			ActivatedAt:     &activatedAt,
			PausedAt:        nil,
			LastDayIndex:    restartFromDay,
			UpdatedAt:       now,
		}
		assignments := []string{"status", "activated_at", "paused_at", "last_day_index", "updated_at"}
		if state.ViewerID != nil {
			assignments = append(assignments, "viewer_id")
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "viewer_session_id"}, {Name: "exhibition_id"}},
			DoUpdates: clause.AssignmentColumns(assignments),
		}).Create(&state).Error; err != nil {
			s.logError(opActivate, "state_upsert_failed", err, zap.String("exhibition_id", exhibition.ID))
			return serviceerr.New(opActivate, "state_upsert_failed", err)
		}

		stored, found, err := s.findState(ctx, tx, opActivate, request.SessionID, exhibition.ID)
		if err != nil {
			return err
		}
		if !found {
			s.logIntegrity(opActivate, "state_missing_after_upsert",
				zap.String("session_id", request.SessionID),
				zap.String("exhibition_id", exhibition.ID))
			return serviceerr.Integrity(opActivate, "state_missing_after_upsert", nil)
		}

		result.Run = run
		result.State = stored
		result.Summary = version.Summary()
		return nil
	})
	if err != nil {
		return ActivateResult{}, err
	}
	return result, nil
}

// Pause stops the day clock from advancing the viewer's state. Pausing a paused state is a no-op.
func (s *Service) Pause(ctx context.Context, sessionID, exhibitionID string) (ViewerExhibitionState, error) {
	return s.transition(ctx, opPause, sessionID, exhibitionID, func(state *ViewerExhibitionState, now time.Time) (map[string]any, bool) {
		if state.Status == StatePaused {
			return nil, false
		}
		state.Status = StatePaused
		state.PausedAt = &now
		return map[string]any{"status": StatePaused, "paused_at": now, "updated_at": now}, true
	})
}

// Resume reactivates a paused state. The day is recomputed by the next entry resolution.
func (s *Service) Resume(ctx context.Context, sessionID, exhibitionID string) (ViewerExhibitionState, error) {
	return s.transition(ctx, opResume, sessionID, exhibitionID, func(state *ViewerExhibitionState, now time.Time) (map[string]any, bool) {
		if state.Status == StateActive {
			return nil, false
		}
		state.Status = StateActive
		state.PausedAt = nil
		return map[string]any{"status": StateActive, "paused_at": nil, "updated_at": now}, true
	})
}

type transitionFunc func(state *ViewerExhibitionState, now time.Time) (map[string]any, bool)

func (s *Service) transition(ctx context.Context, operation, sessionID, exhibitionID string, apply transitionFunc) (ViewerExhibitionState, error) {
	if sessionID == "" {
		return ViewerExhibitionState{}, serviceerr.Validation(operation, "missing_session", errMissingSession)
	}

	var result ViewerExhibitionState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, found, err := s.findState(ctx, tx, operation, sessionID, exhibitionID)
		if err != nil {
			return err
		}
		if !found {
			return serviceerr.NotFound(operation, "state_missing", nil)
		}
		if state.Status == StateCompleted {
			return serviceerr.Validation(operation, "invalid_transition", errInvalidTransition)
		}

		now := s.clock().UTC()
		updates, changed := apply(&state, now)
		if changed {
			state.UpdatedAt = now
			if err := tx.Model(&ViewerExhibitionState{}).Where("id = ?", state.ID).Updates(updates).Error; err != nil {
				s.logError(operation, "state_update_failed", err, zap.String("state_id", state.ID))
				return serviceerr.New(operation, "state_update_failed", err)
			}
		}
		result = state
		return nil
	})
	if err != nil {
		return ViewerExhibitionState{}, err
	}
	return result, nil
}

func (s *Service) findState(ctx context.Context, db *gorm.DB, operation, sessionID, exhibitionID string) (ViewerExhibitionState, bool, error) {
	var state ViewerExhibitionState
	err := db.WithContext(ctx).
		Where("viewer_session_id = ? AND exhibition_id = ?", sessionID, exhibitionID).
		Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ViewerExhibitionState{}, false, nil
	}
	if err != nil {
		s.logError(operation, "state_query_failed", err,
			zap.String("session_id", sessionID),
			zap.String("exhibition_id", exhibitionID))
		return ViewerExhibitionState{}, false, serviceerr.New(operation, "state_query_failed", err)
	}
	return state, true, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
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
	s.logger.Error("run service error", attrs...)
}

// logIntegrity records persisted state that contradicts the run invariants.
func (s *Service) logIntegrity(operation, reason string, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("alert", "integrity"),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("run integrity violation", attrs...)
}
