package runs

import (
	"errors"
	"fmt"
	"time"
)

// StateStatus is the viewer's progress through an exhibition.
type StateStatus string

const (
	StateActive    StateStatus = "ACTIVE"
	StatePaused    StateStatus = "PAUSED"
	StateCompleted StateStatus = "COMPLETED"
)

// Mode selects how an activation positions the new run.
type Mode string

const (
	// ModeRestart starts over from day one.
	ModeRestart Mode = "RESTART"
	// ModeContinue starts from the last day the viewer reached.
	ModeContinue Mode = "CONTINUE"
)

// ErrInvalidMode indicates an unknown activation mode.
var ErrInvalidMode = errors.New("runs: invalid activation mode")

// ParseMode validates a raw activation mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeRestart, ModeContinue:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
	}
}

// ViewerExhibitionState is the single progress row of a session for an exhibition.
// LastDayIndex never decreases while the state is not paused.
type ViewerExhibitionState struct {
	ID              string      `gorm:"column:id;primaryKey;size:190;not null"`
	ViewerSessionID string      `gorm:"column:viewer_session_id;size:190;not null;uniqueIndex:idx_viewer_states_session_exhibition,priority:1"`
	ExhibitionID    string      `gorm:"column:exhibition_id;size:190;not null;uniqueIndex:idx_viewer_states_session_exhibition,priority:2"`
	ViewerID        *string     `gorm:"column:viewer_id;size:190;index"`
	Status          StateStatus `gorm:"column:status;size:16;not null"`
	ActivatedAt     *time.Time  `gorm:"column:activated_at"`
	PausedAt        *time.Time  `gorm:"column:paused_at"`
	LastDayIndex    int         `gorm:"column:last_day_index;not null;default:1"`
	UpdatedAt       time.Time   `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ViewerExhibitionState) TableName() string {
	return "viewer_exhibition_states"
}

// Run is one activation pinned to a content version. Runs are append-only history;
// the most recently started run of a (session, exhibition) pair is the one rendered.
type Run struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null"`
	ViewerSessionID string    `gorm:"column:viewer_session_id;size:190;not null;index:idx_runs_session_exhibition,priority:1"`
	ExhibitionID    string    `gorm:"column:exhibition_id;size:190;not null;index:idx_runs_session_exhibition,priority:2"`
	VersionID       string    `gorm:"column:version_id;size:190;not null;index"`
	Mode            Mode      `gorm:"column:mode;size:16;not null"`
	StartedAt       time.Time `gorm:"column:started_at;not null"`
	RestartFromDay  int       `gorm:"column:restart_from_day;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Run) TableName() string {
	return "exhibition_runs"
}

const dayLength = 24 * time.Hour

// DayIndexAt computes the day a run shows at the given instant: one day per full 24 hours since the run
// started, counted from RestartFromDay and clamped to 1..totalDays.
func DayIndexAt(run Run, totalDays int, now time.Time) int {
	elapsed := now.Sub(run.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	dayIndex := run.RestartFromDay + int(elapsed/dayLength)
	if dayIndex > totalDays {
		dayIndex = totalDays
	}
	if dayIndex < 1 {
		dayIndex = 1
	}
	return dayIndex
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&ViewerExhibitionState{}, &Run{}}
}
