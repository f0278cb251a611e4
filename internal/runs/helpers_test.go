package runs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/identity"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("id-%04d", p.next), nil
}

type stubAccess struct {
	decision access.Decision
	requests []access.ExhibitionRequest
}

func (s *stubAccess) CanAccessExhibition(_ context.Context, request access.ExhibitionRequest) (access.Decision, error) {
	s.requests = append(s.requests, request)
	return s.decision, nil
}

type stubTags map[string]identity.TagBinding

func (s stubTags) ResolveTag(_ context.Context, publicTagID string) (identity.TagBinding, error) {
	binding, ok := s[publicTagID]
	if !ok {
		return identity.TagBinding{}, fmt.Errorf("tag %s: %w", publicTagID, gorm.ErrRecordNotFound)
	}
	return binding, nil
}

type stubSessions struct {
	issued int
}

func (s *stubSessions) IssueSession(_ context.Context, viewerID, nfcTagID string) (identity.IssuedSession, error) {
	s.issued++
	return identity.IssuedSession{
		Token:   fmt.Sprintf("token-%d", s.issued),
		Session: identity.SessionBinding{SessionID: fmt.Sprintf("anon-%d", s.issued), ViewerID: viewerID, NfcTagID: nfcTagID},
	}, nil
}

type fixture struct {
	db          *gorm.DB
	clock       *testClock
	access      *stubAccess
	sessions    *stubSessions
	tags        stubTags
	service     *Service
	exhibitions *exhibitions.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:runs_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(append(exhibitions.Models(), Models()...)...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &testClock{now: t0}
	idProvider := &sequenceIDProvider{}
	accessStub := &stubAccess{decision: access.Decision{Allowed: true, Reason: access.ReasonAllowed}}
	sessions := &stubSessions{}
	tags := stubTags{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
		Access:     accessStub,
		Tags:       tags,
		Sessions:   sessions,
	})
	if err != nil {
		t.Fatalf("failed to construct run service: %v", err)
	}
	curatorService, err := exhibitions.NewService(exhibitions.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
	})
	if err != nil {
		t.Fatalf("failed to construct exhibition service: %v", err)
	}
	return &fixture{db: db, clock: clock, access: accessStub, sessions: sessions, tags: tags, service: service, exhibitions: curatorService}
}

// publishedExhibition creates an exhibition and publishes one paragraph per day.
func (f *fixture) publishedExhibition(t *testing.T, totalDays int) exhibitions.Exhibition {
	t.Helper()
	ctx := context.Background()
	exhibition, err := f.exhibitions.CreateExhibition(ctx, exhibitions.CreateExhibitionRequest{
		CuratorID: "curator-1",
		Type:      string(exhibitions.TypeOneToMany),
		TotalDays: totalDays,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	for day := 1; day <= totalDays; day++ {
		f.publishDay(t, exhibition.ID, day, dayMarkup(day, "v1"))
	}
	return exhibition
}

func (f *fixture) publishDay(t *testing.T, exhibitionID string, day int, html string) exhibitions.PublishResult {
	t.Helper()
	ctx := context.Background()
	if _, err := f.exhibitions.SaveDraft(ctx, exhibitions.SaveDraftRequest{
		CuratorID:    "curator-1",
		ExhibitionID: exhibitionID,
		DayIndex:     day,
		HTML:         &html,
	}); err != nil {
		t.Fatalf("unexpected draft error: %v", err)
	}
	result, err := f.exhibitions.Publish(ctx, exhibitions.PublishRequest{CuratorID: "curator-1", ExhibitionID: exhibitionID, DayIndex: day})
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	return result
}

func (f *fixture) mustActivate(t *testing.T, exhibitionID, sessionID string, mode Mode) ActivateResult {
	t.Helper()
	result, err := f.service.Activate(context.Background(), ActivateRequest{ExhibitionID: exhibitionID, SessionID: sessionID, Mode: string(mode)})
	if err != nil {
		t.Fatalf("unexpected activate error: %v", err)
	}
	if !result.Decision.Allowed {
		t.Fatalf("expected activation to be allowed, got %#v", result.Decision)
	}
	return result
}

func (f *fixture) mustResolve(t *testing.T, exhibitionID, sessionID string) Entry {
	t.Helper()
	entry, err := f.service.ResolveEntry(context.Background(), EntryRequest{ExhibitionID: exhibitionID, SessionID: sessionID})
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	return entry
}

func dayMarkup(day int, label string) string {
	return fmt.Sprintf("<p>day %d %s</p>", day, label)
}

func days(count int) time.Duration {
	return time.Duration(count) * 24 * time.Hour
}
