package exhibitions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/events"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sequenceIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("id-%03d", p.next), nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []events.VersionPublished
	err       error
}

func (p *recordingPublisher) PublishVersionPublished(_ context.Context, event events.VersionPublished) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return p.err
}

func (p *recordingPublisher) Close() error {
	return nil
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:exhibitions_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingPublisher) {
	t.Helper()
	db := newTestDatabase(t)
	publisher := &recordingPublisher{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return fixedNow },
		IDProvider: &sequenceIDProvider{},
		Publisher:  publisher,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db, publisher
}

func mustCreateExhibition(t *testing.T, service *Service, request CreateExhibitionRequest) Exhibition {
	t.Helper()
	exhibition, err := service.CreateExhibition(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return exhibition
}

func mustSaveDraft(t *testing.T, service *Service, curatorID, exhibitionID string, dayIndex int, html string) DayContent {
	t.Helper()
	draft, err := service.SaveDraft(context.Background(), SaveDraftRequest{
		CuratorID:    curatorID,
		ExhibitionID: exhibitionID,
		DayIndex:     dayIndex,
		HTML:         &html,
	})
	if err != nil {
		t.Fatalf("unexpected save draft error: %v", err)
	}
	return draft
}

func mustPublish(t *testing.T, service *Service, curatorID, exhibitionID string, dayIndex int) PublishResult {
	t.Helper()
	result, err := service.Publish(context.Background(), PublishRequest{
		CuratorID:    curatorID,
		ExhibitionID: exhibitionID,
		DayIndex:     dayIndex,
	})
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	return result
}
