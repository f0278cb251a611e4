package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/serviceerr"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type counterIDProvider struct {
	next int
}

func (p *counterIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("id-%d", p.next), nil
}

func newIssuingResolver(t *testing.T) (*Resolver, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:identity_sessions_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	resolver, err := NewResolver(ResolverConfig{
		Database:   db,
		Clock:      func() time.Time { return fixedNow },
		IDProvider: &counterIDProvider{},
		SessionTTL: 48 * time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}
	return resolver, db
}

func TestIssueSessionRoundTripsThroughResolveSession(t *testing.T) {
	resolver, _ := newIssuingResolver(t)

	issued, err := resolver.IssueSession(context.Background(), "", "tag-1")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if len(issued.Token) != 64 {
		t.Fatalf("expected 32 random bytes hex encoded, got %q", issued.Token)
	}
	if !issued.Session.ExpiresAt.Equal(fixedNow.Add(48 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", issued.Session.ExpiresAt)
	}

	binding, err := resolver.ResolveSession(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if binding.SessionID != issued.Session.SessionID || binding.NfcTagID != "tag-1" || binding.ViewerID != "" {
		t.Fatalf("unexpected binding %#v", binding)
	}
}

func TestClaimCreatesProfileAndSession(t *testing.T) {
	resolver, db := newIssuingResolver(t)
	tag := NfcTag{ID: "tag-1", PublicTagID: "pub-1", CuratorID: "curator-1", BoundExhibitionID: stringPointer("exh-1"), Status: TagStatusActive}
	if err := db.Create(&tag).Error; err != nil {
		t.Fatalf("failed to seed tag: %v", err)
	}

	result, err := resolver.Claim(context.Background(), "pub-1", " Ada ")
	if err != nil {
		t.Fatalf("unexpected claim error: %v", err)
	}
	if result.Profile.Nickname != "Ada" || result.ExhibitionID != "exh-1" {
		t.Fatalf("unexpected claim result %#v", result)
	}
	binding, err := resolver.ResolveSession(context.Background(), result.Issued.Token)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if binding.ViewerID != result.Profile.ID || binding.NfcTagID != "tag-1" {
		t.Fatalf("unexpected binding %#v", binding)
	}

	_, err = resolver.Claim(context.Background(), "pub-1", "  ")
	if !errors.Is(err, serviceerr.ErrValidation) {
		t.Fatalf("expected validation error for empty nickname, got %v", err)
	}
	_, err = resolver.Claim(context.Background(), "pub-missing", "Ada")
	if !errors.Is(err, serviceerr.ErrNotFound) {
		t.Fatalf("expected not found for unknown tag, got %v", err)
	}
}
