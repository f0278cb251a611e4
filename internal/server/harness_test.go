package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/unfold/internal/access"
	"github.com/MarcoPoloResearchLab/unfold/internal/auth"
	"github.com/MarcoPoloResearchLab/unfold/internal/database"
	"github.com/MarcoPoloResearchLab/unfold/internal/exhibitions"
	"github.com/MarcoPoloResearchLab/unfold/internal/identity"
	"github.com/MarcoPoloResearchLab/unfold/internal/runs"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "server-test-secret"
	testInternalKey   = "internal-test-key"
)

var harnessStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type harnessClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *harnessClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *harnessClock) Advance(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(duration)
}

type harnessIDs struct {
	mu   sync.Mutex
	next int
}

func (p *harnessIDs) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("srv-%04d", p.next), nil
}

type harness struct {
	db      *gorm.DB
	clock   *harnessClock
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &harnessClock{now: harnessStart}
	idProvider := &harnessIDs{}
	logger := zap.NewNop()

	curation, err := exhibitions.NewService(exhibitions.ServiceConfig{Database: db, Clock: clock.Now, IDProvider: idProvider, Logger: logger})
	if err != nil {
		t.Fatalf("exhibitions service: %v", err)
	}
	resolver, err := identity.NewResolver(identity.ResolverConfig{Database: db, Clock: clock.Now, IDProvider: idProvider, Logger: logger})
	if err != nil {
		t.Fatalf("identity resolver: %v", err)
	}
	grants, err := access.NewGrantStore(access.GrantStoreConfig{Database: db, Clock: clock.Now, IDProvider: idProvider, Logger: logger})
	if err != nil {
		t.Fatalf("grant store: %v", err)
	}
	repository := exhibitions.NewRepository(db)
	engine, err := access.NewEngine(access.EngineConfig{Exhibitions: repository, Scopes: resolver, Grants: grants, Logger: logger})
	if err != nil {
		t.Fatalf("access engine: %v", err)
	}
	runService, err := runs.NewService(runs.ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: idProvider,
		Access:     engine,
		Tags:       resolver,
		Sessions:   resolver,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("runs service: %v", err)
	}
	validator, err := auth.NewCuratorValidator(auth.CuratorValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultCuratorIssuer,
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("curator validator: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		CuratorValidator: validator,
		Sessions:         resolver,
		Runs:             runService,
		Curation:         curation,
		Gallery:          repository,
		Access:           engine,
		Grants:           grants,
		InternalAPIKey:   testInternalKey,
		Logger:           logger,
	})
	if err != nil {
		t.Fatalf("NewHTTPHandler: %v", err)
	}
	return &harness{db: db, clock: clock, handler: handler}
}

func (h *harness) curatorToken(t *testing.T, curatorID string) string {
	t.Helper()
	claims := auth.CuratorClaims{
		CuratorID: curatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.DefaultCuratorIssuer,
			Subject:   curatorID,
			IssuedAt:  jwt.NewNumericDate(h.clock.Now()),
			ExpiresAt: jwt.NewNumericDate(h.clock.Now().Add(365 * 24 * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("sign curator token: %v", err)
	}
	return signed
}

// do sends a JSON request and returns the recorder. A nil body sends no payload.
func (h *harness) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Reader
	if body == nil {
		payload = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		payload = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, payload)
	request.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, recorder.Code, recorder.Body.String())
	}
}

// publishedExhibition creates a free public exhibition through the curator endpoints and publishes its days.
func (h *harness) publishedExhibition(t *testing.T, curatorID string, totalDays int, extra map[string]any) string {
	t.Helper()
	headers := bearer(h.curatorToken(t, curatorID))
	body := map[string]any{"type": "ONE_TO_MANY", "total_days": totalDays}
	for key, value := range extra {
		body[key] = value
	}
	created := h.do(t, http.MethodPost, "/curator/exhibitions", body, headers)
	expectStatus(t, created, http.StatusCreated)
	exhibitionID := decodeBody(t, created)["id"].(string)

	for day := 1; day <= totalDays; day++ {
		path := fmt.Sprintf("/curator/exhibitions/%s/days/%d", exhibitionID, day)
		draft := h.do(t, http.MethodPut, path+"/draft", map[string]any{"html": fmt.Sprintf("<p>day %d</p>", day)}, headers)
		expectStatus(t, draft, http.StatusOK)
		published := h.do(t, http.MethodPost, path+"/publish", nil, headers)
		expectStatus(t, published, http.StatusOK)
	}
	return exhibitionID
}

func (h *harness) seedTag(t *testing.T, publicTagID, curatorID, exhibitionID string) {
	t.Helper()
	tag := identity.NfcTag{
		ID:                "tag-" + publicTagID,
		PublicTagID:       publicTagID,
		CuratorID:         curatorID,
		BoundExhibitionID: &exhibitionID,
		Status:            identity.TagStatusActive,
	}
	if err := h.db.Create(&tag).Error; err != nil {
		t.Fatalf("seed tag: %v", err)
	}
}
