package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/unfold/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubCuratorValidator struct {
	claims      auth.CuratorClaims
	validateErr error
}

func (s stubCuratorValidator) ValidateToken(string) (auth.CuratorClaims, error) {
	return s.claims, s.validateErr
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); !errors.Is(err, errMissingCuratorValidator) {
		t.Fatalf("expected missing validator error, got %v", err)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	recorder := h.do(t, http.MethodGet, "/healthz", nil, nil)
	expectStatus(t, recorder, http.StatusOK)
	if decodeBody(t, recorder)["status"] != "ok" {
		t.Fatalf("unexpected health body %s", recorder.Body.String())
	}
}

func TestCORSMiddlewareAllowsInternalKeyHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware())
	router.OPTIONS("/internal/grants", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodOptions, "/internal/grants", http.NoBody)
	request.Header.Set("Origin", "https://curator.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", internalKeyHeader)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	allowHeaders := recorder.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(strings.ToLower(allowHeaders), strings.ToLower(internalKeyHeader)) {
		t.Fatalf("expected Access-Control-Allow-Headers to include %s, got %q", internalKeyHeader, allowHeaders)
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
}

func TestAuthorizeCuratorLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/curator/exhibitions", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		curators: stubCuratorValidator{validateErr: auth.ErrExpiredCuratorToken},
		logger:   zap.New(core),
	}

	handler.authorizeCurator(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entries[0].Level)
	}
}

func TestAuthorizeCuratorLogsInvalidTokenAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/curator/exhibitions", http.NoBody)
	request.Header.Set("Authorization", "Bearer forged-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		curators: stubCuratorValidator{validateErr: auth.ErrInvalidCuratorToken},
		logger:   zap.New(core),
	}

	handler.authorizeCurator(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d", recorder.Code)
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %v", entries)
	}
}

func TestAuthorizeCuratorStoresCuratorID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/curator/exhibitions", http.NoBody)
	request.Header.Set("Authorization", "Bearer good-token")
	ctx.Request = request

	handler := &httpHandler{
		curators: stubCuratorValidator{claims: auth.CuratorClaims{CuratorID: "curator-7"}},
		logger:   zap.NewNop(),
	}

	handler.authorizeCurator(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to continue")
	}
	if ctx.GetString(curatorIDContextKey) != "curator-7" {
		t.Fatalf("expected curator id in context, got %q", ctx.GetString(curatorIDContextKey))
	}
}

func TestCuratorRoutesRequireBearerToken(t *testing.T) {
	h := newHarness(t)
	recorder := h.do(t, http.MethodPost, "/curator/exhibitions", map[string]any{"type": "ONE_TO_ONE", "total_days": 3}, nil)
	expectStatus(t, recorder, http.StatusUnauthorized)
}

func TestInternalRoutesRequireAPIKey(t *testing.T) {
	h := newHarness(t)

	missing := h.do(t, http.MethodGet, "/internal/grants/check?viewer_id=v&exhibition_id=e", nil, nil)
	expectStatus(t, missing, http.StatusUnauthorized)

	wrong := h.do(t, http.MethodGet, "/internal/grants/check?viewer_id=v&exhibition_id=e", nil, map[string]string{internalKeyHeader: "nope"})
	expectStatus(t, wrong, http.StatusUnauthorized)

	ok := h.do(t, http.MethodGet, "/internal/grants/check?viewer_id=v&exhibition_id=e", nil, map[string]string{internalKeyHeader: testInternalKey})
	expectStatus(t, ok, http.StatusOK)
}

func TestViewerRoutesRejectUnknownSessionToken(t *testing.T) {
	h := newHarness(t)
	recorder := h.do(t, http.MethodPost, "/viewer/exhibitions/any/pause", nil, bearer("not-a-session"))
	expectStatus(t, recorder, http.StatusUnauthorized)
	if decodeBody(t, recorder)["code"] != "identity.resolve_session.session_missing" {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}
