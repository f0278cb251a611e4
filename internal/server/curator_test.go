package server

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCreateExhibitionReturnsDraft(t *testing.T) {
	h := newHarness(t)
	recorder := h.do(t, http.MethodPost, "/curator/exhibitions",
		map[string]any{"type": "ONE_TO_ONE", "total_days": 4},
		bearer(h.curatorToken(t, "curator-1")))

	expectStatus(t, recorder, http.StatusCreated)
	body := decodeBody(t, recorder)
	if body["status"] != "DRAFT" || body["visibility"] != "DRAFT" || body["total_days"] != float64(4) {
		t.Fatalf("unexpected exhibition %v", body)
	}
}

func TestCreateExhibitionMapsValidationErrors(t *testing.T) {
	h := newHarness(t)
	recorder := h.do(t, http.MethodPost, "/curator/exhibitions",
		map[string]any{"type": "ONE_TO_ONE", "total_days": 4, "monetization_enabled": true},
		bearer(h.curatorToken(t, "curator-1")))

	expectStatus(t, recorder, http.StatusBadRequest)
	if decodeBody(t, recorder)["code"] != "exhibitions.create.invalid_config" {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestCuratorCannotTouchForeignExhibition(t *testing.T) {
	h := newHarness(t)
	exhibitionID := h.publishedExhibition(t, "curator-1", 2, nil)

	recorder := h.do(t, http.MethodPost, "/curator/exhibitions/"+exhibitionID+"/archive", nil,
		bearer(h.curatorToken(t, "curator-2")))
	expectStatus(t, recorder, http.StatusNotFound)
}

func TestUpdateExhibitionAppliesPartialChanges(t *testing.T) {
	h := newHarness(t)
	headers := bearer(h.curatorToken(t, "curator-1"))
	created := h.do(t, http.MethodPost, "/curator/exhibitions", map[string]any{"type": "ONE_TO_MANY", "total_days": 3}, headers)
	expectStatus(t, created, http.StatusCreated)
	exhibitionID := decodeBody(t, created)["id"].(string)

	updated := h.do(t, http.MethodPatch, "/curator/exhibitions/"+exhibitionID, map[string]any{"total_days": 7}, headers)
	expectStatus(t, updated, http.StatusOK)
	body := decodeBody(t, updated)
	if body["total_days"] != float64(7) || body["type"] != "ONE_TO_MANY" {
		t.Fatalf("unexpected update result %v", body)
	}
}

func TestPublishFlowSanitizesAndVersions(t *testing.T) {
	h := newHarness(t)
	headers := bearer(h.curatorToken(t, "curator-1"))
	created := h.do(t, http.MethodPost, "/curator/exhibitions", map[string]any{"type": "ONE_TO_MANY", "total_days": 2}, headers)
	exhibitionID := decodeBody(t, created)["id"].(string)
	dayPath := fmt.Sprintf("/curator/exhibitions/%s/days/1", exhibitionID)

	draft := h.do(t, http.MethodPut, dayPath+"/draft",
		map[string]any{"html": `<p onclick="steal()">hello</p><script>alert(1)</script>`, "css": "p{color:red}"}, headers)
	expectStatus(t, draft, http.StatusOK)
	if html := decodeBody(t, draft)["html"]; html != "<p>hello</p>" {
		t.Fatalf("expected sanitized markup, got %v", html)
	}

	asset := h.do(t, http.MethodPost, dayPath+"/assets", map[string]any{"url": "https://cdn.example.com/a.jpg"}, headers)
	expectStatus(t, asset, http.StatusCreated)

	published := h.do(t, http.MethodPost, dayPath+"/publish", nil, headers)
	expectStatus(t, published, http.StatusOK)
	result := decodeBody(t, published)
	if result["first_publish"] != true {
		t.Fatalf("expected first publish, got %v", result)
	}
	version := result["version"].(map[string]any)
	day := result["day"].(map[string]any)
	if day["status"] != "PUBLISHED" || len(day["assets"].([]any)) != 1 {
		t.Fatalf("unexpected published day %v", day)
	}

	listed := h.do(t, http.MethodGet,
		fmt.Sprintf("/curator/exhibitions/%s/versions/%s/days", exhibitionID, version["id"]), nil, headers)
	expectStatus(t, listed, http.StatusOK)
	days := decodeBody(t, listed)["days"].([]any)
	if len(days) != 1 {
		t.Fatalf("expected only the published day on the new version, got %v", days)
	}
}

func TestPublishWithoutDraftIsNotFound(t *testing.T) {
	h := newHarness(t)
	headers := bearer(h.curatorToken(t, "curator-1"))
	created := h.do(t, http.MethodPost, "/curator/exhibitions", map[string]any{"type": "ONE_TO_MANY", "total_days": 2}, headers)
	exhibitionID := decodeBody(t, created)["id"].(string)

	recorder := h.do(t, http.MethodPost, fmt.Sprintf("/curator/exhibitions/%s/days/1/publish", exhibitionID), nil, headers)
	expectStatus(t, recorder, http.StatusNotFound)
	if decodeBody(t, recorder)["code"] != "exhibitions.publish.draft_missing" {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestDayIndexMustBeNumeric(t *testing.T) {
	h := newHarness(t)
	recorder := h.do(t, http.MethodPost, "/curator/exhibitions/x/days/first/publish", nil, bearer(h.curatorToken(t, "curator-1")))
	expectStatus(t, recorder, http.StatusBadRequest)
}
