package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofhir/sdcforms/model"
	"github.com/gofhir/sdcforms/pack"
	"github.com/gofhir/sdcforms/service"
)

// fakeRepo backs the HTTP layer with the in-memory store and records
// write operations.
type fakeRepo struct {
	*service.MemoryStore
	searchResult json.RawMessage
	deleted      []string
	failWith     error
}

func (f *fakeRepo) Search(ctx context.Context, kind string, params url.Values) (json.RawMessage, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.searchResult, nil
}

func (f *fakeRepo) Create(ctx context.Context, kind string, resource json.RawMessage) (json.RawMessage, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if err := f.Add(resource); err != nil {
		return nil, err
	}
	return resource, nil
}

func (f *fakeRepo) Update(ctx context.Context, kind, id string, resource json.RawMessage) (json.RawMessage, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return resource, nil
}

func (f *fakeRepo) Delete(ctx context.Context, kind, id string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func newTestServer(t *testing.T) (*fakeRepo, http.Handler) {
	t.Helper()

	repo := &fakeRepo{MemoryStore: service.NewMemoryStore()}
	repo.MustAdd(`{
		"resourceType": "Questionnaire",
		"id": "intake",
		"url": "http://example.org/fhir/Questionnaire/intake",
		"status": "active",
		"item": [
			{"linkId": "1", "type": "choice", "answerValueSet": "http://example.org/fhir/ValueSet/colors"}
		]
	}`)
	repo.MustAdd(`{
		"resourceType": "ValueSet",
		"id": "colors",
		"url": "http://example.org/fhir/ValueSet/colors",
		"status": "active"
	}`)

	packager := pack.NewService(repo.MemoryStore)
	srv := New(repo, packager)
	return repo, srv.Handler()
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
	if body["version"] == "" {
		t.Error("expected a version in the health response")
	}
}

func TestGetQuestionnaire(t *testing.T) {
	_, h := newTestServer(t)

	t.Run("found", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/intake", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var q map[string]any
		decodeJSON(t, rec, &q)
		if q["id"] != "intake" {
			t.Errorf("expected id intake, got %v", q["id"])
		}
	})

	t.Run("missing", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/nope", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		var outcome model.OperationOutcome
		decodeJSON(t, rec, &outcome)
		if outcome.ResourceType != "OperationOutcome" {
			t.Errorf("expected an OperationOutcome body, got %q", outcome.ResourceType)
		}
		if len(outcome.Issue) != 1 || outcome.Issue[0].Code != "not-found" {
			t.Errorf("unexpected issues: %+v", outcome.Issue)
		}
	})
}

func TestCreateQuestionnaire(t *testing.T) {
	repo, h := newTestServer(t)

	t.Run("valid", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/api/questionnaires",
			`{"resourceType": "Questionnaire", "id": "new", "status": "draft"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if _, err := repo.GetResource(context.Background(), model.KindQuestionnaire, "new"); err != nil {
			t.Errorf("created resource not stored: %v", err)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/api/questionnaires", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestDeleteQuestionnaire(t *testing.T) {
	repo, h := newTestServer(t)

	rec := doRequest(t, h, http.MethodDelete, "/api/questionnaires/intake", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "intake" {
		t.Errorf("expected delete of intake, got %v", repo.deleted)
	}
}

func TestSearchQuestionnaires(t *testing.T) {
	repo, h := newTestServer(t)
	repo.searchResult = json.RawMessage(`{"resourceType": "Bundle", "type": "searchset", "total": 1}`)

	rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/search?title=intake", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var bundle map[string]any
	decodeJSON(t, rec, &bundle)
	if bundle["type"] != "searchset" {
		t.Errorf("expected the search result to be passed through, got %v", bundle)
	}
}

func TestPackageByID(t *testing.T) {
	_, h := newTestServer(t)

	t.Run("with dependencies", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/intake/$package", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var bundle model.Bundle
		decodeJSON(t, rec, &bundle)
		if bundle.Type != "collection" {
			t.Errorf("expected a collection bundle, got %q", bundle.Type)
		}
		if len(bundle.Entry) != 2 {
			t.Fatalf("expected questionnaire plus value set, got %d entries", len(bundle.Entry))
		}
	})

	t.Run("without dependencies", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/intake/$package?include-dependencies=false", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var bundle model.Bundle
		decodeJSON(t, rec, &bundle)
		if len(bundle.Entry) != 1 {
			t.Fatalf("expected only the questionnaire, got %d entries", len(bundle.Entry))
		}
	})

	t.Run("missing questionnaire", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/nope/$package", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestPackageByURL(t *testing.T) {
	_, h := newTestServer(t)

	t.Run("by canonical url", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet,
			"/api/questionnaires/$package?url="+url.QueryEscape("http://example.org/fhir/Questionnaire/intake"), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var bundle model.Bundle
		decodeJSON(t, rec, &bundle)
		if len(bundle.Entry) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(bundle.Entry))
		}
	})

	t.Run("url parameter required", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/$package", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestPackageProvidedResource(t *testing.T) {
	_, h := newTestServer(t)

	t.Run("valid questionnaire", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/api/questionnaires/$package",
			`{"resourceType": "Questionnaire", "id": "adhoc", "status": "draft"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var bundle model.Bundle
		decodeJSON(t, rec, &bundle)
		if len(bundle.Entry) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(bundle.Entry))
		}
	})

	t.Run("wrong resource type", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodPost, "/api/questionnaires/$package",
			`{"resourceType": "Patient", "id": "p"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestLanguages(t *testing.T) {
	repo, h := newTestServer(t)
	repo.MustAdd(`{
		"resourceType": "Questionnaire",
		"id": "multilingual",
		"status": "active",
		"item": [{
			"linkId": "1",
			"text": "Name",
			"_text": {"extension": [{
				"url": "http://hl7.org/fhir/StructureDefinition/translation",
				"extension": [
					{"url": "lang", "valueCode": "de"},
					{"url": "content", "valueString": "Name"}
				]
			}]}
		}]
	}`)

	rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/multilingual/$languages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string][]string
	decodeJSON(t, rec, &body)
	languages := body["languages"]
	if len(languages) != 2 {
		t.Fatalf("expected [en de], got %v", languages)
	}
}

func TestLocalize(t *testing.T) {
	repo, h := newTestServer(t)
	repo.MustAdd(`{
		"resourceType": "Questionnaire",
		"id": "multilingual",
		"status": "active",
		"item": [{
			"linkId": "1",
			"text": "Name",
			"_text": {"extension": [{
				"url": "http://hl7.org/fhir/StructureDefinition/translation",
				"extension": [
					{"url": "lang", "valueCode": "de"},
					{"url": "content", "valueString": "Vorname"}
				]
			}]}
		}]
	}`)

	t.Run("translated", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/multilingual/$localize?language=de", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var q struct {
			Language string `json:"language"`
			Item     []struct {
				Text string `json:"text"`
			} `json:"item"`
		}
		decodeJSON(t, rec, &q)
		if q.Language != "de" {
			t.Errorf("expected language de, got %q", q.Language)
		}
		if len(q.Item) != 1 || q.Item[0].Text != "Vorname" {
			t.Errorf("expected the German text, got %+v", q.Item)
		}
	})

	t.Run("language parameter required", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/multilingual/$localize", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unsupported language", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/multilingual/$localize?language=ja", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "ja") {
			t.Error("expected the rejected language in the diagnostics")
		}
	})
}

func TestErrorMapping(t *testing.T) {
	repo, h := newTestServer(t)

	t.Run("internal errors are opaque", func(t *testing.T) {
		repo.failWith = errors.New("upstream exploded")
		defer func() { repo.failWith = nil }()

		rec := doRequest(t, h, http.MethodGet, "/api/questionnaires/search", "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "exploded") {
			t.Error("internal error details must not leak to clients")
		}
	})

	t.Run("bundle too large maps to 422", func(t *testing.T) {
		srv := New(repo, &fixedErrPackager{err: &pack.CountExceededError{Count: 102, Max: pack.MaxBundleEntries}})
		rec := doRequest(t, srv.Handler(), http.MethodGet, "/api/questionnaires/intake/$package", "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
		var outcome model.OperationOutcome
		decodeJSON(t, rec, &outcome)
		if len(outcome.Issue) != 1 || outcome.Issue[0].Code != "too-costly" {
			t.Errorf("unexpected issues: %+v", outcome.Issue)
		}
	})
}

type fixedErrPackager struct {
	err error
}

func (p *fixedErrPackager) PackageByID(ctx context.Context, id string, includeDependencies bool) (*model.Bundle, error) {
	return nil, p.err
}

func (p *fixedErrPackager) PackageByURL(ctx context.Context, url, version string, includeDependencies bool) (*model.Bundle, error) {
	return nil, p.err
}

func (p *fixedErrPackager) PackageResource(ctx context.Context, raw json.RawMessage, includeDependencies bool) (*model.Bundle, error) {
	return nil, p.err
}

func TestCORS(t *testing.T) {
	repo := &fakeRepo{MemoryStore: service.NewMemoryStore()}
	srv := New(repo, pack.NewService(repo.MemoryStore), WithCORSOrigins([]string{"http://app.example.org"}))
	h := srv.Handler()

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/questionnaires/search", nil)
		req.Header.Set("Origin", "http://app.example.org")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204 for preflight, got %d", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.org" {
			t.Errorf("expected the origin to be echoed, got %q", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/questionnaires/search", nil)
		req.Header.Set("Origin", "http://evil.example.org")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS headers, got %q", got)
		}
	})
}
