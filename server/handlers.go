package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gofhir/sdcforms"
	"github.com/gofhir/sdcforms/localize"
	"github.com/gofhir/sdcforms/model"
	"github.com/gofhir/sdcforms/pack"
	"github.com/gofhir/sdcforms/service"
)

const fhirJSON = "application/fhir+json"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": sdcforms.Version,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	result, err := s.repo.Search(r.Context(), model.KindQuestionnaire, r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	res, err := s.repo.GetResource(r.Context(), model.KindQuestionnaire, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, res.Raw)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	raw, err := readResource(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	created, err := s.repo.Create(r.Context(), model.KindQuestionnaire, raw)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeRaw(w, http.StatusCreated, created)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := readResource(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	updated, err := s.repo.Update(r.Context(), model.KindQuestionnaire, r.PathValue("id"), raw)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Delete(r.Context(), model.KindQuestionnaire, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePackageByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.packageContext(r.Context())
	defer cancel()

	bundle, err := s.packager.PackageByID(ctx, r.PathValue("id"), includeDependencies(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handlePackageByURL(w http.ResponseWriter, r *http.Request) {
	canonicalURL := r.URL.Query().Get("url")
	if canonicalURL == "" {
		s.writeOutcome(w, http.StatusBadRequest, "invalid", "query parameter 'url' is required")
		return
	}

	ctx, cancel := s.packageContext(r.Context())
	defer cancel()

	bundle, err := s.packager.PackageByURL(ctx, canonicalURL, r.URL.Query().Get("version"), includeDependencies(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handlePackageProvided(w http.ResponseWriter, r *http.Request) {
	raw, err := readResource(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := s.packageContext(r.Context())
	defer cancel()

	bundle, err := s.packager.PackageResource(ctx, raw, includeDependencies(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	res, err := s.repo.GetResource(r.Context(), model.KindQuestionnaire, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	languages, err := localize.AvailableLanguages(res.Raw)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"languages": languages})
}

func (s *Server) handleLocalize(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	if language == "" {
		s.writeOutcome(w, http.StatusBadRequest, "invalid", "query parameter 'language' is required")
		return
	}
	res, err := s.repo.GetResource(r.Context(), model.KindQuestionnaire, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	supported, err := localize.SupportsLanguage(res.Raw, language)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !supported {
		s.writeOutcome(w, http.StatusBadRequest, "not-supported",
			fmt.Sprintf("language %q is not available for this questionnaire", language))
		return
	}
	localized, err := localize.Localize(res.Raw, language)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeRaw(w, http.StatusOK, localized)
}

func (s *Server) packageContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.packageTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.packageTimeout)
}

// includeDependencies reads the include-dependencies query parameter,
// defaulting to true.
func includeDependencies(r *http.Request) bool {
	raw := r.URL.Query().Get("include-dependencies")
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

var errEmptyBody = errors.New("request body must contain a FHIR resource")

func readResource(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || !json.Valid(body) {
		return nil, errEmptyBody
	}
	return body, nil
}

// writeError maps domain errors onto HTTP statuses with an
// OperationOutcome body.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var countErr *pack.CountExceededError
	var sizeErr *pack.SizeExceededError

	switch {
	case errors.Is(err, service.ErrNotFound):
		s.writeOutcome(w, http.StatusNotFound, "not-found", err.Error())
	case errors.Is(err, pack.ErrInvalidResource), errors.Is(err, errEmptyBody):
		s.writeOutcome(w, http.StatusBadRequest, "invalid", err.Error())
	case errors.As(err, &countErr), errors.As(err, &sizeErr):
		s.writeOutcome(w, http.StatusUnprocessableEntity, "too-costly", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.writeOutcome(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		s.logger.Error("request failed", "err", err)
		s.writeOutcome(w, http.StatusInternalServerError, "exception", "internal server error")
	}
}

func (s *Server) writeOutcome(w http.ResponseWriter, status int, code sdcforms.IssueCode, diagnostics string) {
	outcome := model.NewOperationOutcome([]sdcforms.Issue{{
		Severity:    "error",
		Code:        code,
		Diagnostics: diagnostics,
	}})
	writeJSON(w, status, outcome)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", fhirJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", fhirJSON)
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
