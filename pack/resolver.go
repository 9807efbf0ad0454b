package pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/sdcforms"
	"github.com/gofhir/sdcforms/canonical"
	"github.com/gofhir/sdcforms/extract"
	"github.com/gofhir/sdcforms/model"
	"github.com/gofhir/sdcforms/service"
)

// externalTerminologyNamespaces lists large federated code systems that are
// routinely referenced but not stored locally. A missing CodeSystem in one
// of these namespaces produces no warning at all.
var externalTerminologyNamespaces = []string{
	"loinc.org",
	"snomed.info",
}

func isExternalTerminology(url string) bool {
	for _, ns := range externalTerminologyNamespaces {
		if strings.Contains(url, ns) {
			return true
		}
	}
	return false
}

// resolver walks the reference graph of one package operation. All state
// is invocation-local: a fresh resolver is created per operation and
// discarded with it.
type resolver struct {
	fetch  service.CanonicalResolver
	logger *log.Logger

	visited   map[string]struct{}
	resources []*model.Resource
	issues    []sdcforms.Issue
}

func newResolver(fetch service.CanonicalResolver, logger *log.Logger) *resolver {
	return &resolver{
		fetch:   fetch,
		logger:  logger,
		visited: make(map[string]struct{}),
	}
}

// resolveAll resolves the dependencies of a root Questionnaire in a fixed
// phase order: ValueSets (plus one CodeSystem hop), Libraries (plus one
// nested-Library hop), then StructureMaps. The phase order keeps the issue
// list, and with it the diagnostics bundle entry, deterministic.
//
// Every reference enters the visited set at first discovery, before any of
// its own sub-references are chased, so reference cycles terminate after
// one visit per distinct canonical identity.
func (r *resolver) resolveAll(ctx context.Context, root *model.Resource) error {
	q, err := model.ParseQuestionnaire(root.Raw)
	if err != nil {
		return fmt.Errorf("failed to read questionnaire references: %w", err)
	}

	if err := r.resolveValueSets(ctx, q); err != nil {
		return err
	}
	if err := r.resolveLibraries(ctx, q); err != nil {
		return err
	}
	if err := r.resolveStructureMaps(ctx, q); err != nil {
		return err
	}

	r.logger.Debug("dependency resolution finished",
		"resolved", len(r.resources), "issues", len(r.issues))
	return nil
}

// markDiscovered records a reference in the visited set. It reports false
// when the reference was discovered before, in which case the caller must
// not fetch or re-warn.
func (r *resolver) markDiscovered(ref string) bool {
	key := canonical.Parse(ref).Key()
	if _, seen := r.visited[key]; seen {
		return false
	}
	r.visited[key] = struct{}{}
	return true
}

func (r *resolver) resolveValueSets(ctx context.Context, q *model.Questionnaire) error {
	refs := extract.AnswerValueSets(q)
	r.logger.Debug("found answer valueset references", "count", len(refs))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.markDiscovered(ref) {
			continue
		}

		vs, err := r.fetch.ResolveCanonical(ctx, model.KindValueSet, ref)
		if err != nil {
			r.missing(err, model.KindValueSet, ref)
			r.issues = append(r.issues, sdcforms.NotFoundWarning(model.KindValueSet, ref))
			continue
		}
		r.resources = append(r.resources, vs)

		if err := r.resolveCodeSystems(ctx, vs); err != nil {
			return err
		}
	}
	return nil
}

// resolveCodeSystems chases the code systems of one resolved ValueSet.
// This is a single extra hop: resolved CodeSystems are not themselves
// scanned for further references.
func (r *resolver) resolveCodeSystems(ctx context.Context, vs *model.Resource) error {
	var parsed r4.ValueSet
	if err := json.Unmarshal(vs.Raw, &parsed); err != nil {
		// A malformed dependency never aborts the operation.
		r.logger.Warn("failed to read valueset compose", "url", vs.Identity(), "err", err)
		return nil
	}

	for _, ref := range extract.CodeSystems(&parsed) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.markDiscovered(ref) {
			continue
		}

		cs, err := r.fetch.ResolveCanonical(ctx, model.KindCodeSystem, ref)
		if err != nil {
			r.missing(err, model.KindCodeSystem, ref)
			if !isExternalTerminology(ref) {
				r.issues = append(r.issues, sdcforms.NotFoundInfo(model.KindCodeSystem, ref))
			}
			continue
		}
		r.resources = append(r.resources, cs)
	}
	return nil
}

func (r *resolver) resolveLibraries(ctx context.Context, q *model.Questionnaire) error {
	refs := extract.Libraries(q.Extension)
	r.logger.Debug("found library references", "count", len(refs))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.markDiscovered(ref) {
			continue
		}

		lib, err := r.fetch.ResolveCanonical(ctx, model.KindLibrary, ref)
		if err != nil {
			r.missing(err, model.KindLibrary, ref)
			r.issues = append(r.issues, sdcforms.NotFoundWarning(model.KindLibrary, ref))
			continue
		}
		r.resources = append(r.resources, lib)

		if err := r.resolveNestedLibraries(ctx, lib); err != nil {
			return err
		}
	}
	return nil
}

// resolveNestedLibraries chases Library references declared on a resolved
// Library. This is a single extra hop: libraries found here are not
// scanned again.
func (r *resolver) resolveNestedLibraries(ctx context.Context, lib *model.Resource) error {
	holder, err := model.ParseExtensions(lib.Raw)
	if err != nil {
		r.logger.Warn("failed to read library extensions", "url", lib.Identity(), "err", err)
		return nil
	}

	for _, ref := range extract.Libraries(holder.Extension) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.markDiscovered(ref) {
			continue
		}

		nested, err := r.fetch.ResolveCanonical(ctx, model.KindLibrary, ref)
		if err != nil {
			// Nested misses are logged but produce no diagnostics entry.
			r.missing(err, model.KindLibrary, ref)
			continue
		}
		r.resources = append(r.resources, nested)
	}
	return nil
}

func (r *resolver) resolveStructureMaps(ctx context.Context, q *model.Questionnaire) error {
	refs := extract.StructureMaps(q.Extension)
	r.logger.Debug("found structuremap references", "count", len(refs))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.markDiscovered(ref) {
			continue
		}

		sm, err := r.fetch.ResolveCanonical(ctx, model.KindStructureMap, ref)
		if err != nil {
			r.missing(err, model.KindStructureMap, ref)
			r.issues = append(r.issues, sdcforms.NotFoundInfo(model.KindStructureMap, ref))
			continue
		}
		r.resources = append(r.resources, sm)
	}
	return nil
}

// missing logs a failed lookup. Genuine absence is routine; anything else
// is a backend fault that still only downgrades to a warning, but is
// logged louder so operators can tell the two apart.
func (r *resolver) missing(err error, kind, ref string) {
	if errors.Is(err, service.ErrNotFound) {
		r.logger.Debug("referenced resource not found", "kind", kind, "url", ref)
		return
	}
	r.logger.Warn("lookup failed", "kind", kind, "url", ref, "err", err)
}
