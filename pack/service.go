// Package pack implements the SDC $package operation: resolving the
// transitive dependencies of a Questionnaire and assembling them, together
// with the Questionnaire itself, into a single self-contained collection
// Bundle.
//
// Dependency misses are non-fatal and surface as an OperationOutcome entry
// inside a successful bundle. The operation as a whole fails only when the
// root Questionnaire cannot be obtained, a provided resource is not a
// Questionnaire, or the assembled bundle exceeds its size or entry-count
// ceiling.
package pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gofhir/sdcforms/canonical"
	"github.com/gofhir/sdcforms/model"
	"github.com/gofhir/sdcforms/service"
)

// ErrInvalidResource is returned when a caller-provided resource is not a
// Questionnaire.
var ErrInvalidResource = errors.New("resource must be of type Questionnaire")

// Service exposes the three package entry points. The backing store is an
// explicit capability: nothing here reaches for process-wide state, and an
// in-memory store substitutes cleanly in tests.
type Service struct {
	store  service.Store
	logger *log.Logger
	now    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger. By default the service is silent.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the time source used for bundle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a package service on top of a resource store.
func NewService(store service.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New(io.Discard),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PackageByID packages the Questionnaire with the given logical id.
// Returns service.ErrNotFound (wrapped) when no such Questionnaire exists.
func (s *Service) PackageByID(ctx context.Context, id string, includeDependencies bool) (*model.Bundle, error) {
	root, err := s.store.GetResource(ctx, model.KindQuestionnaire, id)
	if err != nil {
		return nil, fmt.Errorf("questionnaire %q: %w", id, err)
	}
	return s.build(ctx, root, includeDependencies)
}

// PackageByURL packages the Questionnaire with the given canonical URL.
// With a version the lookup matches url and version exactly; without one
// it selects the most recently updated active Questionnaire. Returns
// service.ErrNotFound (wrapped) when nothing matches.
func (s *Service) PackageByURL(ctx context.Context, url, version string, includeDependencies bool) (*model.Bundle, error) {
	ref := canonical.Reference{URL: url, Version: version}

	root, err := s.store.ResolveCanonical(ctx, model.KindQuestionnaire, ref.String())
	if err != nil {
		return nil, fmt.Errorf("questionnaire %q: %w", ref.String(), err)
	}
	return s.build(ctx, root, includeDependencies)
}

// PackageResource packages a caller-provided Questionnaire without storing
// it. Returns ErrInvalidResource when the payload is not a Questionnaire.
func (s *Service) PackageResource(ctx context.Context, raw json.RawMessage, includeDependencies bool) (*model.Bundle, error) {
	root, err := model.ParseResource(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResource, err)
	}
	if root.Type != model.KindQuestionnaire {
		return nil, fmt.Errorf("%w, got %s", ErrInvalidResource, root.Type)
	}
	return s.build(ctx, root, includeDependencies)
}

// build is the common tail of all three entry points.
func (s *Service) build(ctx context.Context, root *model.Resource, includeDependencies bool) (*model.Bundle, error) {
	asm := newAssembler(s.now)

	if !includeDependencies {
		return asm.assembleMinimal(root), nil
	}

	res := newResolver(s.store, s.logger)
	if err := res.resolveAll(ctx, root); err != nil {
		return nil, err
	}

	bundle, err := asm.assemble(root, res.resources, res.issues)
	if err != nil {
		return nil, err
	}

	s.logger.Info("assembled questionnaire package",
		"questionnaire", root.ID,
		"entries", len(bundle.Entry),
		"issues", len(res.issues))
	return bundle, nil
}
