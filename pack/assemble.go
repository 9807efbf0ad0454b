package pack

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gofhir/sdcforms"
	"github.com/gofhir/sdcforms/model"
)

// Output bundle ceilings. Both are hard gates checked after assembly:
// a bundle over either limit fails the whole operation, never a truncated
// or partial bundle.
const (
	// MaxBundleEntries is the maximum number of entries in a package bundle.
	MaxBundleEntries = 100

	// MaxBundleBytes is the maximum serialized size of a package bundle.
	MaxBundleBytes = 20 * 1024 * 1024
)

// CountExceededError reports a bundle over its entry-count ceiling.
type CountExceededError struct {
	Count int
	Max   int
}

func (e *CountExceededError) Error() string {
	return fmt.Sprintf("bundle entry count %d exceeds maximum %d (over by %d)",
		e.Count, e.Max, e.Count-e.Max)
}

// SizeExceededError reports a bundle over its serialized-size ceiling.
type SizeExceededError struct {
	Size int
	Max  int
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("bundle size %d bytes exceeds maximum %d bytes (over by %d); "+
		"consider include-dependencies=false or a modular questionnaire design",
		e.Size, e.Max, e.Size-e.Max)
}

// assembler finalizes package bundles. The clock is injectable so tests
// get stable timestamps.
type assembler struct {
	now        func() time.Time
	maxEntries int
	maxBytes   int
}

func newAssembler(now func() time.Time) *assembler {
	return &assembler{
		now:        now,
		maxEntries: MaxBundleEntries,
		maxBytes:   MaxBundleBytes,
	}
}

// assemble composes the root resource and its resolved dependencies into a
// collection bundle: root first, dependencies in discovery order, then a
// single OperationOutcome entry when any issues were collected. The entry
// count and serialized size are checked against the ceilings before the
// bundle is returned.
func (a *assembler) assemble(root *model.Resource, deps []*model.Resource, issues []sdcforms.Issue) (*model.Bundle, error) {
	entries := make([]model.BundleEntry, 0, len(deps)+2)
	entries = append(entries, model.BundleEntry{Resource: root.Raw})
	for _, dep := range deps {
		entries = append(entries, model.BundleEntry{Resource: dep.Raw})
	}

	if len(issues) > 0 {
		outcome, err := json.Marshal(model.NewOperationOutcome(issues))
		if err != nil {
			return nil, fmt.Errorf("failed to encode diagnostics: %w", err)
		}
		entries = append(entries, model.BundleEntry{Resource: outcome})
	}

	bundle := a.newBundle(entries)

	if len(entries) > a.maxEntries {
		return nil, &CountExceededError{Count: len(entries), Max: a.maxEntries}
	}

	serialized, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}
	if len(serialized) > a.maxBytes {
		return nil, &SizeExceededError{Size: len(serialized), Max: a.maxBytes}
	}

	return bundle, nil
}

// assembleMinimal builds a bundle holding only the root resource, used
// when dependency inclusion is disabled.
func (a *assembler) assembleMinimal(root *model.Resource) *model.Bundle {
	return a.newBundle([]model.BundleEntry{{Resource: root.Raw}})
}

func (a *assembler) newBundle(entries []model.BundleEntry) *model.Bundle {
	timestamp := a.now().UTC().Format(time.RFC3339)

	return &model.Bundle{
		ResourceType: model.KindBundle,
		ID:           "package-" + uuid.NewString(),
		Type:         "collection",
		Timestamp:    timestamp,
		Meta: &model.Meta{
			LastUpdated: timestamp,
			Tag: []model.Coding{{
				System:  model.BundleTagSystem,
				Code:    "questionnaire-package",
				Display: "Questionnaire Package",
			}},
		},
		Entry: entries,
	}
}
