package model

import (
	"encoding/json"

	"github.com/gofhir/sdcforms"
)

// BundleTagSystem identifies the provenance tag attached to package bundles.
const BundleTagSystem = "http://hl7.org/fhir/uv/sdc/CodeSystem/bundle-tag"

// Coding is a FHIR Coding, as used in bundle provenance tags.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// Meta is the resource metadata carried by a package bundle.
type Meta struct {
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Tag         []Coding `json:"tag,omitempty"`
}

// BundleEntry is a single entry in a package bundle. The resource payload
// is carried raw so stored content round-trips unchanged.
type BundleEntry struct {
	Resource json.RawMessage `json:"resource"`
}

// Bundle is the output container of a package operation: a collection
// bundle whose first entry is the root Questionnaire, followed by resolved
// dependencies in discovery order, optionally terminated by an
// OperationOutcome entry summarizing unresolved references.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Type         string        `json:"type"`
	Timestamp    string        `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// OperationOutcome is the diagnostics resource appended to a bundle when
// dependency resolution produced warnings.
type OperationOutcome struct {
	ResourceType string          `json:"resourceType"`
	Issue        []sdcforms.Issue `json:"issue"`
}

// NewOperationOutcome builds an OperationOutcome from collected issues.
func NewOperationOutcome(issues []sdcforms.Issue) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: KindOperationOutcome,
		Issue:        issues,
	}
}
