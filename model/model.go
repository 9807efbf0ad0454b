// Package model defines the resource views and output containers used by
// the packaging service.
//
// Fetched resources are kept as raw JSON so they round-trip into bundle
// entries byte-for-byte, with no field loss for content the service does
// not understand. A Resource pairs the raw payload with the parsed identity
// fields (resourceType, id, url, version); dedicated view types expose just
// the elements reference extraction reads.
package model

import (
	"encoding/json"
	"fmt"
)

// FHIR resource kinds handled by the service.
const (
	KindQuestionnaire    = "Questionnaire"
	KindValueSet         = "ValueSet"
	KindCodeSystem       = "CodeSystem"
	KindLibrary          = "Library"
	KindStructureMap     = "StructureMap"
	KindBundle           = "Bundle"
	KindOperationOutcome = "OperationOutcome"
)

// Resource is a fetched FHIR resource: the untouched raw payload plus the
// identity fields parsed out of it.
type Resource struct {
	// Type is the resourceType discriminant.
	Type string

	// ID is the logical id, empty if absent.
	ID string

	// URL is the canonical URL, empty if absent.
	URL string

	// Version is the business version, empty if absent.
	Version string

	// Raw is the complete resource payload as received.
	Raw json.RawMessage
}

// ParseResource parses the identity fields out of a raw resource payload.
// It fails only if the payload is not a JSON object or carries no
// resourceType discriminant.
func ParseResource(raw json.RawMessage) (*Resource, error) {
	var head struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
		URL          string `json:"url"`
		Version      string `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("failed to parse resource: %w", err)
	}
	if head.ResourceType == "" {
		return nil, fmt.Errorf("resource has no resourceType")
	}

	return &Resource{
		Type:    head.ResourceType,
		ID:      head.ID,
		URL:     head.URL,
		Version: head.Version,
		Raw:     raw,
	}, nil
}

// Identity returns the canonical identity of the resource: "url" or
// "url|version" when a business version is present. Empty if the resource
// has no canonical URL.
func (r *Resource) Identity() string {
	if r.URL == "" {
		return ""
	}
	if r.Version != "" {
		return r.URL + "|" + r.Version
	}
	return r.URL
}

// Extension is a FHIR extension entry as read by reference extraction:
// the identifying URL plus the two value forms canonical references use.
type Extension struct {
	URL            string     `json:"url"`
	ValueCanonical string     `json:"valueCanonical,omitempty"`
	ValueReference *Reference `json:"valueReference,omitempty"`
}

// Reference is a FHIR Reference datatype, reduced to the literal reference.
type Reference struct {
	Reference string `json:"reference,omitempty"`
}

// Item is a Questionnaire item node. Items nest recursively and may bind
// their permitted answers to a ValueSet.
type Item struct {
	LinkID         string `json:"linkId,omitempty"`
	AnswerValueSet string `json:"answerValueSet,omitempty"`
	Item           []Item `json:"item,omitempty"`
}

// Questionnaire is the view of a Questionnaire used by reference
// extraction: its extension list and nested item tree.
type Questionnaire struct {
	Extension []Extension `json:"extension,omitempty"`
	Item      []Item      `json:"item,omitempty"`
}

// ParseQuestionnaire parses the extraction view out of a raw Questionnaire.
func ParseQuestionnaire(raw json.RawMessage) (*Questionnaire, error) {
	var q Questionnaire
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("failed to parse questionnaire: %w", err)
	}
	return &q, nil
}

// ExtensionHolder is the view of any resource's top-level extension list,
// used for Library reference extraction on resolved Libraries.
type ExtensionHolder struct {
	Extension []Extension `json:"extension,omitempty"`
}

// ParseExtensions parses the top-level extension list of a raw resource.
func ParseExtensions(raw json.RawMessage) (*ExtensionHolder, error) {
	var h ExtensionHolder
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("failed to parse extensions: %w", err)
	}
	return &h, nil
}
