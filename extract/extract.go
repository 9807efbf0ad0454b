// Package extract pulls canonical references out of FHIR resources.
//
// All functions are pure and order-preserving: they return references in
// document order and may return duplicates. Deduplication is the dependency
// resolver's job.
package extract

import (
	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/sdcforms/model"
)

// Well-known extension URLs carrying canonical references.
const (
	// ExtCQFLibrary references a computation Library (CQF common extension).
	ExtCQFLibrary = "http://hl7.org/fhir/StructureDefinition/cqf-library"

	// ExtSDCLibrary references a Library used by an SDC Questionnaire.
	ExtSDCLibrary = "http://hl7.org/fhir/uv/sdc/StructureDefinition/sdc-questionnaire-library"

	// ExtTargetStructureMap references the StructureMap a Questionnaire's
	// responses are transformed with.
	ExtTargetStructureMap = "http://hl7.org/fhir/uv/sdc/StructureDefinition/sdc-questionnaire-targetStructureMap"
)

// maxItemDepth bounds recursion into nested item trees so adversarial
// input cannot grow the stack without limit. Items nested deeper are
// ignored.
const maxItemDepth = 128

// AnswerValueSets returns the answerValueSet references of a Questionnaire
// in depth-first document order, recursing into nested items.
func AnswerValueSets(q *model.Questionnaire) []string {
	var urls []string
	for i := range q.Item {
		urls = walkItems(&q.Item[i], urls, 0)
	}
	return urls
}

func walkItems(item *model.Item, urls []string, depth int) []string {
	if depth >= maxItemDepth {
		return urls
	}
	if item.AnswerValueSet != "" {
		urls = append(urls, item.AnswerValueSet)
	}
	for i := range item.Item {
		urls = walkItems(&item.Item[i], urls, depth+1)
	}
	return urls
}

// CodeSystems returns the code system references of a ValueSet: the system
// of each compose.include entry that carries one.
func CodeSystems(vs *r4.ValueSet) []string {
	if vs == nil || vs.Compose == nil {
		return nil
	}

	var urls []string
	for i := range vs.Compose.Include {
		if system := vs.Compose.Include[i].System; system != nil && *system != "" {
			urls = append(urls, *system)
		}
	}
	return urls
}

// Libraries returns the Library references declared in an extension list
// via the cqf-library or sdc-questionnaire-library extensions. A direct
// valueCanonical is preferred over the valueReference form.
func Libraries(extensions []model.Extension) []string {
	var urls []string
	for _, ext := range extensions {
		if ext.URL != ExtCQFLibrary && ext.URL != ExtSDCLibrary {
			continue
		}
		switch {
		case ext.ValueCanonical != "":
			urls = append(urls, ext.ValueCanonical)
		case ext.ValueReference != nil && ext.ValueReference.Reference != "":
			urls = append(urls, ext.ValueReference.Reference)
		}
	}
	return urls
}

// StructureMaps returns the StructureMap references declared in an
// extension list via the sdc-questionnaire-targetStructureMap extension.
func StructureMaps(extensions []model.Extension) []string {
	var urls []string
	for _, ext := range extensions {
		if ext.URL == ExtTargetStructureMap && ext.ValueCanonical != "" {
			urls = append(urls, ext.ValueCanonical)
		}
	}
	return urls
}
