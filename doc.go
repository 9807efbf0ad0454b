// Package sdcforms implements a form-management service for FHIR SDC
// Questionnaires, centered on the $package operation: assembling a
// Questionnaire together with every artifact it transitively references
// (ValueSets, CodeSystems, Libraries, StructureMaps) into a single
// self-contained collection Bundle.
//
// # Quick Start
//
//	import (
//	    "github.com/gofhir/sdcforms/client"
//	    "github.com/gofhir/sdcforms/pack"
//	)
//
//	fc := client.New("http://hapi-fhir:8080/fhir")
//	svc := pack.NewService(fc)
//
//	bundle, err := svc.PackageByID(ctx, "patient-intake", true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Unresolvable references never fail the operation: they are collected as
// warnings and surfaced as a trailing OperationOutcome entry in the bundle.
// Only a missing root Questionnaire, an invalid input resource, or a bundle
// exceeding its size or entry-count ceiling fails the whole operation.
//
// # Architecture
//
//   - extract: pure reference extraction from Questionnaire item trees,
//     ValueSet compose sections, and well-known SDC extensions
//   - client: FHIR REST client used for canonical and id lookups
//   - service: boundary interfaces so resolution is substitutable in tests
//   - pack: dependency resolver, bundle assembler, and the three package
//     entry points (by id, by canonical URL, by provided resource)
//   - localize: language localization transform for multilingual forms
//   - server: HTTP API exposing the operations
package sdcforms
