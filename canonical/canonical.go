// Package canonical parses and normalizes FHIR canonical references.
//
// A canonical reference identifies a versionable knowledge artifact by URL,
// optionally pinned to a version with the "url|version" form (e.g.
// "http://example.org/fhir/ValueSet/colors|1.0.0").
package canonical

import "strings"

// Reference is a parsed canonical reference.
type Reference struct {
	// URL is the canonical URL without any version suffix.
	URL string

	// Version is the pinned version, empty if the reference is unversioned.
	Version string
}

// Parse splits a canonical string into its URL and version parts.
// "url|version" yields both; a bare URL yields an empty Version.
func Parse(s string) Reference {
	if idx := strings.LastIndex(s, "|"); idx != -1 {
		return Reference{URL: s[:idx], Version: s[idx+1:]}
	}
	return Reference{URL: s}
}

// Versioned reports whether the reference pins a version.
func (r Reference) Versioned() bool {
	return r.Version != ""
}

// String returns the canonical string form of the reference.
// Versioned references render as "url|version".
func (r Reference) String() string {
	if r.Version != "" {
		return r.URL + "|" + r.Version
	}
	return r.URL
}

// Key returns the identity key used for visited-set and deduplication
// checks. An unversioned reference and a versioned reference to the same
// base URL are distinct keys: no implicit version unification happens.
func (r Reference) Key() string {
	return r.String()
}

// StripVersion removes the version suffix from a canonical string.
func StripVersion(s string) string {
	if idx := strings.LastIndex(s, "|"); idx != -1 {
		return s[:idx]
	}
	return s
}
