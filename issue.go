package sdcforms

import "fmt"

// IssueSeverity is the severity of a packaging issue.
// Maps to OperationOutcome.issue.severity in FHIR.
type IssueSeverity string

const (
	// SeverityWarning indicates a referenced artifact that should have been
	// resolvable was not found.
	SeverityWarning IssueSeverity = "warning"
	// SeverityInformation indicates an expected or low-impact gap, such as a
	// missing StructureMap or a CodeSystem that is not locally stored.
	SeverityInformation IssueSeverity = "information"
)

// IssueCode is the machine-readable code of a packaging issue.
// Maps to OperationOutcome.issue.code in FHIR.
type IssueCode string

const (
	// CodeNotFound indicates a referenced resource could not be resolved.
	CodeNotFound IssueCode = "not-found"
)

// Issue is a single non-fatal diagnostic produced while resolving the
// dependencies of a Questionnaire. Issues never abort a package operation;
// they are collected and emitted as an OperationOutcome bundle entry.
type Issue struct {
	Severity    IssueSeverity `json:"severity"`
	Code        IssueCode     `json:"code"`
	Diagnostics string        `json:"diagnostics,omitempty"`
}

// NotFoundWarning builds a warning-severity issue for a missing artifact.
func NotFoundWarning(kind, url string) Issue {
	return Issue{
		Severity:    SeverityWarning,
		Code:        CodeNotFound,
		Diagnostics: fmt.Sprintf("Referenced %s not found: %s", kind, url),
	}
}

// NotFoundInfo builds an information-severity issue for a missing artifact.
func NotFoundInfo(kind, url string) Issue {
	return Issue{
		Severity:    SeverityInformation,
		Code:        CodeNotFound,
		Diagnostics: fmt.Sprintf("Referenced %s not found: %s", kind, url),
	}
}

// IsWarning reports whether the issue has warning severity.
func (i Issue) IsWarning() bool {
	return i.Severity == SeverityWarning
}

// String returns a human-readable representation of the issue.
func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Code, i.Diagnostics)
}
