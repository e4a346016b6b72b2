// pkg/attest_err/classification.go
//
// Error classification for the installer and orchestration subsystem.
// Categories map one-to-one onto the failure modes the orchestrator reports
// to callers, so a failed step can always be rendered without a type switch
// at every call site.

package attest_err

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies errors raised by attest operations.
type Category int

const (
	// CategorySystem - OS/filesystem issues
	CategorySystem Category = iota
	// CategoryUnsupportedPlatform - host architecture outside the allow-list
	CategoryUnsupportedPlatform
	// CategoryDownload - network failure, 404, or undersized download
	CategoryDownload
	// CategoryExtraction - archive could not be unpacked
	CategoryExtraction
	// CategoryBinaryNotFound - binary missing after all probe locations
	CategoryBinaryNotFound
	// CategoryServiceNotReady - readiness poll budget exhausted
	CategoryServiceNotReady
	// CategoryTimeout - a child process exceeded its hard timeout
	CategoryTimeout
	// CategoryPluginCheck - plugin listing could not be obtained
	CategoryPluginCheck
	// CategoryModNotFound - mod missing from the workspace mods tree
	CategoryModNotFound
	// CategoryBenchmark - benchmark run produced no usable output
	CategoryBenchmark
	// CategoryConfigWrite - connection config could not be written
	CategoryConfigWrite
)

// ClassifiedError wraps an error with its category and optional remediation.
type ClassifiedError struct {
	Category    Category
	Message     string
	Cause       error
	Remediation []string
}

func (e *ClassifiedError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(fmt.Sprintf("\n\nCause: %v", e.Cause))
	}

	if len(e.Remediation) > 0 {
		sb.WriteString("\n\nHow to fix:")
		for i, step := range e.Remediation {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}

	return sb.String()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// New creates a classified error with a formatted message.
func New(category Category, format string, args ...interface{}) error {
	return &ClassifiedError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a category to an existing error.
func Wrap(category Category, cause error, format string, args ...interface{}) error {
	return &ClassifiedError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Cause:    cause,
	}
}

// CategoryOf extracts the category from an error chain, CategorySystem if
// none is attached.
func CategoryOf(err error) Category {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}
	return CategorySystem
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category Category) bool {
	var classified *ClassifiedError
	return errors.As(err, &classified) && classified.Category == category
}

// IsTimeout reports whether err is a hard-timeout failure, distinct from a
// generic or connectivity failure.
func IsTimeout(err error) bool {
	return IsCategory(err, CategoryTimeout)
}
