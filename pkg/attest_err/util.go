// pkg/attest_err/util.go

package attest_err

import (
	"errors"
	"strings"
)

// UserError marks an error as expected and user-fixable (wrong flag, missing
// provider login). These exit 0 with a warning instead of failing the CLI.
type UserError struct {
	Err error
}

func (e *UserError) Error() string {
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewExpectedError wraps err as an expected user error. Returns nil for nil.
func NewExpectedError(err error) error {
	if err == nil {
		return nil
	}
	return &UserError{Err: err}
}

// IsExpectedUserError reports whether err was marked expected.
func IsExpectedUserError(err error) bool {
	var ue *UserError
	return errors.As(err, &ue)
}

// ExtractSummary pulls the most useful lines out of noisy tool output for
// log messages. It prefers lines that look like errors, falling back to the
// last non-empty lines, and returns at most maxLines of them.
func ExtractSummary(output string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}

	lines := strings.Split(output, "\n")
	var candidates []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "fail") ||
			strings.Contains(lower, "fatal") || strings.Contains(lower, "denied") {
			candidates = append(candidates, line)
		}
	}

	if len(candidates) == 0 {
		for i := len(lines) - 1; i >= 0 && len(candidates) < maxLines; i-- {
			if line := strings.TrimSpace(lines[i]); line != "" {
				candidates = append([]string{line}, candidates...)
			}
		}
	}

	if len(candidates) > maxLines {
		candidates = candidates[:maxLines]
	}

	const maxLineLen = 512
	for i, c := range candidates {
		if len(c) > maxLineLen {
			candidates[i] = c[:maxLineLen] + "..."
		}
	}

	return strings.Join(candidates, "; ")
}
