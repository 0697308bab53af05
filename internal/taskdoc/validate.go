package taskdoc

import (
	"regexp"
	"strings"
)

// defaultMockOnlyPatterns is the always-active conservative fallback: a path
// is treated as mock/test-only if it matches one of these even when the
// caller configures no mock_only_path_patterns at all.
var defaultMockOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)tests?/`),
	regexp.MustCompile(`(^|/)__mocks__/`),
	regexp.MustCompile(`_test\.go$`),
}

// Validator reports structural and completion-honesty issues in a task
// document. The configured mock/test-only patterns are compiled once at
// construction and reused across calls.
type Validator struct {
	mockOnly []*regexp.Regexp
}

// NewValidator compiles the configured mock_only_path_patterns. Invalid
// patterns are a construction-time error so a bad config key fails fast
// instead of silently never matching.
func NewValidator(mockOnlyPatterns []string) (*Validator, error) {
	v := &Validator{}
	for _, p := range mockOnlyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		v.mockOnly = append(v.mockOnly, re)
	}
	return v, nil
}

func (v *Validator) isMockOnly(path string) bool {
	for _, re := range defaultMockOnlyPatterns {
		if re.MatchString(path) {
			return true
		}
	}
	for _, re := range v.mockOnly {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (v *Validator) allFilesMockOnly(files []string) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if !v.isMockOnly(f) {
			return false
		}
	}
	return true
}

// Validate re-parses text and reports, per task: missing checkbox (surfaced
// already by Parse as IssueUnparseableLine), a completed task declaring no
// Files, and a completed task whose declared files are exclusively
// mock/test-only.
func (v *Validator) Validate(text string) []Issue {
	tasks, issues := Parse(text)
	for _, t := range tasks {
		if t.Status != StatusCompleted {
			continue
		}
		if len(t.Files) == 0 {
			issues = append(issues, Issue{
				Line:     t.Line,
				Severity: SeverityError,
				Kind:     IssueMissingFiles,
				Message:  "task " + t.ID + " is completed but declares no Files",
			})
			continue
		}
		if v.allFilesMockOnly(t.Files) {
			issues = append(issues, Issue{
				Line:     t.Line,
				Severity: SeverityWarning,
				Kind:     IssueMockOnlyFiles,
				Message:  "task " + t.ID + " is completed but its declared files are all mock/test-only",
			})
		}
	}
	return issues
}

// Render writes tasks back to the document grammar, preserving any
// unrecognized indented continuation content verbatim. ResetUnimplemented
// does not use it; it rewrites status marks in place via RewriteStatuses.
func Render(tasks []Task) string {
	var b strings.Builder
	for _, t := range tasks {
		b.WriteString("- [")
		b.WriteByte(markFromStatus(t.Status))
		b.WriteString("] ")
		b.WriteString(t.ID)
		b.WriteString(" ")
		b.WriteString(t.Title)
		b.WriteString("\n")
		if len(t.Files) > 0 {
			b.WriteString("  - **Files**:\n")
			for _, f := range t.Files {
				b.WriteString("    - ")
				b.WriteString(f)
				b.WriteString("\n")
			}
		}
		if len(t.Acceptance) > 0 {
			b.WriteString("  - **Acceptance**:\n")
			for _, a := range t.Acceptance {
				b.WriteString("    - [")
				b.WriteByte(markFromStatus(a.Status))
				b.WriteString("] ")
				b.WriteString(a.Text)
				b.WriteString("\n")
			}
		}
		for _, extra := range t.extra {
			b.WriteString(extra)
			b.WriteString("\n")
		}
	}
	return b.String()
}
