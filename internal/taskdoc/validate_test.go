package taskdoc

import "testing"

type fakeFS map[string]bool

func (f fakeFS) Exists(path string) bool { return f[path] }

func TestValidateFlagsCompletedWithoutFiles(t *testing.T) {
	v, err := NewValidator(nil)
	if err != nil {
		t.Fatal(err)
	}
	issues := v.Validate("- [x] 2 Implement repo\n")
	if len(issues) != 1 || issues[0].Kind != IssueMissingFiles {
		t.Fatalf("expected missing files issue, got %v", issues)
	}
}

func TestValidateFlagsMockOnlyFiles(t *testing.T) {
	v, err := NewValidator(nil)
	if err != nil {
		t.Fatal(err)
	}
	text := "- [x] 2 Implement repo\n  - **Files**:\n    - tests/foo_test.go\n"
	issues := v.Validate(text)
	if len(issues) != 1 || issues[0].Kind != IssueMockOnlyFiles {
		t.Fatalf("expected mock-only issue, got %v", issues)
	}
}

func TestResetUnimplementedRewritesMissingFiles(t *testing.T) {
	v, _ := NewValidator(nil)
	text := "- [x] 2 Implement repo\n  - **Files**:\n    - src/foo.ts\n"
	out, changed := v.ResetUnimplemented(text, fakeFS{})
	if !changed {
		t.Fatal("expected a rewrite")
	}
	tasks, _ := Parse(out)
	if tasks[0].Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %v", tasks[0].Status)
	}
}

func TestResetUnimplementedIsIdempotent(t *testing.T) {
	v, _ := NewValidator(nil)
	text := "- [x] 2 Implement repo\n  - **Files**:\n    - src/foo.ts\n"
	fs := fakeFS{}
	once, _ := v.ResetUnimplemented(text, fs)
	twice, changed := v.ResetUnimplemented(once, fs)
	if changed {
		t.Fatalf("expected idempotent no-op on second pass, got change: %q", twice)
	}
	if once != twice {
		t.Fatalf("reset output not stable: %q vs %q", once, twice)
	}
}

func TestResetUnimplementedKeepsExistingFiles(t *testing.T) {
	v, _ := NewValidator(nil)
	text := "- [x] 2 Implement repo\n  - **Files**:\n    - src/foo.go\n"
	fs := fakeFS{"src/foo.go": true}
	out, changed := v.ResetUnimplemented(text, fs)
	if changed {
		t.Fatalf("did not expect a rewrite, got %q", out)
	}
}

func TestResetUnimplementedPreservesUnrelatedBytes(t *testing.T) {
	v, _ := NewValidator(nil)
	text := "# Tasks\n\nSome preamble prose.\n\n" +
		"- [x] 1. Implement repo.\n  - **Files**:\n    - src/foo.ts\n" +
		"- [ ] 2 Untouched task\n  - **Files**:\n    - src/bar.go\n"
	out, changed := v.ResetUnimplemented(text, fakeFS{})
	if !changed {
		t.Fatal("expected a rewrite")
	}
	want := "# Tasks\n\nSome preamble prose.\n\n" +
		"- [-] 1. Implement repo.\n  - **Files**:\n    - src/foo.ts\n" +
		"- [ ] 2 Untouched task\n  - **Files**:\n    - src/bar.go\n"
	if out != want {
		t.Fatalf("expected only task 1's mark flipped, preamble and other bytes preserved:\ngot:  %q\nwant: %q", out, want)
	}
}
