package taskdoc

// FileExister is the narrow filesystem capability ResetUnimplemented needs.
// It must not be used to read file contents — only existence.
type FileExister interface {
	Exists(path string) bool
}

// ResetUnimplemented rewrites every completed task whose declared files do
// not exist, or exist only as mock/test-only files, back to in_progress.
// All other bytes — including unrecognized continuation content — are
// preserved. Calling it twice in a row with no intervening filesystem
// change is a no-op on the returned text (TS2).
func (v *Validator) ResetUnimplemented(text string, fs FileExister) (string, bool) {
	tasks, _ := Parse(text)
	marks := make(map[int]Status)
	for i := range tasks {
		t := &tasks[i]
		if t.Status != StatusCompleted {
			continue
		}
		if shouldReset(v, t, fs) {
			marks[t.Line] = StatusInProgress
		}
	}
	return RewriteStatuses(text, marks)
}

func shouldReset(v *Validator, t *Task, fs FileExister) bool {
	if len(t.Files) == 0 {
		return true
	}
	anyMissing := false
	for _, f := range t.Files {
		if !fs.Exists(f) {
			anyMissing = true
			break
		}
	}
	if anyMissing {
		return true
	}
	return v.allFilesMockOnly(t.Files)
}
