package taskdoc

import "testing"

func TestParseBasicChecklist(t *testing.T) {
	text := `- [ ] 1 Add foo
- [x] 2 Add bar
  - **Files**:
    - src/bar.go
  - **Acceptance**:
    - [x] tests pass
`
	tasks, issues := Parse(text)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].Status != StatusPending || tasks[0].ID != "1" {
		t.Fatalf("task 0 mismatch: %+v", tasks[0])
	}
	if tasks[1].Status != StatusCompleted || len(tasks[1].Files) != 1 {
		t.Fatalf("task 1 mismatch: %+v", tasks[1])
	}
	if len(tasks[1].Acceptance) != 1 || tasks[1].Acceptance[0].Status != StatusCompleted {
		t.Fatalf("acceptance mismatch: %+v", tasks[1].Acceptance)
	}
}

func TestCountStatsInvariant(t *testing.T) {
	tasks, _ := Parse("- [ ] 1 a\n- [-] 2 b\n- [x] 3 c\n")
	stats := Count(tasks)
	if stats.Total != stats.Pending+stats.InProgress+stats.Completed {
		t.Fatalf("TS1 violated: %+v", stats)
	}
	if stats != (Stats{Pending: 1, InProgress: 1, Completed: 1, Total: 3}) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestDuplicateIDIsFlagged(t *testing.T) {
	_, issues := Parse("- [ ] 1 a\n- [ ] 1 b\n")
	found := false
	for _, iss := range issues {
		if iss.Kind == IssueDuplicateID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected duplicate id issue, got %v", issues)
	}
}

func TestParseSerializeParseRoundTrip(t *testing.T) {
	text := "- [x] 1 Implement repo\n  - **Files**:\n    - src/foo.go\n"
	tasks, _ := Parse(text)
	rendered := Render(tasks)
	again, _ := Parse(rendered)
	if len(again) != len(tasks) || again[0].ID != tasks[0].ID || again[0].Status != tasks[0].Status {
		t.Fatalf("round trip mismatch: %+v vs %+v", tasks, again)
	}
}

func TestEmptyDocumentYieldsZeroStats(t *testing.T) {
	tasks, issues := Parse("")
	if len(tasks) != 0 || len(issues) != 0 {
		t.Fatalf("expected no tasks/issues for empty doc, got %v / %v", tasks, issues)
	}
	stats := Count(tasks)
	if stats != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}
