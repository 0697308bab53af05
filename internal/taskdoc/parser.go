package taskdoc

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// checkboxLine matches a top-level task line, grounded on the
// CHECKBOX_PATTERN used to drive progress counting: a dash-bracket mark,
// a dotted numeric id, then free-text title.
var checkboxLine = regexp.MustCompile(`^-\s*\[([ xX-])\]\s*(\d+(?:\.\d+)*)\.?\s+(.+)$`)

// invalidMarkLine matches a top-level checkbox whose mark is not one of the
// accepted characters.
var invalidMarkLine = regexp.MustCompile(`^-\s*\[[^ xX\-\]]\]`)

// filesHeading / acceptanceHeading mark the start of a sub-record block.
var filesHeading = regexp.MustCompile(`^\s*-\s*\*\*Files\*\*:\s*$`)
var acceptanceHeading = regexp.MustCompile(`^\s*-\s*\*\*Acceptance\*\*:\s*$`)
var filesEntry = regexp.MustCompile(`^\s*-\s+(.+)$`)
var acceptanceEntry = regexp.MustCompile(`^\s*-\s*\[([ xX-])\]\s*(.+)$`)

type blockKind int

const (
	blockNone blockKind = iota
	blockFiles
	blockAcceptance
)

// Parse recognizes checkbox task lines and their indented Files/Acceptance
// sub-records. It is a single forward pass: no backtracking, no re-reading
// of earlier lines. An unparseable numbered-task line yields an Issue rather
// than aborting the scan — parse errors are data, not faults.
func Parse(text string) ([]Task, []Issue) {
	var tasks []Task
	var issues []Issue
	var current *Task
	var block blockKind

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		if m := checkboxLine.FindStringSubmatch(raw); m != nil {
			if current != nil {
				tasks = append(tasks, *current)
			}
			id := m[2]
			task := Task{
				ID:       id,
				Segments: splitSegments(id),
				Status:   statusFromMark(m[1][0]),
				Title:    strings.TrimSpace(m[3]),
				Line:     lineNo,
			}
			current = &task
			block = blockNone
			continue
		}

		// A line that looks like a numbered item, or a top-level checkbox
		// with a mark outside [ xX-], but failed the checkbox grammar. Before
		// the first task any indentation counts; after it, only top-level
		// lines do, since indented ones belong to the current task.
		malformed := invalidMarkLine.MatchString(raw) || (strings.Contains(raw, "]") && looksLikeNumberedItem(raw))
		if malformed && (current == nil || strings.HasPrefix(raw, "-")) {
			issues = append(issues, Issue{Line: lineNo, Severity: SeverityError, Kind: IssueUnparseableLine, Message: "numbered line missing a valid checkbox mark"})
		}
		if current == nil {
			continue
		}

		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			current.extra = append(current.extra, raw)
			continue
		}

		switch {
		case filesHeading.MatchString(raw):
			block = blockFiles
			continue
		case acceptanceHeading.MatchString(raw):
			block = blockAcceptance
			continue
		}

		switch block {
		case blockFiles:
			if m := filesEntry.FindStringSubmatch(raw); m != nil {
				current.Files = append(current.Files, strings.TrimSpace(m[1]))
				continue
			}
			block = blockNone
		case blockAcceptance:
			if m := acceptanceEntry.FindStringSubmatch(raw); m != nil {
				current.Acceptance = append(current.Acceptance, AcceptanceItem{
					Status: statusFromMark(m[1][0]),
					Text:   strings.TrimSpace(m[2]),
					Line:   lineNo,
				})
				continue
			}
			block = blockNone
		}

		// Unrecognized indented content: preserved for round-trip, ignored
		// semantically.
		current.extra = append(current.extra, raw)
	}
	if current != nil {
		tasks = append(tasks, *current)
	}

	issues = append(issues, checkIDOrdering(tasks)...)
	return tasks, issues
}

func looksLikeNumberedItem(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "-") {
		return false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
	for i, r := range rest {
		if r >= '0' && r <= '9' {
			continue
		}
		return i > 0
	}
	return false
}

func splitSegments(id string) []int {
	parts := strings.Split(id, ".")
	segs := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		segs = append(segs, n)
	}
	return segs
}

func checkIDOrdering(tasks []Task) []Issue {
	var issues []Issue
	seen := make(map[string]int, len(tasks))
	var lastSegs []int
	for _, t := range tasks {
		if firstLine, ok := seen[t.ID]; ok {
			issues = append(issues, Issue{Line: t.Line, Severity: SeverityError, Kind: IssueDuplicateID, Message: "duplicate task id, first seen on line " + strconv.Itoa(firstLine)})
		} else {
			seen[t.ID] = t.Line
		}
		if t.Segments != nil && lastSegs != nil && compareSegments(t.Segments, lastSegs) < 0 {
			issues = append(issues, Issue{Line: t.Line, Severity: SeverityWarning, Kind: IssueNonMonotonicID, Message: "task id out of order"})
		}
		if t.Segments != nil {
			lastSegs = t.Segments
		}
	}
	return issues
}

func compareSegments(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] - b[i]
		}
	}
	return len(a) - len(b)
}
