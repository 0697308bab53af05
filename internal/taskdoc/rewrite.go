package taskdoc

import (
	"regexp"
	"strings"
)

// markOnly isolates just the checkbox mark character on a line already
// known to be a checkbox line (top-level task or nested acceptance item),
// capturing everything before and after it so a rewrite can replace the
// single mark byte without touching anything else — indentation, dash
// spacing, the id, trailing period, title text, all survive untouched.
var markOnly = regexp.MustCompile(`^(\s*-\s*\[)[ xX-](\].*)$`)

// RewriteStatuses flips the checkbox mark on the given 1-based source
// lines to the given statuses, leaving every other byte of text — headers,
// prose, blank-line preamble, other tasks' formatting, line endings —
// untouched. This is the surgical equivalent of the ground truth's
// targeted `[x]` -> `[-]` substitution: a full Parse/Render round-trip is
// never used to persist a change back to disk.
func RewriteStatuses(text string, marks map[int]Status) (string, bool) {
	if len(marks) == 0 {
		return text, false
	}
	lines := splitLinesPreserve(text)
	changed := false
	for lineNo, status := range marks {
		idx := lineNo - 1
		if idx < 0 || idx >= len(lines) {
			continue
		}
		content, term := splitTerminator(lines[idx])
		newContent, ok := setLineMark(content, markFromStatus(status))
		if !ok {
			continue
		}
		lines[idx] = newContent + term
		changed = true
	}
	if !changed {
		return text, false
	}
	return strings.Join(lines, ""), true
}

// setLineMark replaces line's checkbox mark with mark, returning ok=false
// if line is not a checkbox line or already carries that mark (so callers
// can tell a true no-op from an attempted-but-failed rewrite).
func setLineMark(line string, mark byte) (string, bool) {
	loc := markOnly.FindStringSubmatchIndex(line)
	if loc == nil {
		return line, false
	}
	markPos := loc[3] // end of group 1 == index of the mark character
	if line[markPos] == mark {
		return line, false
	}
	return line[:markPos] + string(mark) + line[loc[4]:], true
}

// splitLinesPreserve splits text into lines, keeping each line's original
// terminator (if any) attached, so joining the slice back together
// reproduces text exactly.
func splitLinesPreserve(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// splitTerminator separates a line's trailing \n or \r\n from its content.
func splitTerminator(line string) (content, term string) {
	if strings.HasSuffix(line, "\r\n") {
		return line[:len(line)-2], line[len(line)-2:]
	}
	if strings.HasSuffix(line, "\n") {
		return line[:len(line)-1], line[len(line)-1:]
	}
	return line, ""
}
