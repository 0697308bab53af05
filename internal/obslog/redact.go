package obslog

import "regexp"

// redactedKey matches ctx keys whose values must never reach a log line
// unmasked, case-insensitively, grounded on the same "never let a raw
// secret reach a shared structure" discipline a credential vault applies
// to its own in-memory map.
var redactedKey = regexp.MustCompile(`(?i)(api[_-]?key|token|authorization|password|secret)`)

const redactedPlaceholder = "[redacted]"

// redactCtx returns a shallow copy of ctx with values behind a matching key
// replaced. The input map is never mutated so callers can keep using it.
func redactCtx(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		if redactedKey.MatchString(k) {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = v
	}
	return out
}
