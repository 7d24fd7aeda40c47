package merge

import "strings"

// legacyPrefix marks project ids synthesized from report paths, keeping
// them recognizably distinct from backend-assigned tokens.
const legacyPrefix = "legacy_"

// SyntheticID derives a stable project id from a report artifact path.
// The same path always yields the same id, so re-ingesting an artifact is
// idempotent. The sanitizer is injective enough for its input space
// (human-chosen file paths); true collisions are accepted as a known
// limitation rather than cryptographically prevented.
func SyntheticID(path string) string {
	var b strings.Builder
	b.Grow(len(legacyPrefix) + len(path))
	b.WriteString(legacyPrefix)

	lastUnderscore := true // swallow leading separators
	for _, r := range strings.ToLower(path) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.TrimRight(b.String(), "_")
}

// IsSyntheticID reports whether an id was derived from a report path.
func IsSyntheticID(id string) bool {
	return strings.HasPrefix(id, legacyPrefix)
}
