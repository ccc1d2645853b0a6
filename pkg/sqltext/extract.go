package sqltext

import (
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:sql|googlesql|SQL)?\\s*\\n?(.*?)```")

// ExtractFromMarkdown pulls a SQL script out of a model response. Fenced
// blocks win (```sql, ```googlesql, or bare fences); otherwise the raw text
// is considered. The result is normalized and must pass LooksLikeSQL or the
// empty string is returned.
func ExtractFromMarkdown(text string) string {
	candidate := ""
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	} else {
		candidate = text
	}
	candidate = Normalize(candidate)
	if !LooksLikeSQL(candidate) {
		return ""
	}
	return candidate
}

// FirstStatement trims everything before the first recognized SQL keyword.
// Used as a last-ditch extractor when a response prefixes the script with
// commentary outside any fence.
func FirstStatement(text string) string {
	upper := strings.ToUpper(text)
	best := -1
	for _, p := range sqlPrefixes {
		if i := strings.Index(upper, p); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return Normalize(text[best:])
}
