package reason

import (
	"regexp"
	"strings"

	"qtune/internal/domain"
)

var (
	sqlBlockRe  = regexp.MustCompile("(?is)```sql\\s*(.*?)```")
	anyBlockRe  = regexp.MustCompile("(?s)```\\s*(.*?)```")
	forbiddenRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|create|alter|truncate|attach|detach|copy|pragma|set|call|vacuum|export|import|merge|grant|revoke|install|load)\b`)
)

// ExtractSQL pulls candidate SQL out of a model answer: a ```sql fenced
// block wins, then any fenced block, then the whole text when it looks
// like a query.
func ExtractSQL(text string) (string, bool) {
	if m := sqlBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := anyBlockRe.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if looksLikeQuery(candidate) {
			return candidate, true
		}
	}
	trimmed := strings.TrimSpace(text)
	if looksLikeQuery(trimmed) {
		return trimmed, true
	}
	return "", false
}

// ValidateCandidate enforces the candidate contract: exactly one
// statement, SELECT-shaped, no mutating or session-altering verbs. The
// check is lexical and conservative; measured benchmarking remains the
// real accept signal.
func ValidateCandidate(sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return domain.ErrCandidate("candidate is empty")
	}

	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.ContainsRune(trimmed, ';') {
		return domain.ErrCandidate("candidate must be a single statement")
	}

	if !looksLikeQuery(trimmed) {
		return domain.ErrCandidate("candidate must start with SELECT or WITH")
	}

	if m := forbiddenRe.FindString(trimmed); m != "" {
		return domain.ErrCandidate("candidate contains disallowed verb %q", strings.ToUpper(m))
	}

	return nil
}

func looksLikeQuery(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH")
}

var tableRefRe = regexp.MustCompile(`(?i)(?:from|join)\s+(?:([a-zA-Z_]\w*)\.)?([a-zA-Z_]\w*)`)

// TableRefs finds FROM/JOIN relation references in a query. It misses
// quoted identifiers and derived tables; good enough to pre-seed schema
// context for the prompt.
func TableRefs(sqlText string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range tableRefRe.FindAllStringSubmatch(sqlText, -1) {
		name := m[2]
		if m[1] != "" {
			name = m[1] + "." + m[2]
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}
