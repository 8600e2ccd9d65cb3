// Package querysafety decides whether a client-supplied SQL statement may run against the recorder database.
//
// The classifier is a bounded heuristic, not a SQL parser. Keyword matching works on word tokens
// and table extraction only looks at the identifier that directly follows FROM, INTO or UPDATE.
// Joins, subqueries, CTE names and aliases are not resolved, so it can over- and under-match.
//
// Known limitations of table extraction:
//   - SQL comments are replaced by a space first, so "FROM/**/t" still yields t, but comment
//     markers inside string literals are stripped too.
//   - Only the first identifier after the keyword is read. "FROM a, b" yields a alone, and
//     a parenthesised source such as "FROM (SELECT ...)" is read from its inner FROM.
//   - Quoted identifiers are cut at the first non-word character, so "my table" yields my.
package querysafety

import (
	"regexp"
	"strings"

	"github.com/blogem/ha-gateway/models"
)

const (
	ReasonReadOnly       = "read-only statement"
	ReasonReadOnlyPolicy = "only read-only statements are permitted unless explicitly enabled"
	ReasonPassed         = "passed safety checks"
)

// DeniedKeywords are schema and maintenance operations that are never run, even with AllowAllQueries
var DeniedKeywords = []string{"DROP", "ALTER", "CREATE", "TRUNCATE", "VACUUM", "REINDEX", "ATTACH", "DETACH"}

var (
	wordPattern = regexp.MustCompile(`[A-Z_][A-Z0-9_]*`)

	// Block and line comments, blanked before table extraction
	commentPattern = regexp.MustCompile(`(?s)/\*.*?\*/|--[^\n]*`)

	// Best-effort table extraction: the identifier right after FROM, INTO or UPDATE,
	// optionally quoted and optionally schema-qualified.
	tablePattern = regexp.MustCompile("(?i)\\b(?:FROM|INTO|UPDATE)\\s+[\"`\\[]?([A-Za-z_][A-Za-z0-9_]*(?:\\.[A-Za-z_][A-Za-z0-9_]*)?)")
)

// Policy controls which statements beyond plain SELECTs are accepted
type Policy struct {
	AllowAllQueries bool
	// AllowedTables restricts mutating statements to these tables. Empty means unrestricted.
	AllowedTables []string
}

// IsReadOnly reports whether the statement starts with SELECT, ignoring case and leading whitespace
func IsReadOnly(sql string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT")
}

// IsMutation reports whether the statement starts with INSERT, UPDATE or DELETE
func IsMutation(sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	return strings.HasPrefix(upper, "INSERT") ||
		strings.HasPrefix(upper, "UPDATE") ||
		strings.HasPrefix(upper, "DELETE")
}

// Classify evaluates the rules in order; the first matching rule decides
func Classify(sql string, policy Policy) models.SafetyVerdict {
	upper := strings.ToUpper(strings.TrimSpace(sql))

	if strings.HasPrefix(upper, "SELECT") {
		return models.SafetyVerdict{Allowed: true, Reason: ReasonReadOnly}
	}

	if !policy.AllowAllQueries {
		return models.SafetyVerdict{Allowed: false, Reason: ReasonReadOnlyPolicy}
	}

	if keyword, ok := deniedKeyword(upper); ok {
		return models.SafetyVerdict{
			Allowed: false,
			Reason:  keyword + " operations are not allowed for safety",
		}
	}

	tables := ExtractTables(sql)
	if len(policy.AllowedTables) > 0 {
		allowed := make(map[string]struct{}, len(policy.AllowedTables))
		for _, t := range policy.AllowedTables {
			allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}

		// Every extracted table must be allowed, not just one of them
		for _, table := range tables {
			if _, ok := allowed[strings.ToLower(table)]; !ok {
				return models.SafetyVerdict{
					Allowed: false,
					Reason:  "table " + table + " is not in allowed_tables list",
					Tables:  tables,
				}
			}
		}
	}

	return models.SafetyVerdict{Allowed: true, Reason: ReasonPassed, Tables: tables}
}

// deniedKeyword returns the first denylisted keyword appearing as a whole word
func deniedKeyword(upper string) (string, bool) {
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(upper, -1) {
		words[w] = struct{}{}
	}
	for _, keyword := range DeniedKeywords {
		if _, ok := words[keyword]; ok {
			return keyword, true
		}
	}
	return "", false
}

// ExtractTables returns the distinct candidate table names in order of appearance.
// Schema-qualified names are reduced to the table part.
func ExtractTables(sql string) []string {
	sql = commentPattern.ReplaceAllString(sql, " ")
	matches := tablePattern.FindAllStringSubmatch(sql, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
			name = name[idx+1:]
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}
