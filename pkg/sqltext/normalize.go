// Package sqltext holds deterministic text utilities shared by the SQL
// generation services: markdown extraction, statement normalization, and
// sample-value screening. Everything here is pure and LLM-free.
package sqltext

import (
	"regexp"
	"strings"
)

var (
	// `CREATE OR REPLACE TABLE`proj.ds.t` ...` -> insert the missing space
	// after the keyword run when the model glues the backtick on.
	missingSpaceBeforeTable = regexp.MustCompile("(?i)(CREATE\\s+OR\\s+REPLACE\\s+TABLE)`")

	// Collapse doubled backticks around the table path.
	doubledBackticks = regexp.MustCompile("``+")

	// ``path` AS` with the closing backtick glued to AS.
	missingSpaceAfterTable = regexp.MustCompile("(?i)`(\\s*)(AS\\b)")

	leadingBackticks = regexp.MustCompile("^`+\\s*")

	createOrReplacePrefix = regexp.MustCompile(`(?i)^\s*CREATE\s+OR\s+REPLACE\s+TABLE\b`)
)

// Normalize applies deterministic spacing fixes that models routinely get
// wrong around the CREATE OR REPLACE TABLE header, and strips stray leading
// backticks left over from fence removal. Idempotent: Normalize(Normalize(s))
// == Normalize(s).
func Normalize(sql string) string {
	s := strings.TrimSpace(sql)
	if s == "" {
		return ""
	}
	s = leadingBackticks.ReplaceAllString(s, "")
	s = doubledBackticks.ReplaceAllString(s, "`")
	s = missingSpaceBeforeTable.ReplaceAllString(s, "$1 `")
	s = missingSpaceAfterTable.ReplaceAllString(s, "` $2")
	return strings.TrimSpace(s)
}

// sqlPrefixes are the statement keywords a generated script may open with.
var sqlPrefixes = []string{
	"CREATE OR REPLACE TABLE",
	"CREATE TABLE",
	"SELECT",
	"INSERT",
	"UPDATE",
	"DELETE",
	"WITH",
	"MERGE",
}

// LooksLikeSQL reports whether s starts with a recognized SQL statement
// keyword. It is the acceptance gate for model output: prose and apologies
// fail it.
func LooksLikeSQL(s string) bool {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return false
	}
	if createOrReplacePrefix.MatchString(s) {
		return true
	}
	for _, p := range sqlPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}
