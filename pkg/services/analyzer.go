package services

import (
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"
)

// DefaultCriticalFields are the destination fields whose defaulting most hurts
// search quality, checked when the caller does not supply its own list.
// Nested fields use dotted paths.
var DefaultCriticalFields = []string{
	"id",
	"name",
	"title",
	"description",
	"images",
	"categories",
	"brands",
	"priceInfo.price",
	"priceInfo.currencyCode",
}

// defaultLiterals are the type-correct defaults the Generator is instructed
// to emit for unmapped fields.
var defaultLiterals = []string{"null", "0", "false", `[]`, `''`, `""`, "{}"}

// conceptPatterns map critical-field concepts to source-field name fragments.
var conceptPatterns = map[string][]*regexp.Regexp{
	"id":          compilePatterns(`id$`, `ident`, `key`, `code`, `sku`, `product.?id`, `item.?id`, `uuid`),
	"name":        compilePatterns(`name$`, `title`, `label`, `product.?name`, `item.?name`, `heading`),
	"description": compilePatterns(`desc`, `detail`, `summary`, `text`, `abstract`, `notes`, `comment`),
	"price":       compilePatterns(`price`, `cost`, `amount`, `value`, `charge`, `fee`, `rate`),
	"image":       compilePatterns(`image`, `img`, `picture`, `photo`, `thumb`, `url`, `graphic`, `icon`),
	"category":    compilePatterns(`categor`, `group`, `type`, `class`, `department`, `section`),
	"brand":       compilePatterns(`brand`, `manufacturer`, `vendor`, `make`, `company`, `label`),
	"currency":    compilePatterns(`currency`, `ccy`, `curr.?code`),
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// FieldAnalyzer inspects generated SQL and source schemas with name-based
// heuristics. It is deliberately approximate: false positives cost one extra
// enhancement pass, false negatives leave a default in place.
type FieldAnalyzer struct {
	logger *zap.Logger
}

func NewFieldAnalyzer(logger *zap.Logger) *FieldAnalyzer {
	return &FieldAnalyzer{logger: logger.Named("analyzer")}
}

func literalAlternation() string {
	lits := make([]string, len(defaultLiterals))
	for i, l := range defaultLiterals {
		lits[i] = regexp.QuoteMeta(l)
	}
	return "(?:" + strings.Join(lits, "|") + ")"
}

// defaultedFlatPattern matches "<default-literal> as <field>" for a top-level
// field. The literal must not be preceded by an identifier character, so
// "source.name AS name" and "10 AS price" never match.
func defaultedFlatPattern(field string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?i)(?:^|[\s,(])` + literalAlternation() + `\s+as\s+` + "`?" + regexp.QuoteMeta(field) + "(?:`|\\b)")
}

// defaultedStructPattern matches "struct( ... <default-literal> as <child>"
// for a nested field. Containment inside any STRUCT is enough; mapping the
// parent path precisely would need a real SQL parser.
func defaultedStructPattern(child string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?i)struct\s*\(\s*(?:[^)]*?[\s,(])?` + literalAlternation() + `\s+as\s+` + "`?" + regexp.QuoteMeta(child) + "(?:`|\\b)")
}

// IdentifyDefaultedFields reports which critical fields appear to carry a
// type-correct default rather than a source mapping in sql. criticalFields
// may be nil to use DefaultCriticalFields.
func (a *FieldAnalyzer) IdentifyDefaultedFields(sql string, criticalFields []string) []string {
	if sql == "" {
		a.logger.Warn("sql is empty, cannot identify defaulted fields")
		return nil
	}
	if criticalFields == nil {
		criticalFields = DefaultCriticalFields
	}

	var defaulted []string
	seen := make(map[string]bool)
	for _, field := range criticalFields {
		if seen[field] {
			continue
		}
		var hit bool
		if _, child, isNested := strings.Cut(field, "."); isNested {
			hit = defaultedStructPattern(child).MatchString(sql)
		} else {
			hit = defaultedFlatPattern(field).MatchString(sql)
		}
		if hit {
			defaulted = append(defaulted, field)
			seen[field] = true
		}
	}

	if len(defaulted) > 0 {
		a.logger.Info("identified defaulted critical fields", zap.Strings("fields", defaulted))
	}
	return defaulted
}

// AnalyzeSourceFields groups source fields under the critical-field concepts
// their names suggest.
func (a *FieldAnalyzer) AnalyzeSourceFields(sourceFields []string) map[string][]string {
	candidates := make(map[string][]string)
	for _, sourceField := range sourceFields {
		for concept, patterns := range conceptPatterns {
			for _, p := range patterns {
				if p.MatchString(sourceField) {
					if !contains(candidates[concept], sourceField) {
						candidates[concept] = append(candidates[concept], sourceField)
					}
					break
				}
			}
		}
	}
	return candidates
}

// SelectBestFieldMatches picks a source field for each destination field:
// exact case-insensitive name first, then singular/plural variants, then
// concept candidates (preferring source fields not already claimed).
func (a *FieldAnalyzer) SelectBestFieldMatches(sourceFields, destinationFields []string) map[string]string {
	matches := make(map[string]string)
	byLower := make(map[string]string, len(sourceFields))
	for _, f := range sourceFields {
		byLower[strings.ToLower(f)] = f
	}

	var unmatched []string
	for _, dest := range destinationFields {
		key := strings.ToLower(dest)
		if src, ok := byLower[key]; ok {
			matches[dest] = src
			continue
		}
		// singular/plural variants: "brands" matching "brand" and vice versa
		if src, ok := byLower[inflection.Singular(key)]; ok {
			matches[dest] = src
			continue
		}
		if src, ok := byLower[inflection.Plural(key)]; ok {
			matches[dest] = src
			continue
		}
		unmatched = append(unmatched, dest)
	}

	if len(unmatched) == 0 {
		return matches
	}

	candidates := a.AnalyzeSourceFields(sourceFields)
	claimed := make(map[string]bool, len(matches))
	for _, src := range matches {
		claimed[src] = true
	}

	for _, dest := range unmatched {
		concept := strings.ToLower(dest)
		if _, child, isNested := strings.Cut(concept, "."); isNested {
			concept = child
		}
		concept = inflection.Singular(concept)

		pool := candidates[concept]
		if len(pool) == 0 {
			continue
		}
		chosen := pool[0]
		for _, c := range pool {
			if !claimed[c] {
				chosen = c
				break
			}
		}
		matches[dest] = chosen
		claimed[chosen] = true
	}

	if len(matches) > 0 {
		a.logger.Debug("selected field matches", zap.Any("matches", matches))
	}
	return matches
}

func contains(ss []string, s string) bool {
	for _, e := range ss {
		if e == s {
			return true
		}
	}
	return false
}
