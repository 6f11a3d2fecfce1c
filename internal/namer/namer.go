// Package namer derives compact, semantic-preserving names for MCP tools
// from entity set, function and service identifiers.
package namer

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Abbreviations for common business terms, applied case-insensitively but
// emitted with fixed casing.
var domainKeywords = map[string]string{
	"SCREENING":      "Scrn",
	"ADDRESS":        "Addr",
	"INVESTIGATION":  "Inv",
	"BUSINESS":       "Biz",
	"CUSTOMER":       "Cust",
	"PRODUCT":        "Prod",
	"SERVICE":        "Svc",
	"MANAGEMENT":     "Mgmt",
	"INFORMATION":    "Info",
	"CONFIGURATION":  "Conf",
	"ADMINISTRATION": "Admin",
	"TRANSACTION":    "Txn",
	"DOCUMENT":       "Doc",
	"FINANCIAL":      "Fin",
	"ACCOUNTING":     "Acct",
	"ORGANIZATION":   "Org",
	"RELATIONSHIP":   "Rel",
	"COMMUNICATION":  "Comm",
	"ANALYTICS":      "Anly",
	"PURCHASE":       "Purch",
	"MATERIAL":       "Matl",
	"INVENTORY":      "Inv",
	"WAREHOUSE":      "Wh",
	"DISTRIBUTION":   "Dist",
	"MANUFACTURING":  "Mfg",
}

// Low-value words dropped during semantic filtering.
var genericSuffixes = map[string]bool{
	"Type": true, "Info": true, "Data": true, "Set": true,
	"Collection": true, "Entity": true, "Object": true, "Item": true,
	"Record": true, "Entry": true, "View": true, "Model": true,
	"Base": true, "Core": true, "Root": true, "Node": true, "List": true,
}

var commonPrefixes = map[string]bool{
	"Business": true, "System": true, "Object": true, "Master": true,
	"Standard": true, "Generic": true, "Common": true, "Basic": true,
	"General": true, "Default": true,
}

// Organizational prefixes skipped when picking a service postfix token.
var servicePrefixNoise = map[string]bool{
	"BPCM": true, "CV": true, "ASH": true, "FRA": true, "IV": true,
	"C": true, "I": true, "E": true, "Z": true,
	"BUSINESS": true, "SYSTEM": true,
}

var tokenSeparators = regexp.MustCompile(`[_\-.\s:]+`)

// Shortener compresses identifiers through staged reduction: tokenization,
// camel-case decomposition, semantic filtering, keyword abbreviation, then
// vowel elision and truncation as last resorts.
type Shortener struct {
	// TargetLength is the default budget for ShortenEntityName.
	TargetLength int
}

// NewShortener returns a shortener with the given default budget; aggressive
// mode uses a tighter budget.
func NewShortener(aggressive bool) *Shortener {
	target := 20
	if aggressive {
		target = 12
	}
	return &Shortener{TargetLength: target}
}

// ShortenEntityName compresses an entity or function name to at most target
// characters (the shortener default when target is 0). Names already within
// budget come back unchanged.
func (s *Shortener) ShortenEntityName(name string, target int) string {
	if name == "" {
		return name
	}
	if target <= 0 {
		target = s.TargetLength
	}
	if len(name) <= target {
		return name
	}

	tokens := tokenize(name)
	longest := longestMeaningfulToken(tokens)
	if longest != "" && len(longest) <= target {
		return longest
	}

	var words []string
	if longest != "" {
		words = decomposeCamelCase(longest)
	} else {
		for _, tok := range tokens {
			words = append(words, decomposeCamelCase(tok)...)
		}
	}
	words = filterGenericWords(words)

	result := reduceWords(words, target)
	if len(result) > target {
		result = compressWord(result, target)
	}
	return result
}

// ShortenServiceName produces a short lowercase fragment (at most maxLength
// characters) suitable for a tool name postfix.
func (s *Shortener) ShortenServiceName(serviceName string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 4
	}

	cleaned := regexp.MustCompile(`(?i)_SRV$`).ReplaceAllString(serviceName, "")
	tokens := tokenize(cleaned)

	for _, tok := range tokens {
		if abbrev, ok := domainKeywords[strings.ToUpper(tok)]; ok {
			return strings.ToLower(truncate(abbrev, maxLength))
		}
	}

	var meaningful []string
	for _, tok := range tokens {
		if !servicePrefixNoise[strings.ToUpper(tok)] {
			meaningful = append(meaningful, tok)
		}
	}
	if best := longestToken(meaningful); best != "" {
		return strings.ToLower(truncate(best, maxLength))
	}
	if best := longestToken(tokens); best != "" {
		return strings.ToLower(truncate(best, maxLength))
	}
	return strings.ToLower(truncate(serviceName, maxLength))
}

// ShouldAutoShrink reports whether a full tool name exceeds the shrink
// threshold.
func (s *Shortener) ShouldAutoShrink(fullName string, threshold int) bool {
	if threshold <= 0 {
		threshold = 60
	}
	return len(fullName) > threshold
}

func tokenize(name string) []string {
	var tokens []string
	for _, tok := range tokenSeparators.Split(name, -1) {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func longestMeaningfulToken(tokens []string) string {
	best := ""
	for _, tok := range tokens {
		if len(tok) > 3 && !isDigits(tok) && len(tok) > len(best) {
			best = tok
		}
	}
	return best
}

func longestToken(tokens []string) string {
	best := ""
	for _, tok := range tokens {
		if len(tok) > len(best) {
			best = tok
		}
	}
	return best
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// decomposeCamelCase splits PascalCase/camelCase into words, keeping runs of
// capitals together ("XMLParser" -> ["XML", "Parser"]).
func decomposeCamelCase(word string) []string {
	var parts []string
	runes := []rune(word)
	var current []rune

	for i, r := range runes {
		if i == 0 {
			current = append(current, r)
			continue
		}
		if unicode.IsUpper(r) && len(current) > 0 {
			prevLower := unicode.IsLower(current[len(current)-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				parts = append(parts, string(current))
				current = []rune{r}
				continue
			}
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}

func filterGenericWords(words []string) []string {
	var filtered []string
	for _, w := range words {
		if genericSuffixes[w] || commonPrefixes[w] {
			continue
		}
		filtered = append(filtered, w)
	}
	if len(filtered) == 0 && len(words) > 0 {
		filtered = []string{words[0]}
	}
	return filtered
}

func reduceWords(words []string, target int) string {
	if len(words) == 0 {
		return ""
	}

	full := strings.Join(words, "")
	if len(full) <= target {
		return full
	}

	// Abbreviate known keywords.
	abbreviated := make([]string, len(words))
	for i, w := range words {
		if abbrev, ok := domainKeywords[strings.ToUpper(w)]; ok {
			abbreviated[i] = abbrev
		} else {
			abbreviated[i] = w
		}
	}
	if joined := strings.Join(abbreviated, ""); len(joined) <= target {
		return joined
	}

	// Keep the longest leading run of words that fits.
	for n := len(words); n > 0; n-- {
		if combined := strings.Join(words[:n], ""); len(combined) <= target {
			return combined
		}
	}

	first := words[0]
	if len(first) > target {
		if abbrev, ok := domainKeywords[strings.ToUpper(first)]; ok {
			return truncate(abbrev, target)
		}
		if len(first) > 3 {
			if compressed := removeVowels(first); len(compressed) <= target {
				return compressed
			}
		}
		return truncate(first, target)
	}
	return first
}

func compressWord(word string, target int) string {
	if len(word) <= target {
		return word
	}
	if len(word) > 3 {
		if compressed := removeVowels(word); len(compressed) <= target && len(compressed) >= 3 {
			return compressed
		}
	}
	return truncate(word, target)
}

// removeVowels strips vowels from the interior of a word, keeping the first
// and last characters.
func removeVowels(word string) string {
	if len(word) <= 3 {
		return word
	}
	var b strings.Builder
	b.WriteByte(word[0])
	for i := 1; i < len(word)-1; i++ {
		switch word[i] {
		case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		default:
			b.WriteByte(word[i])
		}
	}
	b.WriteByte(word[len(word)-1])
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

var (
	sapServicePattern  = regexp.MustCompile(`/([A-Z][A-Z0-9_]*_SRV)`)
	sapCompactPattern  = regexp.MustCompile(`^([A-Z])[A-Z]*_?(\d+)`)
	svcEndpointPattern = regexp.MustCompile(`/([A-Za-z][A-Za-z0-9_]+)\.svc`)
	odataPathPattern   = regexp.MustCompile(`/odata/([A-Za-z][A-Za-z0-9_]+)`)
	nonIdentChars      = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	underscoreRuns     = regexp.MustCompile(`_+`)
)

// ServiceID derives a short service identifier from a service URL, used as
// the default tool name postfix component.
func ServiceID(serviceURL string) string {
	// SAP catalog services: /sap/opu/odata/sap/ZODD_000_SRV -> Z000
	if m := sapServicePattern.FindStringSubmatch(serviceURL); len(m) > 1 {
		svcName := m[1]
		if cm := sapCompactPattern.FindStringSubmatch(svcName); len(cm) > 2 {
			return fmt.Sprintf("%s%s", cm[1], cm[2])
		}
		return truncate(strings.TrimSuffix(svcName, "_SRV"), 8)
	}

	// WCF-style endpoints: /Northwind.svc -> NorthSvc
	if m := svcEndpointPattern.FindStringSubmatch(serviceURL); len(m) > 1 {
		return truncate(m[1], 5) + "Svc"
	}

	// Generic /odata/Name paths
	if m := odataPathPattern.FindStringSubmatch(serviceURL); len(m) > 1 {
		return truncate(m[1], 8)
	}

	// Last meaningful path segment
	if parsed, err := url.Parse(serviceURL); err == nil && parsed.Path != "" {
		segments := strings.Split(parsed.Path, "/")
		for i := len(segments) - 1; i >= 0; i-- {
			seg := segments[i]
			if seg == "" || seg == "api" || seg == "odata" || seg == "sap" || seg == "opu" {
				continue
			}
			clean := nonIdentChars.ReplaceAllString(seg, "_")
			clean = underscoreRuns.ReplaceAllString(clean, "_")
			clean = strings.Trim(clean, "_")
			if len(clean) > 1 {
				return truncate(clean, 8)
			}
		}
	}

	return "od"
}
