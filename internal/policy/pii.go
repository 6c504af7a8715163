package policy

import "regexp"

// redactedMarker is the replacement text for a matched PII span, the same
// convention the observability package uses for sensitive JSON keys.
const redactedMarker = "[REDACTED]"

// piiPatterns maps a PII category name to the regex that detects it. Order
// matters only for readability; every pattern is applied.
var piiPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"phone":       regexp.MustCompile(`\+?\d{1,3}?[\s.\-]?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`),
	"ssn":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`),
	"ip_address":  regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

// patternsFor resolves a policy's detect categories to the patterns to
// apply, defaulting to every category when detect is empty or unset.
func patternsFor(categories []string) map[string]*regexp.Regexp {
	if len(categories) == 0 {
		return piiPatterns
	}
	out := make(map[string]*regexp.Regexp, len(categories))
	for _, c := range categories {
		if re, ok := piiPatterns[c]; ok {
			out[c] = re
		}
	}
	return out
}

// redactPII replaces every match of the given PII categories in text with
// redactedMarker, returning the redacted text and whether any replacement
// occurred. An empty categories list checks every known category.
func redactPII(text string, categories []string) (string, bool) {
	hit := false
	out := text
	for _, re := range patternsFor(categories) {
		if re.MatchString(out) {
			hit = true
			out = re.ReplaceAllString(out, redactedMarker)
		}
	}
	return out, hit
}

// containsPII reports whether text matches any of the given PII categories
// without modifying it. An empty categories list checks every known
// category.
func containsPII(text string, categories []string) bool {
	for _, re := range patternsFor(categories) {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
