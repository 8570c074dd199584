package autoreply

import (
	"regexp"
	"strings"

	"github.com/wagate/pkg/entities"
)

// MatchRule evaluates one rule against the inbound text. All modes are
// case-insensitive except regex, which is applied verbatim.
func MatchRule(rule entities.AutoReplyRule, text string) bool {
	needle := strings.ToLower(strings.TrimSpace(rule.Trigger))
	haystack := strings.ToLower(strings.TrimSpace(text))

	switch rule.MatchMode {
	case entities.MatchModeExact:
		return haystack == needle
	case entities.MatchModeContains:
		return strings.Contains(haystack, needle)
	case entities.MatchModeStartsWith:
		return strings.HasPrefix(haystack, needle)
	case entities.MatchModeEndsWith:
		return strings.HasSuffix(haystack, needle)
	case entities.MatchModeRegex:
		re, err := regexp.Compile(rule.Trigger)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

// FirstMatch walks rules already ordered by priority desc, id asc and
// returns the first hit.
func FirstMatch(rules []entities.AutoReplyRule, text string) (entities.AutoReplyRule, bool) {
	for _, rule := range rules {
		if MatchRule(rule, text) {
			return rule, true
		}
	}
	return entities.AutoReplyRule{}, false
}
