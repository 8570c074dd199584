package autoreply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wagate/pkg/entities"
)

func rule(trigger string, mode entities.RuleMatchMode, priority int, reply string) entities.AutoReplyRule {
	return entities.AutoReplyRule{Trigger: trigger, MatchMode: mode, Priority: priority, Reply: reply}
}

func TestMatchRuleModes(t *testing.T) {
	cases := []struct {
		name  string
		rule  entities.AutoReplyRule
		text  string
		match bool
	}{
		{"exact hit", rule("halo", entities.MatchModeExact, 0, ""), "Halo", true},
		{"exact miss", rule("halo", entities.MatchModeExact, 0, ""), "halo semua", false},
		{"contains", rule("harga", entities.MatchModeContains, 0, ""), "Berapa HARGA produk ini?", true},
		{"starts_with", rule("promo", entities.MatchModeStartsWith, 0, ""), "Promo apa hari ini", true},
		{"starts_with miss", rule("promo", entities.MatchModeStartsWith, 0, ""), "ada promo?", false},
		{"ends_with", rule("kak", entities.MatchModeEndsWith, 0, ""), "masih ada stok Kak", true},
		{"regex", rule(`^order\s+\d+$`, entities.MatchModeRegex, 0, ""), "order 123", true},
		{"regex is case sensitive", rule(`^order\s+\d+$`, entities.MatchModeRegex, 0, ""), "Order 123", false},
		{"broken regex never matches", rule(`([`, entities.MatchModeRegex, 0, ""), "anything", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.match, MatchRule(tc.rule, tc.text))
		})
	}
}

func TestFirstMatchRespectsGivenOrder(t *testing.T) {
	rules := []entities.AutoReplyRule{
		rule("halo", entities.MatchModeContains, 10, "high priority"),
		rule("halo", entities.MatchModeContains, 1, "low priority"),
	}

	matched, ok := FirstMatch(rules, "halo kak")
	assert.True(t, ok)
	assert.Equal(t, "high priority", matched.Reply)
}

func TestFirstMatchNoRules(t *testing.T) {
	_, ok := FirstMatch(nil, "anything")
	assert.False(t, ok)
}
