// Package rules evaluates user-defined categorization rules against transactions.
package rules

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/model"
)

// Matcher evaluates categorization rules against transactions. Regex patterns
// are compiled once per rule; invalid patterns never match.
type Matcher struct {
	compiled map[int64]*regexp.Regexp
	rules    []model.CategorizationRule
}

// NewMatcher creates a matcher for the given rules, sorted by priority
// (lower values evaluated first).
func NewMatcher(ruleSet []model.CategorizationRule) *Matcher {
	m := &Matcher{
		rules:    make([]model.CategorizationRule, len(ruleSet)),
		compiled: make(map[int64]*regexp.Regexp),
	}
	copy(m.rules, ruleSet)

	sort.SliceStable(m.rules, func(i, j int) bool {
		return m.rules[i].Priority < m.rules[j].Priority
	})

	for _, rule := range m.rules {
		if rule.MatchType != model.MatchRegex || rule.Pattern == "" {
			continue
		}
		pattern := rule.Pattern
		if !rule.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		if re, err := regexp.Compile(pattern); err == nil {
			m.compiled[rule.ID] = re
		}
	}

	return m
}

// FirstMatch returns the highest-priority active rule matching the
// transaction, or nil when none match.
func (m *Matcher) FirstMatch(txn model.Transaction, accountType model.AccountType) *model.CategorizationRule {
	for i := range m.rules {
		rule := &m.rules[i]
		if !rule.IsActive {
			continue
		}
		if m.Matches(txn, *rule, accountType) {
			return rule
		}
	}
	return nil
}

// Matches evaluates a single rule against a transaction. The user description
// takes precedence over the raw description when present.
func (m *Matcher) Matches(txn model.Transaction, rule model.CategorizationRule, accountType model.AccountType) bool {
	if !m.matchesPattern(txn.EffectiveDescription(), rule) {
		return false
	}
	if !matchesAmountRange(txn.Amount, rule) {
		return false
	}
	if rule.AccountType != nil && accountType != *rule.AccountType {
		return false
	}
	if len(rule.Conditions) > 0 {
		return m.matchesConditions(txn, rule, accountType)
	}
	return true
}

func (m *Matcher) matchesPattern(description string, rule model.CategorizationRule) bool {
	if rule.Pattern == "" {
		return true
	}

	haystack := description
	needle := rule.Pattern
	if !rule.CaseSensitive {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}

	switch rule.MatchType {
	case model.MatchContains:
		return strings.Contains(haystack, needle)
	case model.MatchStartsWith:
		return strings.HasPrefix(haystack, needle)
	case model.MatchEndsWith:
		return strings.HasSuffix(haystack, needle)
	case model.MatchEquals:
		return haystack == needle
	case model.MatchRegex:
		re, ok := m.compiled[rule.ID]
		if !ok {
			return false
		}
		return re.MatchString(description)
	}

	return false
}

func matchesAmountRange(amount decimal.Decimal, rule model.CategorizationRule) bool {
	if rule.AmountMin != nil && amount.LessThan(*rule.AmountMin) {
		return false
	}
	if rule.AmountMax != nil && amount.GreaterThan(*rule.AmountMax) {
		return false
	}
	return true
}

// matchesConditions evaluates the rule's child conditions and combines them
// with the configured ALL/ANY logic.
func (m *Matcher) matchesConditions(txn model.Transaction, rule model.CategorizationRule, accountType model.AccountType) bool {
	all := rule.ConditionLogic != model.LogicAny

	for _, cond := range rule.Conditions {
		ok := matchesCondition(txn, cond, accountType)
		if all && !ok {
			return false
		}
		if !all && ok {
			return true
		}
	}

	return all
}

func matchesCondition(txn model.Transaction, cond model.RuleCondition, accountType model.AccountType) bool {
	switch strings.ToLower(cond.Field) {
	case "description":
		return compareString(txn.EffectiveDescription(), cond)
	case "amount":
		return compareDecimal(txn.Amount, cond)
	case "account_type":
		return compareString(string(accountType), cond)
	}
	return false
}

func compareString(value string, cond model.RuleCondition) bool {
	v := strings.ToLower(value)
	want := strings.ToLower(cond.Value)

	switch cond.Operator {
	case model.OpEquals:
		return v == want
	case model.OpNotEquals:
		return v != want
	case model.OpContains:
		return strings.Contains(v, want)
	case model.OpGreaterThan, model.OpLessThan:
		return compareNumericStrings(value, cond)
	}
	return false
}

// compareNumericStrings coerces both sides to decimal. Parse failures fail
// closed: a non-numeric value never satisfies an ordering operator.
func compareNumericStrings(value string, cond model.RuleCondition) bool {
	left, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return compareDecimal(left, cond)
}

func compareDecimal(value decimal.Decimal, cond model.RuleCondition) bool {
	want, err := decimal.NewFromString(strings.TrimSpace(cond.Value))
	if err != nil {
		return false
	}

	switch cond.Operator {
	case model.OpEquals:
		return value.Equal(want)
	case model.OpNotEquals:
		return !value.Equal(want)
	case model.OpGreaterThan:
		return value.GreaterThan(want)
	case model.OpLessThan:
		return value.LessThan(want)
	case model.OpContains:
		return strings.Contains(value.String(), want.String())
	}
	return false
}
