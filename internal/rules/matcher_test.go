package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/digaomatias/mymascada/internal/model"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestMatcher_Matches(t *testing.T) {
	acctPtr := func(a model.AccountType) *model.AccountType { return &a }

	tests := []struct {
		name        string
		rule        model.CategorizationRule
		txn         model.Transaction
		accountType model.AccountType
		want        bool
	}{
		{
			name: "contains case insensitive",
			rule: model.CategorizationRule{ID: 1, Pattern: "UBER", MatchType: model.MatchContains, IsActive: true},
			txn:  model.Transaction{Description: "Uber Eats Order #123"},
			want: true,
		},
		{
			name: "contains matches concatenated description",
			rule: model.CategorizationRule{ID: 1, Pattern: "UBER", MatchType: model.MatchContains, IsActive: true},
			txn:  model.Transaction{Description: "UBEREATS"},
			want: true,
		},
		{
			name: "equals requires full string equality",
			rule: model.CategorizationRule{ID: 1, Pattern: "uber", MatchType: model.MatchEquals, IsActive: true},
			txn:  model.Transaction{Description: "Uber Eats"},
			want: false,
		},
		{
			name: "contains case sensitive",
			rule: model.CategorizationRule{ID: 1, Pattern: "UBER", MatchType: model.MatchContains, CaseSensitive: true, IsActive: true},
			txn:  model.Transaction{Description: "uber eats"},
			want: false,
		},
		{
			name: "starts with",
			rule: model.CategorizationRule{ID: 1, Pattern: "countdown", MatchType: model.MatchStartsWith, IsActive: true},
			txn:  model.Transaction{Description: "Countdown Auckland 123"},
			want: true,
		},
		{
			name: "ends with",
			rule: model.CategorizationRule{ID: 1, Pattern: "fee", MatchType: model.MatchEndsWith, IsActive: true},
			txn:  model.Transaction{Description: "Monthly account fee"},
			want: true,
		},
		{
			name: "regex",
			rule: model.CategorizationRule{ID: 1, Pattern: `uber\s+eats`, MatchType: model.MatchRegex, IsActive: true},
			txn:  model.Transaction{Description: "UBER  EATS WELLINGTON"},
			want: true,
		},
		{
			name: "invalid regex never matches",
			rule: model.CategorizationRule{ID: 1, Pattern: `([`, MatchType: model.MatchRegex, IsActive: true},
			txn:  model.Transaction{Description: "(["},
			want: false,
		},
		{
			name: "user description takes precedence",
			rule: model.CategorizationRule{ID: 1, Pattern: "groceries", MatchType: model.MatchContains, IsActive: true},
			txn:  model.Transaction{Description: "POS 4421-1", UserDescription: "Weekly groceries"},
			want: true,
		},
		{
			name: "amount within range",
			rule: model.CategorizationRule{
				ID: 1, Pattern: "uber", MatchType: model.MatchContains, IsActive: true,
				AmountMin: decPtr("-100"), AmountMax: decPtr("-5"),
			},
			txn:  model.Transaction{Description: "Uber trip", Amount: decimal.RequireFromString("-23.50")},
			want: true,
		},
		{
			name: "amount outside range",
			rule: model.CategorizationRule{
				ID: 1, Pattern: "uber", MatchType: model.MatchContains, IsActive: true,
				AmountMin: decPtr("-100"), AmountMax: decPtr("-5"),
			},
			txn:  model.Transaction{Description: "Uber trip", Amount: decimal.RequireFromString("-4.00")},
			want: false,
		},
		{
			name: "account type filter mismatch",
			rule: model.CategorizationRule{
				ID: 1, Pattern: "interest", MatchType: model.MatchContains, IsActive: true,
				AccountType: acctPtr(model.AccountSavings),
			},
			txn:         model.Transaction{Description: "Interest earned"},
			accountType: model.AccountChecking,
			want:        false,
		},
		{
			name: "all conditions must hold",
			rule: model.CategorizationRule{
				ID: 1, Pattern: "", MatchType: model.MatchContains, IsActive: true,
				ConditionLogic: model.LogicAll,
				Conditions: []model.RuleCondition{
					{Field: "description", Operator: model.OpContains, Value: "netflix"},
					{Field: "amount", Operator: model.OpLessThan, Value: "0"},
				},
			},
			txn:  model.Transaction{Description: "NETFLIX.COM", Amount: decimal.RequireFromString("-19.99")},
			want: true,
		},
		{
			name: "all logic fails when one condition fails",
			rule: model.CategorizationRule{
				ID: 1, Pattern: "", MatchType: model.MatchContains, IsActive: true,
				ConditionLogic: model.LogicAll,
				Conditions: []model.RuleCondition{
					{Field: "description", Operator: model.OpContains, Value: "netflix"},
					{Field: "amount", Operator: model.OpGreaterThan, Value: "0"},
				},
			},
			txn:  model.Transaction{Description: "NETFLIX.COM", Amount: decimal.RequireFromString("-19.99")},
			want: false,
		},
		{
			name: "any logic passes on one match",
			rule: model.CategorizationRule{
				ID: 1, Pattern: "", MatchType: model.MatchContains, IsActive: true,
				ConditionLogic: model.LogicAny,
				Conditions: []model.RuleCondition{
					{Field: "description", Operator: model.OpContains, Value: "spotify"},
					{Field: "description", Operator: model.OpContains, Value: "netflix"},
				},
			},
			txn:  model.Transaction{Description: "NETFLIX.COM"},
			want: true,
		},
		{
			name: "numeric operator fails closed on non-numeric value",
			rule: model.CategorizationRule{
				ID: 1, Pattern: "", MatchType: model.MatchContains, IsActive: true,
				ConditionLogic: model.LogicAll,
				Conditions: []model.RuleCondition{
					{Field: "amount", Operator: model.OpGreaterThan, Value: "not a number"},
				},
			},
			txn:  model.Transaction{Description: "anything", Amount: decimal.RequireFromString("10")},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher([]model.CategorizationRule{tt.rule})
			got := m.Matches(tt.txn, tt.rule, tt.accountType)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher_FirstMatch_PriorityOrder(t *testing.T) {
	ruleSet := []model.CategorizationRule{
		{ID: 1, Pattern: "uber", MatchType: model.MatchContains, Priority: 20, CategoryID: 2, IsActive: true},
		{ID: 2, Pattern: "uber eats", MatchType: model.MatchContains, Priority: 10, CategoryID: 7, IsActive: true},
		{ID: 3, Pattern: "uber", MatchType: model.MatchContains, Priority: 5, CategoryID: 9, IsActive: false},
	}

	m := NewMatcher(ruleSet)
	got := m.FirstMatch(model.Transaction{Description: "UBER EATS ORDER"}, model.AccountChecking)

	// Lower priority wins; inactive rules are skipped.
	assert.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)

	got = m.FirstMatch(model.Transaction{Description: "UBER TRIP"}, model.AccountChecking)
	assert.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)

	got = m.FirstMatch(model.Transaction{Description: "TAXI"}, model.AccountChecking)
	assert.Nil(t, got)
}
