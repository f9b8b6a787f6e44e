// Package recon matches bank statement lines against system transactions and
// manages reconciliation lifecycles.
package recon

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digaomatias/mymascada/internal/model"
)

// Confidence thresholds for bucketing scored pairs.
const (
	// ExactThreshold is the composite score floor for exact matches. Exact
	// matches additionally require an exact amount and same-day dates.
	ExactThreshold = 0.95
	// FuzzyThreshold is the composite score floor for fuzzy matches, which
	// require manual confirmation.
	FuzzyThreshold = 0.70
)

// Component weights of the composite score.
const (
	weightAmount      = 0.4
	weightDate        = 0.3
	weightDescription = 0.3
)

var (
	centTolerance   = decimal.NewFromFloat(0.01)
	dollarTolerance = decimal.NewFromInt(1)
	fiveTolerance   = decimal.NewFromInt(5)
)

// Score is the result of comparing one bank line with one system transaction.
type Score struct {
	Amount      float64
	Date        float64
	Description float64
	Composite   float64
	ExactAmount bool
	SameDay     bool
}

// IsExact reports whether the pair qualifies for the exact bucket.
func (s Score) IsExact() bool {
	return s.Composite >= ExactThreshold && s.ExactAmount && s.SameDay
}

// IsFuzzy reports whether the pair qualifies for the fuzzy bucket.
func (s Score) IsFuzzy() bool {
	return !s.IsExact() && s.Composite >= FuzzyThreshold
}

// ScorePair computes the weighted match score between a bank line and a
// system transaction.
func ScorePair(line model.BankLine, txn model.Transaction) Score {
	s := Score{
		Amount:      amountScore(line.Amount, txn.Amount),
		Date:        dateScore(line.Date, txn.Date),
		Description: descriptionScore(line.Description, txn.EffectiveDescription()),
	}
	s.ExactAmount = line.Amount.Sub(txn.Amount).Abs().LessThan(centTolerance)
	s.SameDay = sameDay(line.Date, txn.Date)
	s.Composite = weightAmount*s.Amount + weightDate*s.Date + weightDescription*s.Description
	return s
}

// amountScore buckets the absolute difference: under a cent is exact, then
// one dollar, five dollars, and everything beyond.
func amountScore(bank, system decimal.Decimal) float64 {
	diff := bank.Sub(system).Abs()
	switch {
	case diff.LessThan(centTolerance):
		return 1.0
	case diff.LessThanOrEqual(dollarTolerance):
		return 0.8
	case diff.LessThanOrEqual(fiveTolerance):
		return 0.6
	default:
		return 0.3
	}
}

func dateScore(bank, system time.Time) float64 {
	days := daysApart(bank, system)
	switch {
	case days == 0:
		return 1.0
	case days <= 1:
		return 0.9
	case days <= 3:
		return 0.7
	default:
		return 0.4
	}
}

func descriptionScore(bank, system string) float64 {
	a := normalizeDescription(bank)
	b := normalizeDescription(system)

	switch {
	case a == b:
		return 1.0
	case a == "" || b == "":
		return 0.0
	case strings.Contains(a, b) || strings.Contains(b, a):
		return 0.9
	default:
		return wordOverlap(a, b)
	}
}

// wordOverlap is the Jaccard ratio of the two descriptions' word sets.
func wordOverlap(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		setB[w] = true
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func normalizeDescription(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func daysApart(a, b time.Time) int {
	ta := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	tb := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(ta.Sub(tb).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

// Pairing is one scored bank-line/transaction pair produced by AutoMatch.
type Pairing struct {
	Transaction *model.Transaction
	Line        model.BankLine
	Score       Score
}

// MatchResult buckets the outcome of matching a statement against system
// transactions.
type MatchResult struct {
	Exact         []Pairing
	Fuzzy         []Pairing
	UnmatchedBank []model.BankLine
	UnmatchedApp  []model.Transaction
}

// Match greedily pairs bank lines with system transactions. All candidate
// pairs are scored, sorted descending, then assigned best-first so each side
// is used at most once. Pairs below the fuzzy threshold stay unmatched.
func Match(lines []model.BankLine, txns []model.Transaction) MatchResult {
	type scored struct {
		score   Score
		lineIdx int
		txnIdx  int
	}

	var pairs []scored
	for i, line := range lines {
		for j := range txns {
			s := ScorePair(line, txns[j])
			if s.Composite >= FuzzyThreshold {
				pairs = append(pairs, scored{score: s, lineIdx: i, txnIdx: j})
			}
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score.Composite > pairs[j].score.Composite
	})

	usedLines := make(map[int]bool, len(lines))
	usedTxns := make(map[int]bool, len(txns))

	var result MatchResult
	for _, p := range pairs {
		if usedLines[p.lineIdx] || usedTxns[p.txnIdx] {
			continue
		}
		usedLines[p.lineIdx] = true
		usedTxns[p.txnIdx] = true

		pairing := Pairing{
			Line:        lines[p.lineIdx],
			Transaction: &txns[p.txnIdx],
			Score:       p.score,
		}
		if p.score.IsExact() {
			result.Exact = append(result.Exact, pairing)
		} else {
			result.Fuzzy = append(result.Fuzzy, pairing)
		}
	}

	for i, line := range lines {
		if !usedLines[i] {
			result.UnmatchedBank = append(result.UnmatchedBank, line)
		}
	}
	for i := range txns {
		if !usedTxns[i] {
			result.UnmatchedApp = append(result.UnmatchedApp, txns[i])
		}
	}

	return result
}
