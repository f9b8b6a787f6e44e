package categorize

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/service"
)

// mlTrainingLimit caps how much categorized history is loaded per run.
const mlTrainingLimit = 2000

// mlMinConfidence discards weak keyword signals entirely; the LLM stage is a
// better judge than a noisy keyword vote.
const mlMinConfidence = 0.55

// MLHandler scores transactions against a keyword-frequency model trained on
// the user's own categorized history. It costs nothing per transaction, so it
// runs before the LLM stage.
type MLHandler struct {
	storage service.Storage
	gate    Gate
}

// NewMLHandler creates the ML stage.
func NewMLHandler(storage service.Storage, gate Gate) *MLHandler {
	return &MLHandler{storage: storage, gate: gate}
}

// Name identifies the handler in logs and metrics.
func (h *MLHandler) Name() string { return "ml" }

// Handle trains a keyword model from the user's categorized transactions and
// scores each unresolved transaction against it.
func (h *MLHandler) Handle(ctx context.Context, userID string, txns []model.Transaction) (Result, error) {
	history, err := h.storage.GetCategorizedTransactions(ctx, userID, mlTrainingLimit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load categorized history: %w", err)
	}
	if len(history) == 0 {
		return Result{Remaining: txns}, nil
	}

	scorer := trainKeywordScorer(history)

	var proposals []Categorization
	for _, txn := range txns {
		categoryID, confidence := scorer.score(txn.EffectiveDescription())
		if categoryID == 0 || confidence < mlMinConfidence {
			continue
		}
		proposals = append(proposals, Categorization{
			TransactionID: txn.ID,
			CategoryID:    categoryID,
			Method:        model.MethodML,
			Confidence:    confidence,
			Reason:        "keyword similarity to categorized history",
		})
	}

	applied, candidates, consumed := split(proposals, h.gate)
	return Result{
		AutoApplied: applied,
		Candidates:  candidates,
		Remaining:   remaining(txns, consumed),
	}, nil
}

// keywordScorer holds per-token category counts.
type keywordScorer struct {
	tokenCategories map[string]map[int]int
}

func trainKeywordScorer(history []model.Transaction) *keywordScorer {
	s := &keywordScorer{tokenCategories: make(map[string]map[int]int)}
	for _, txn := range history {
		if txn.CategoryID == nil {
			continue
		}
		for _, token := range tokenize(txn.EffectiveDescription()) {
			counts, ok := s.tokenCategories[token]
			if !ok {
				counts = make(map[int]int)
				s.tokenCategories[token] = counts
			}
			counts[*txn.CategoryID]++
		}
	}
	return s
}

// score votes each token toward its dominant category. Confidence is the
// winning category's share of the total vote.
func (s *keywordScorer) score(description string) (int, float64) {
	votes := make(map[int]float64)
	total := 0.0

	for _, token := range tokenize(description) {
		counts, ok := s.tokenCategories[token]
		if !ok {
			continue
		}
		tokenTotal := 0
		for _, n := range counts {
			tokenTotal += n
		}
		for categoryID, n := range counts {
			weight := float64(n) / float64(tokenTotal)
			votes[categoryID] += weight
			total += weight
		}
	}

	if total == 0 {
		return 0, 0
	}

	bestCategory := 0
	bestVotes := 0.0
	for categoryID, v := range votes {
		if v > bestVotes {
			bestCategory = categoryID
			bestVotes = v
		}
	}

	return bestCategory, bestVotes / total
}

// tokenize lowercases and splits a description into alphanumeric tokens,
// dropping short ones and bare numbers (store and reference codes).
func tokenize(description string) []string {
	fields := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var tokens []string
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if strings.IndexFunc(f, unicode.IsLetter) < 0 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
