package mapping

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digaomatias/mymascada/internal/llm"
	"github.com/digaomatias/mymascada/internal/model"
	"github.com/digaomatias/mymascada/internal/storage"
)

type stubSuggester struct {
	suggestion llm.Suggestion
	err        error
	calls      int
}

func (s *stubSuggester) SuggestBankCategoryMapping(_ context.Context, _, _ string, _ []model.Category) (llm.Suggestion, error) {
	s.calls++
	return s.suggestion, s.err
}

func newTestMapper(t *testing.T, suggester Suggester) (*Mapper, *storage.MemoryStorage, int) {
	t.Helper()
	store := storage.NewMemoryStorage()
	category := &model.Category{UserID: "u1", Name: "Groceries", IsActive: true}
	require.NoError(t, store.CreateCategory(context.Background(), category))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMapper(store, suggester, logger), store, category.ID
}

func TestResolveExactMatch(t *testing.T) {
	suggester := &stubSuggester{}
	mapper, store, catID := newTestMapper(t, suggester)

	require.NoError(t, store.CreateMapping(context.Background(), &model.BankCategoryMapping{
		UserID:       "u1",
		Provider:     "plaid",
		BankCategory: "Food & Drink",
		CategoryID:   catID,
		Confidence:   0.85,
	}))

	res, err := mapper.Resolve(context.Background(), "u1", "plaid", "Food & Drink")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.ExactMatch)
	assert.Equal(t, catID, res.CategoryID)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
	assert.Equal(t, 0, suggester.calls, "existing mappings must not hit the LLM")
}

func TestResolveFuzzyMatchDiscountsConfidence(t *testing.T) {
	suggester := &stubSuggester{}
	mapper, store, catID := newTestMapper(t, suggester)

	require.NoError(t, store.CreateMapping(context.Background(), &model.BankCategoryMapping{
		UserID:       "u1",
		Provider:     "plaid",
		BankCategory: "Restaurants",
		CategoryID:   catID,
		Confidence:   0.8,
	}))

	// One character off the stored normalized name.
	res, err := mapper.Resolve(context.Background(), "u1", "plaid", "Restaurant")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.ExactMatch)
	assert.InDelta(t, 0.8*0.9, res.Confidence, 1e-9)
}

func TestResolveExcludedMappingIsFlagged(t *testing.T) {
	suggester := &stubSuggester{}
	mapper, store, catID := newTestMapper(t, suggester)

	require.NoError(t, store.CreateMapping(context.Background(), &model.BankCategoryMapping{
		UserID:       "u1",
		Provider:     "plaid",
		BankCategory: "Transfer",
		CategoryID:   catID,
		Confidence:   0.99,
		IsExcluded:   true,
	}))

	res, err := mapper.Resolve(context.Background(), "u1", "plaid", "Transfer")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Excluded)
}

func TestResolveCreatesAssistedMapping(t *testing.T) {
	suggester := &stubSuggester{suggestion: llm.Suggestion{Category: "Groceries", Confidence: 0.75}}
	mapper, _, catID := newTestMapper(t, suggester)

	res, err := mapper.Resolve(context.Background(), "u1", "plaid", "Supermarkets & Groceries")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Created)
	assert.Equal(t, catID, res.CategoryID)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)

	// The mapping is persisted for the next lookup.
	again, err := mapper.Resolve(context.Background(), "u1", "plaid", "Supermarkets & Groceries")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.True(t, again.ExactMatch)
	assert.Equal(t, 1, suggester.calls)
}

func TestResolveSkipsUnknownSuggestedCategory(t *testing.T) {
	suggester := &stubSuggester{suggestion: llm.Suggestion{Category: "Nonexistent", Confidence: 0.9}}
	mapper, _, _ := newTestMapper(t, suggester)

	res, err := mapper.Resolve(context.Background(), "u1", "plaid", "Mystery")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestResolveEmptyBankCategory(t *testing.T) {
	mapper, _, _ := newTestMapper(t, &stubSuggester{})

	res, err := mapper.Resolve(context.Background(), "u1", "plaid", "   ")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestResolveSuggesterFailure(t *testing.T) {
	suggester := &stubSuggester{err: errors.New("provider down")}
	mapper, _, _ := newTestMapper(t, suggester)

	_, err := mapper.Resolve(context.Background(), "u1", "plaid", "Mystery")
	assert.Error(t, err)
}

func TestRecordApplicationAndOverride(t *testing.T) {
	mapper, store, catID := newTestMapper(t, &stubSuggester{})

	m := &model.BankCategoryMapping{
		UserID: "u1", Provider: "plaid", BankCategory: "Food & Drink",
		CategoryID: catID, Confidence: 0.8,
	}
	require.NoError(t, store.CreateMapping(context.Background(), m))

	require.NoError(t, mapper.RecordApplication(context.Background(), m))
	require.NoError(t, mapper.RecordOverride(context.Background(), m))

	mappings, err := store.GetMappings(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, 1, mappings[0].ApplicationCount)
	assert.Equal(t, 1, mappings[0].OverrideCount)
}
