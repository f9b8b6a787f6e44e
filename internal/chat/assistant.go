// Package chat answers free-form questions about a user's finances by
// grounding an LLM prompt in their recent activity.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digaomatias/mymascada/internal/service"
)

const (
	// Recent activity included in the prompt context.
	contextDays         = 90
	contextTransactions = 200
	maxHistoryTurns     = 10
)

const systemPrompt = `You are a personal finance assistant. Answer questions using only
the account, category, budget, and transaction context provided. Amounts are signed:
negative is spending, positive is income. Be concise and concrete. If the context does
not contain enough information to answer, say so rather than guessing.`

// Completer produces a chat completion. Satisfied by llm.Categorizer.
type Completer interface {
	Chat(ctx context.Context, system, prompt string) (string, error)
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // user or assistant
	Content string `json:"content"`
}

// Assistant answers questions about a user's finances.
type Assistant struct {
	storage   service.Storage
	completer Completer
	logger    *slog.Logger
}

// NewAssistant creates a chat assistant.
func NewAssistant(storage service.Storage, completer Completer, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		storage:   storage,
		completer: completer,
		logger:    logger.With("component", "chat"),
	}
}

// Ask answers a question, carrying forward prior turns of the conversation.
func (a *Assistant) Ask(ctx context.Context, userID, question string, history []Message) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question cannot be empty")
	}

	snapshot, err := a.buildContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to build chat context: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(snapshot)
	sb.WriteString("\n")

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, msg := range history {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&sb, "user: %s\n", question)

	answer, err := a.completer.Chat(ctx, systemPrompt, sb.String())
	if err != nil {
		return "", err
	}

	a.logger.Debug("chat answered", "user_id", userID, "question_len", len(question))
	return strings.TrimSpace(answer), nil
}

// buildContext renders the user's accounts, categories, budgets, and recent
// transactions as prompt text.
func (a *Assistant) buildContext(ctx context.Context, userID string) (string, error) {
	var sb strings.Builder

	accounts, err := a.storage.GetAccounts(ctx, userID)
	if err != nil {
		return "", err
	}
	sb.WriteString("Accounts:\n")
	for _, acct := range accounts {
		fmt.Fprintf(&sb, "- %s (%s, %s)\n", acct.Name, acct.Type, acct.Currency)
	}

	categories, err := a.storage.GetCategories(ctx, userID)
	if err != nil {
		return "", err
	}
	names := make(map[int]string, len(categories))
	sb.WriteString("Categories: ")
	for i, cat := range categories {
		names[cat.ID] = cat.Name
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(cat.Name)
	}
	sb.WriteString("\n")

	month := time.Now().Format("2006-01")
	budgets, err := a.storage.GetBudgets(ctx, userID, month)
	if err != nil {
		return "", err
	}
	if len(budgets) > 0 {
		fmt.Fprintf(&sb, "Budgets for %s:\n", month)
		for _, b := range budgets {
			fmt.Fprintf(&sb, "- %s: %s\n", names[b.CategoryID], b.Amount.StringFixed(2))
		}
	}

	goals, err := a.storage.GetGoals(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(goals) > 0 {
		sb.WriteString("Goals:\n")
		for _, g := range goals {
			fmt.Fprintf(&sb, "- %s: %s of %s (%s)\n",
				g.Name, g.Saved.StringFixed(2), g.Target.StringFixed(2), g.Status)
		}
	}

	start := time.Now().AddDate(0, 0, -contextDays)
	txns, err := a.storage.GetTransactions(ctx, userID, service.TransactionFilter{
		StartDate: &start,
		Limit:     contextTransactions,
	})
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&sb, "Transactions (last %d days):\n", contextDays)
	for _, txn := range txns {
		category := "uncategorized"
		if txn.CategoryID != nil {
			if name, ok := names[*txn.CategoryID]; ok {
				category = name
			}
		}
		fmt.Fprintf(&sb, "- %s | %s | %s | %s\n",
			txn.Date.Format("2006-01-02"), txn.EffectiveDescription(),
			txn.Amount.StringFixed(2), category)
	}

	return sb.String(), nil
}
