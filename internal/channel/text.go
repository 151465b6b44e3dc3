package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartlife/capture/internal/domain"
)

// Text turns one user message into zero or more structured calls via the
// understanding backend. Synchronous from the caller's perspective.
type Text struct {
	llm    ChatClient
	logger *slog.Logger
}

func NewText(llm ChatClient, logger *slog.Logger) *Text {
	return &Text{llm: llm, logger: logger}
}

func (t *Text) Kind() domain.ChannelKind {
	return domain.ChannelText
}

// Submit sends the utterance with prior turns, the category set and the
// current draft snapshot. Transport failures surface as the structured error
// kinds of the understanding client, never as raw exceptions.
func (t *Text) Submit(ctx context.Context, utterance string, prior []domain.ConversationTurn, categories []domain.Category, snapshot domain.DraftEvent, events []domain.PersistedEvent) (*domain.ExtractionResult, error) {
	turns := make([]domain.ConversationTurn, 0, len(prior)+1)
	turns = append(turns, prior...)
	turns = append(turns, domain.ConversationTurn{
		Role:      domain.RoleUser,
		Content:   utterance,
		CreatedAt: time.Now(),
	})

	result, err := t.llm.Chat(ctx, turns, categories, snapshot, events)
	if err != nil {
		t.logger.Warn("text channel round trip failed", "error", err)
		return nil, err
	}
	t.logger.Debug("text channel extraction", "calls", len(result.Calls))
	return result, nil
}
