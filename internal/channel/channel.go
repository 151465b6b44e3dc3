// Package channel holds the three extraction channel adapters. Each adapter
// produces candidate field updates from one input modality without any
// knowledge of the draft's current state; adapters are sources of
// asynchronous proposals, not of ground truth.
package channel

import (
	"context"

	"github.com/smartlife/capture/internal/domain"
)

// ChatClient is the conversational-understanding collaborator.
type ChatClient interface {
	Chat(ctx context.Context, turns []domain.ConversationTurn, categories []domain.Category, snapshot domain.DraftEvent, events []domain.PersistedEvent) (*domain.ExtractionResult, error)
}

// Analyzer is the document-analysis collaborator.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, data []byte, mimeType string) (*domain.DocumentAnalysis, error)
}

// Adapter is the common surface of an extraction channel.
type Adapter interface {
	Kind() domain.ChannelKind
}
