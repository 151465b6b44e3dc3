package channel

import (
	"context"
	"log/slog"

	"github.com/smartlife/capture/internal/domain"
)

// Document submits a file for one-shot field extraction. Failure is
// non-fatal: the caller reports it conversationally and the draft is left
// unchanged.
type Document struct {
	llm    Analyzer
	logger *slog.Logger
}

func NewDocument(llm Analyzer, logger *slog.Logger) *Document {
	return &Document{llm: llm, logger: logger}
}

func (d *Document) Kind() domain.ChannelKind {
	return domain.ChannelDocument
}

func (d *Document) Analyze(ctx context.Context, data []byte, mimeType string) (*domain.DocumentAnalysis, error) {
	analysis, err := d.llm.AnalyzeDocument(ctx, data, mimeType)
	if err != nil {
		d.logger.Warn("document analysis failed", "mime_type", mimeType, "error", err)
		return nil, err
	}
	d.logger.Info("document analyzed",
		"document_type", analysis.DocumentType,
		"has_due_date", analysis.DueDate != "",
		"has_amount", analysis.Amount != nil,
	)
	return analysis, nil
}
