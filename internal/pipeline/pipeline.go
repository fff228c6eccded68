package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/n0madic/go-appforge/internal/normalize"
	"github.com/n0madic/go-appforge/internal/prompt"
	"github.com/n0madic/go-appforge/internal/store"
	"github.com/n0madic/go-appforge/internal/types"
)

// diagnosticPreviewLen bounds how much of a rejected completion is logged.
const diagnosticPreviewLen = 512

// Completer is the provider transport.
type Completer interface {
	Complete(ctx context.Context, messages []types.ChatMessage) (string, error)
	Model() string
}

// Recorder persists successful generations.
type Recorder interface {
	Insert(ctx context.Context, rec *store.Record) error
}

// Pipeline runs one generation: prompt → upstream → normalize → store.
// It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	Prompt   *prompt.Builder
	Upstream Completer
	// Store may be nil, in which case records are returned but not saved.
	Store   Recorder
	Verbose bool
}

// RequestContext carries per-request identifiers for logging.
type RequestContext struct {
	Context   context.Context
	RequestID string
}

// Generate turns an instruction into a stored bundle. Errors are returned
// unclassified; normalization diagnostics are logged here and only here.
func (p *Pipeline) Generate(rc *RequestContext, instruction string) (*store.Record, error) {
	ctx := rc.Context
	log := slog.With("request_id", rc.RequestID)

	builder := p.Prompt
	if builder == nil {
		builder = prompt.NewBuilder("")
	}
	messages, err := builder.Build(instruction)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	completion, err := p.Upstream.Complete(ctx, messages)
	if err != nil {
		log.Error("generate.transport_failed", "error", err)
		return nil, err
	}
	if p.Verbose {
		log.Info("generate.completion",
			"chars", len(completion),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}

	result, err := normalize.Normalize(completion)
	if err != nil {
		logNormalizeFailure(log, err)
		return nil, err
	}

	rec := &store.Record{
		CreatedAt:   time.Now(),
		Instruction: instruction,
		Model:       p.Upstream.Model(),
		Stage:       result.Stage,
		Bundle:      result.Bundle,
	}
	if p.Store == nil {
		rec.ID = store.NewID(rec.CreatedAt)
	} else if err := p.Store.Insert(ctx, rec); err != nil {
		log.Error("generate.store_failed", "error", err)
		return nil, err
	}

	log.Info("generate.completed",
		"id", rec.ID,
		"stage", rec.Stage,
		"frontend_chars", len(rec.Bundle.Frontend()),
		"backend_chars", len(rec.Bundle.Backend()),
		"database_chars", len(rec.Bundle.Database()),
	)
	return rec, nil
}

func logNormalizeFailure(log *slog.Logger, err error) {
	var nerr *normalize.Error
	if !errors.As(err, &nerr) {
		log.Error("generate.normalize_failed", "error", err)
		return
	}
	log.Warn("generate.normalize_failed",
		"kind", string(nerr.Kind),
		"stage", nerr.Stage,
		"field", nerr.Field,
		"diagnostic", nerr.Diagnostic,
		"text_chars", len(nerr.Text),
		"text_preview", nerr.Preview(diagnosticPreviewLen),
	)
}
