package masking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mergedao/masking-mcp-server/internal/document"
	apperrors "github.com/mergedao/masking-mcp-server/internal/errors"
	"github.com/mergedao/masking-mcp-server/internal/metrics"
	"github.com/mergedao/masking-mcp-server/internal/store"
	"github.com/mergedao/masking-mcp-server/internal/tracing"
)

// RedactedMarker replaces a field whose mapping could not be persisted.
// A value without a stored mapping can never be recovered, so passing it
// through masked-but-unrecorded would be a silent bypass; passing it through
// unmasked would be a leak. The marker fails closed.
const RedactedMarker = "***REDACTED***"

// Mask failure reasons, used as metric labels.
const (
	failureInvalidPath      = "invalid_path"
	failureInvalidRule      = "invalid_rule"
	failureStoreUnavailable = "store_unavailable"
)

// Options configures an Engine. Zero values fall back to the documented
// defaults; a nil Logger or Metrics disables that output.
type Options struct {
	TTL          time.Duration
	StoreTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Engine runs the masking, recovery and cleanup pipelines. It holds no
// per-conversation state in memory: everything lives in the store
// collaborator, namespaced by conversation id, so one engine serves all
// conversations concurrently.
type Engine struct {
	binder  *Binder
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an engine over the given store.
func NewEngine(s store.Store, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		binder:  NewBinder(s, opts.TTL, opts.StoreTimeout, logger),
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// MaskStats summarizes one masking run for logging and the tool result.
type MaskStats struct {
	// Masked counts leaf values replaced with a masked rendering.
	Masked int
	// Redacted counts leaf values replaced with RedactedMarker because the
	// mapping write failed.
	Redacted int
	// SkippedRules counts rules dropped for a malformed path or strategy.
	SkippedRules int
}

// Mask applies the rules to the document and returns the redacted copy.
// The input document is never mutated. Rule failures are logged and skipped;
// store write failures redact the affected field. Mask never fails as a
// whole: the returned document is always safe to hand upstream.
func (e *Engine) Mask(ctx context.Context, doc *document.Value, rules []Rule, conversationID string) (*document.Value, MaskStats) {
	ctx, span := tracing.PipelineSpan(ctx, "mask", conversationID)
	defer span.End()

	out := doc.Clone()
	var stats MaskStats

	for i, rule := range rules {
		path, err := document.ParsePath(rule.Path)
		if err != nil {
			e.logger.Warn("Skipping rule with invalid path",
				zap.Int("rule", i),
				zap.String("path", rule.Path),
				zap.Error(apperrors.NewInvalidPath(rule.Path, err)))
			e.metrics.RecordMaskFailure(failureInvalidPath)
			stats.SkippedRules++
			continue
		}

		for _, match := range path.Resolve(out) {
			if !match.Node.IsString() {
				e.logger.Debug("Skipping non-string value",
					zap.String("location", match.Location),
					zap.String("kind", match.Node.Kind().String()))
				continue
			}
			original := match.Node.StringValue()

			masked, err := rule.Apply(original)
			if err != nil {
				e.logger.Warn("Skipping rule with unsupported strategy",
					zap.Int("rule", i),
					zap.String("mask_type", string(rule.MaskType)),
					zap.Error(err))
				e.metrics.RecordMaskFailure(failureInvalidRule)
				stats.SkippedRules++
				break
			}

			identifier := DeriveIdentifier(conversationID, original, rule.Identifier)

			start := time.Now()
			err = e.binder.Bind(ctx, conversationID, identifier, original, masked)
			e.metrics.RecordStoreOp("bind", time.Since(start), err)
			if err != nil {
				// Fail closed: without a stored mapping the value could
				// never be recovered, so redact it outright.
				e.logger.Error("Mapping write failed, redacting field",
					zap.String("location", match.Location),
					zap.String("identifier", identifier),
					zap.Error(err))
				e.metrics.RecordMaskFailure(failureStoreUnavailable)
				match.Node.Replace(document.String(RedactedMarker))
				stats.Redacted++
				continue
			}

			if rule.AddFlag {
				match.Node.Replace(NewEnvelope(masked, rule.Identifier))
			} else {
				match.Node.Replace(document.String(masked))
			}
			e.metrics.RecordFieldMasked(string(rule.MaskType))
			stats.Masked++
		}
	}

	tracing.SetPipelineCounts(span, stats.Masked+stats.Redacted, stats.Masked)
	tracing.SetSuccess(span)

	e.logger.Info("Masked response",
		zap.String("conversation_id", conversationID),
		zap.Int("rules", len(rules)),
		zap.Int("masked", stats.Masked),
		zap.Int("redacted", stats.Redacted),
		zap.Int("skipped_rules", stats.SkippedRules))

	return out, stats
}

// Cleanup deletes every mapping scoped to the conversation and returns the
// count. Idempotent.
func (e *Engine) Cleanup(ctx context.Context, conversationID string) (int, error) {
	ctx, span := tracing.PipelineSpan(ctx, "cleanup", conversationID)
	defer span.End()

	start := time.Now()
	deleted, err := e.binder.Cleanup(ctx, conversationID)
	e.metrics.RecordStoreOp("cleanup", time.Since(start), err)
	if err != nil {
		tracing.RecordError(span, err)
		e.logger.Error("Conversation cleanup failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return 0, apperrors.NewStoreUnavailable("cleanup", err).
			WithSuggestion("The store may be unreachable; mappings still expire by TTL")
	}

	tracing.SetSuccess(span)
	e.logger.Info("Cleaned up conversation",
		zap.String("conversation_id", conversationID),
		zap.Int("deleted", deleted))
	return deleted, nil
}
