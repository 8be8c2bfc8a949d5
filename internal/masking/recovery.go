package masking

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mergedao/masking-mcp-server/internal/document"
	"github.com/mergedao/masking-mcp-server/internal/store"
	"github.com/mergedao/masking-mcp-server/internal/tracing"
)

// Recovery methods, used as metric labels.
const (
	methodFlag       = "flag"
	methodIdentifier = "identifier"
	methodReverse    = "reverse"
	methodHeuristic  = "heuristic"
)

// bodyField is the parameters key holding the nested request body that
// nested_fields paths resolve against.
const bodyField = "body"

// Masked-shape classifiers for heuristic recovery.
var (
	fullShapeRe  = regexp.MustCompile(`^\*+$`)
	last4ShapeRe = regexp.MustCompile(`^\*+-\d{4}$`)
)

// RecoverStats summarizes one recovery run.
type RecoverStats struct {
	// Attempted counts candidate values recovery was tried on.
	Attempted int
	// Recovered counts candidates replaced with their original value.
	Recovered int
}

// Recover substitutes original values for masked placeholders in an outbound
// request's parameters. The input is never mutated; the returned document is
// structurally identical except for recovered leaves and collapsed envelopes.
//
// Candidates come from three sources: flat parameter fields whose bare name
// is in recoverable_fields (matched at any depth within their section, but
// never inside "body"), nested_fields paths resolved against the "body"
// field, and any envelope value anywhere. Per candidate the strategies run
// in strict order: envelope binding key, configured custom identifier,
// reverse lookup, shape heuristics. Recovery is best-effort; store read
// failures leave the candidate masked.
func (e *Engine) Recover(ctx context.Context, params *document.Value, cfg RecoveryConfig, conversationID string) (*document.Value, RecoverStats) {
	ctx, span := tracing.PipelineSpan(ctx, "recover", conversationID)
	defer span.End()

	out := params.Clone()
	session := &recoverySession{
		ctx:            ctx,
		engine:         e,
		cfg:            cfg,
		conversationID: conversationID,
	}

	// Configured body paths first: they carry per-path custom identifiers.
	if body := out.Field(bodyField); body != nil {
		for _, nested := range cfg.NestedFields {
			path, err := document.ParsePath(nested.Path)
			if err != nil {
				e.logger.Warn("Skipping nested field with invalid path",
					zap.String("path", nested.Path),
					zap.Error(err))
				continue
			}
			for _, match := range path.Resolve(body) {
				session.recoverNode(match.Node, nested.Identifier)
			}
		}
	}

	// Bare-name matches in the flat sections, envelopes anywhere.
	session.walkParams(out)

	tracing.SetPipelineCounts(span, session.stats.Attempted, session.stats.Recovered)
	tracing.SetSuccess(span)

	e.logger.Info("Recovered parameters",
		zap.String("conversation_id", conversationID),
		zap.Int("attempted", session.stats.Attempted),
		zap.Int("recovered", session.stats.Recovered))

	return out, session.stats
}

// recoverySession carries per-call state: the conversation scope plus lazily
// loaded mapping snapshots so heuristic scans hit the store once, not once
// per candidate.
type recoverySession struct {
	ctx            context.Context
	engine         *Engine
	cfg            RecoveryConfig
	conversationID string
	stats          RecoverStats

	originals       []string
	originalsLoaded bool
	reverse         map[string]string
	reverseLoaded   bool
}

// walkParams dispatches the top level of the parameters document. Bare-name
// matching covers the flat sections (query, header, path, params and any
// other top-level field); the request body is reachable only through
// nested_fields paths and envelopes, so names inside it never match.
func (s *recoverySession) walkParams(node *document.Value) {
	if node.Kind() != document.KindObject {
		s.walk(node, true)
		return
	}
	if _, _, ok := envelopeParts(node); ok {
		s.recoverNode(node, "")
		return
	}
	for _, name := range node.Fields() {
		child := node.Field(name)
		if name == bodyField {
			s.walk(child, false)
			continue
		}
		if s.cfg.isRecoverable(name) {
			s.recoverNode(child, s.cfg.FieldIdentifiers[name])
		}
		s.walk(child, true)
	}
}

// walk applies the always-on candidate sources below the top level:
// envelopes anywhere, and, when matchNames is set, string fields whose bare
// name is configured recoverable.
func (s *recoverySession) walk(node *document.Value, matchNames bool) {
	switch node.Kind() {
	case document.KindObject:
		if _, _, ok := envelopeParts(node); ok {
			s.recoverNode(node, "")
			return
		}
		for _, name := range node.Fields() {
			child := node.Field(name)
			if matchNames && s.cfg.isRecoverable(name) {
				s.recoverNode(child, s.cfg.FieldIdentifiers[name])
			}
			s.walk(child, matchNames)
		}
	case document.KindArray:
		for i := 0; i < node.Len(); i++ {
			s.walk(node.Index(i), matchNames)
		}
	}
}

// recoverNode attempts recovery of one candidate node in place. Envelope
// nodes always collapse to their bare value, recovered or not.
func (s *recoverySession) recoverNode(node *document.Value, customIdentifier string) {
	if masked, bindingKey, ok := envelopeParts(node); ok {
		s.stats.Attempted++
		if bindingKey != "" {
			s.engine.metrics.RecordRecoveryAttempt(methodFlag)
			if original, ok := s.lookupIdentifier(bindingKey, "lookup_flag"); ok {
				node.Replace(document.String(original))
				s.hit(methodFlag)
				return
			}
		}
		node.Replace(document.String(masked))
		if masked != "" {
			s.recoverString(node, masked, customIdentifier)
		}
		return
	}

	if !node.IsString() {
		return
	}
	s.stats.Attempted++
	s.recoverString(node, node.StringValue(), customIdentifier)
}

// recoverString runs the non-flag strategies over a bare candidate string.
func (s *recoverySession) recoverString(node *document.Value, candidate, customIdentifier string) {
	if customIdentifier != "" {
		s.engine.metrics.RecordRecoveryAttempt(methodIdentifier)
		if original, ok := s.lookupIdentifier(customIdentifier, "lookup_identifier"); ok {
			node.Replace(document.String(original))
			s.hit(methodIdentifier)
			return
		}
	}

	s.engine.metrics.RecordRecoveryAttempt(methodReverse)
	start := time.Now()
	original, err := s.engine.binder.LookupByMasked(s.ctx, s.conversationID, candidate)
	s.recordLookup("lookup_reverse", start, err)
	if err == nil {
		node.Replace(document.String(original))
		s.hit(methodReverse)
		return
	}

	// Heuristics only apply to masked-looking strings.
	if !strings.Contains(candidate, maskChar) {
		return
	}
	s.engine.metrics.RecordRecoveryAttempt(methodHeuristic)
	if original, ok := s.recoverByShape(candidate); ok {
		node.Replace(document.String(original))
		s.hit(methodHeuristic)
	}
}

// recoverByShape classifies the candidate by masked shape and scans the
// conversation's stored mappings for an original that renders to it. If two
// originals share a shape the first scanned wins; the ambiguity is inherent
// to shape matching.
func (s *recoverySession) recoverByShape(candidate string) (string, bool) {
	if fullShapeRe.MatchString(candidate) {
		return s.recoverFullShape(candidate)
	}
	if original, ok := s.recoverPartialShape(candidate); ok {
		return original, true
	}
	if last4ShapeRe.MatchString(candidate) {
		return s.recoverLast4Shape(candidate)
	}
	return "", false
}

// recoverFullShape matches an all-mask candidate against stored originals.
// An exact length match wins; otherwise any original whose default full-mask
// rendering has the candidate's length.
func (s *recoverySession) recoverFullShape(candidate string) (string, bool) {
	originals := s.loadOriginals()
	for _, original := range originals {
		if len(original) == len(candidate) {
			return original, true
		}
	}
	for _, original := range originals {
		if min(len(original), DefaultFullMaskLength) == len(candidate) {
			return original, true
		}
	}
	return "", false
}

// recoverPartialShape matches a head***tail candidate against recorded
// masked renderings sharing the same literal head and tail.
func (s *recoverySession) recoverPartialShape(candidate string) (string, bool) {
	head := candidate[:strings.Index(candidate, maskChar)]
	tail := candidate[strings.LastIndex(candidate, maskChar)+1:]

	for masked, original := range s.loadReverse() {
		if !strings.Contains(masked, maskChar) {
			continue
		}
		if strings.HasPrefix(masked, head) && strings.HasSuffix(masked, tail) {
			return original, true
		}
	}
	return "", false
}

// recoverLast4Shape matches a ****-NNNN candidate against stored originals
// by their trailing four characters.
func (s *recoverySession) recoverLast4Shape(candidate string) (string, bool) {
	last4 := candidate[len(candidate)-4:]
	for _, original := range s.loadOriginals() {
		if strings.HasSuffix(original, last4) {
			return original, true
		}
	}
	return "", false
}

// lookupIdentifier resolves a custom binding key to its original value.
// Misses and store failures both report not-found; failures are logged.
func (s *recoverySession) lookupIdentifier(bindingKey, op string) (string, bool) {
	identifier := DeriveIdentifier(s.conversationID, "", bindingKey)
	start := time.Now()
	original, err := s.engine.binder.LookupByIdentifier(s.ctx, s.conversationID, identifier)
	s.recordLookup(op, start, err)
	if err != nil {
		return "", false
	}
	return original, true
}

// loadOriginals fetches the conversation's stored original values once per
// recovery run. A store failure yields an empty snapshot: heuristics then
// find nothing and candidates stay masked.
func (s *recoverySession) loadOriginals() []string {
	if s.originalsLoaded {
		return s.originals
	}
	s.originalsLoaded = true

	start := time.Now()
	originals, err := s.engine.binder.Originals(s.ctx, s.conversationID)
	s.recordLookup("scan_originals", start, err)
	if err != nil {
		return nil
	}
	s.originals = originals
	return s.originals
}

// loadReverse fetches the conversation's masked-to-original entries once per
// recovery run, with the same fail-safe degradation as loadOriginals.
func (s *recoverySession) loadReverse() map[string]string {
	if s.reverseLoaded {
		return s.reverse
	}
	s.reverseLoaded = true

	start := time.Now()
	entries, err := s.engine.binder.ReverseEntries(s.ctx, s.conversationID)
	s.recordLookup("scan_reverse", start, err)
	if err != nil {
		return nil
	}
	s.reverse = entries
	return s.reverse
}

// recordLookup feeds store metrics and logs non-miss failures. ErrNotFound
// is a normal outcome, not a store fault.
func (s *recoverySession) recordLookup(op string, start time.Time, err error) {
	if err == store.ErrNotFound {
		s.engine.metrics.RecordStoreOp(op, time.Since(start), nil)
		return
	}
	s.engine.metrics.RecordStoreOp(op, time.Since(start), err)
	if err != nil {
		s.engine.logger.Warn("Store read failed during recovery, leaving value masked",
			zap.String("op", op),
			zap.String("conversation_id", s.conversationID),
			zap.Error(err))
	}
}

func (s *recoverySession) hit(method string) {
	s.stats.Recovered++
	s.engine.metrics.RecordRecoveryHit(method)
}
