package masking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergedao/masking-mcp-server/internal/document"
)

func TestRecoverEnvelopeRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	doc := docFromJSON(t, `{"data":{"auth":{"token":"eyJhbGciOiJIUzI1NiJ9.body.sig"}}}`)
	rules := []Rule{{
		Path:          "data.auth.token",
		MaskType:      MaskTypeFull,
		MaxMaskLength: 8,
		AddFlag:       true,
		Identifier:    "auth_token",
	}}
	masked, stats := engine.Mask(ctx, doc, rules, "conv-1")
	require.Equal(t, 1, stats.Masked)

	// The envelope recovers regardless of where it lands in the next request
	params := document.Object()
	params.SetField("anything", masked.Field("data").Field("auth").Field("token").Clone())

	out, rstats := engine.Recover(ctx, params, RecoveryConfig{}, "conv-1")

	assert.Equal(t, 1, rstats.Recovered)
	assert.Equal(t, "eyJhbGciOiJIUzI1NiJ9.body.sig", out.Field("anything").StringValue())
}

func TestRecoverEnvelopeAlwaysCollapses(t *testing.T) {
	engine, _ := newTestEngine(t)

	params := docFromJSON(t, `{"token":{"__sensitive":true,"value":"********","__binding_key":"never_bound"}}`)

	out, stats := engine.Recover(context.Background(), params, RecoveryConfig{}, "conv-1")

	assert.Equal(t, 0, stats.Recovered)
	// Unrecovered envelopes still unwrap to the bare masked string
	assert.Equal(t, "********", out.Field("token").StringValue())
}

func TestRecoverReverseLookupRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	doc := docFromJSON(t, `{"api_key":"sk-1234567890abcdef"}`)
	rules := []Rule{{Path: "api_key", MaskType: MaskTypePartial, MaskPercentage: 0.6, MaxMaskLength: 10}}
	masked, _ := engine.Mask(ctx, doc, rules, "conv-1")
	maskedValue := masked.Field("api_key").StringValue()
	require.NotEqual(t, "sk-1234567890abcdef", maskedValue)

	params := document.Object()
	query := document.Object()
	query.SetField("api_key", document.String(maskedValue))
	params.SetField("query", query)

	cfg := RecoveryConfig{RecoverableFields: []string{"api_key"}}
	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "sk-1234567890abcdef", out.Field("query").Field("api_key").StringValue())
}

func TestRecoverBareNameMatchesAtAnyDepth(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	doc := docFromJSON(t, `{"token":"deep-secret-token"}`)
	rules := []Rule{{Path: "token", MaskType: MaskTypePartial}}
	masked, _ := engine.Mask(ctx, doc, rules, "conv-1")
	maskedValue := masked.Field("token").StringValue()

	params := docFromJSON(t, `{"header":{"auth":{"token":"`+maskedValue+`"}}}`)
	cfg := RecoveryConfig{RecoverableFields: []string{"token"}}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "deep-secret-token",
		out.Field("header").Field("auth").Field("token").StringValue())
}

func TestRecoverNestedBodyPathWithCustomIdentifier(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Masked under a custom identifier, so the stored identifier is
	// SENSITIVE::conv-1::card_number rather than the content hash.
	doc := docFromJSON(t, `{"data":{"payment":{"credit_card":"4111111111111111"}}}`)
	rules := []Rule{{
		Path:       "data.payment.credit_card",
		MaskType:   MaskTypePattern,
		Pattern:    "****-{last4}",
		Identifier: "card_number",
	}}
	masked, _ := engine.Mask(ctx, doc, rules, "conv-1")
	require.Equal(t, "****-1111",
		masked.Field("data").Field("payment").Field("credit_card").StringValue())

	params := docFromJSON(t, `{"body":{"payment":{"card":"****-1111"}}}`)
	cfg := RecoveryConfig{
		NestedFields: []NestedField{{Path: "payment.card", Identifier: "card_number"}},
	}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "4111111111111111",
		out.Field("body").Field("payment").Field("card").StringValue())
}

func TestRecoverFullShapeHeuristic(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Bound under a pattern rendering, so the reverse map has no all-star
	// entry and only the shape heuristic can connect the candidate.
	id := DeriveIdentifier("conv-1", "abcd1234", "")
	require.NoError(t, engine.binder.Bind(ctx, "conv-1", id, "abcd1234", "a...4"))

	params := docFromJSON(t, `{"query":{"secret":"********"}}`)
	cfg := RecoveryConfig{RecoverableFields: []string{"secret"}}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "abcd1234", out.Field("query").Field("secret").StringValue())
}

func TestRecoverFullShapeDefaultLength(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Original longer than the default cap: an 8-star candidate still
	// matches via the default full-mask rendering.
	original := "a-much-longer-secret-value"
	id := DeriveIdentifier("conv-1", original, "")
	require.NoError(t, engine.binder.Bind(ctx, "conv-1", id, original, "a...e"))

	params := docFromJSON(t, `{"query":{"secret":"********"}}`)
	cfg := RecoveryConfig{RecoverableFields: []string{"secret"}}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, original, out.Field("query").Field("secret").StringValue())
}

func TestRecoverPartialShapeHeuristic(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Recorded rendering "my-****-value"; the candidate carries a different
	// star count, so exact reverse lookup misses but head/tail match.
	id := DeriveIdentifier("conv-1", "my-secret-value", "")
	require.NoError(t, engine.binder.Bind(ctx, "conv-1", id, "my-secret-value", "my-****-value"))

	params := docFromJSON(t, `{"query":{"secret":"my-******-value"}}`)
	cfg := RecoveryConfig{RecoverableFields: []string{"secret"}}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "my-secret-value", out.Field("query").Field("secret").StringValue())
}

func TestRecoverLast4Heuristic(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Forward mapping only: no reverse entry and no partial-shape rendering
	// to match, so the trailing-digits heuristic is the last resort.
	id := DeriveIdentifier("conv-1", "4111111111111111", "")
	require.NoError(t, engine.binder.Bind(ctx, "conv-1", id, "4111111111111111", "hidden"))
	deleted, err := engine.binder.store.DeleteByPrefix(ctx, ConversationPrefix("conv-1")+reverseSubkey+":")
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	params := docFromJSON(t, `{"params":{"card":"****-1111"}}`)
	cfg := RecoveryConfig{RecoverableFields: []string{"card"}}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "4111111111111111", out.Field("params").Field("card").StringValue())
}

func TestRecoverBindingKeyBeatsReverseLookup(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Both the binding key and the reverse map can resolve "********", to
	// different originals; the binding key must win.
	require.NoError(t, engine.binder.Bind(ctx, "conv-1",
		DeriveIdentifier("conv-1", "", "auth_token"), "flag-original", "f...l"))
	require.NoError(t, engine.binder.Bind(ctx, "conv-1",
		DeriveIdentifier("conv-1", "reverse-original", ""), "reverse-original", "********"))

	params := docFromJSON(t, `{"token":{"__sensitive":true,"value":"********","__binding_key":"auth_token"}}`)

	out, stats := engine.Recover(ctx, params, RecoveryConfig{}, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "flag-original", out.Field("token").StringValue())
}

func TestRecoverCustomIdentifierBeatsReverseLookup(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.binder.Bind(ctx, "conv-1",
		DeriveIdentifier("conv-1", "", "api_key"), "identifier-original", "i...l"))
	require.NoError(t, engine.binder.Bind(ctx, "conv-1",
		DeriveIdentifier("conv-1", "reverse-original", ""), "reverse-original", "ab****ef"))

	// "ab****ef" has an exact reverse entry, but the field's configured
	// identifier points elsewhere and takes precedence.
	params := docFromJSON(t, `{"query":{"key":"ab****ef"}}`)
	cfg := RecoveryConfig{
		RecoverableFields: []string{"key"},
		FieldIdentifiers:  map[string]string{"key": "api_key"},
	}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "identifier-original", out.Field("query").Field("key").StringValue())
}

func TestRecoverReverseLookupBeatsHeuristic(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// The full-shape heuristic would pick the 8-character original for an
	// 8-star candidate; the exact reverse entry must be consulted first.
	require.NoError(t, engine.binder.Bind(ctx, "conv-1",
		DeriveIdentifier("conv-1", "12345678", ""), "12345678", "xx****xx"))
	require.NoError(t, engine.binder.Bind(ctx, "conv-1",
		DeriveIdentifier("conv-1", "reverse-original", ""), "reverse-original", "********"))

	params := docFromJSON(t, `{"query":{"secret":"********"}}`)
	cfg := RecoveryConfig{RecoverableFields: []string{"secret"}}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "reverse-original", out.Field("query").Field("secret").StringValue())
}

func TestRecoverBareNameNeverMatchesInsideBody(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	doc := docFromJSON(t, `{"token":"flat-section-secret"}`)
	rules := []Rule{{Path: "token", MaskType: MaskTypePartial}}
	masked, _ := engine.Mask(ctx, doc, rules, "conv-1")
	maskedValue := masked.Field("token").StringValue()

	params := document.Object()
	query := document.Object()
	query.SetField("token", document.String(maskedValue))
	params.SetField("query", query)
	body := document.Object()
	body.SetField("token", document.String(maskedValue))
	params.SetField("body", body)

	cfg := RecoveryConfig{RecoverableFields: []string{"token"}}
	out, stats := engine.Recover(ctx, params, cfg, "conv-1")

	// The flat section recovers; the same name inside the body is reachable
	// only through nested_fields and stays masked.
	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "flat-section-secret", out.Field("query").Field("token").StringValue())
	assert.Equal(t, maskedValue, out.Field("body").Field("token").StringValue())
}

func TestRecoverEnvelopeInsideBody(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	doc := docFromJSON(t, `{"secret":"body-envelope-secret"}`)
	rules := []Rule{{Path: "secret", MaskType: MaskTypeFull, AddFlag: true, Identifier: "body_secret"}}
	masked, _ := engine.Mask(ctx, doc, rules, "conv-1")

	params := document.Object()
	body := document.Object()
	body.SetField("wrapped", masked.Field("secret").Clone())
	params.SetField("body", body)

	// No nested_fields configured: the envelope alone carries recovery
	out, stats := engine.Recover(ctx, params, RecoveryConfig{}, "conv-1")

	assert.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "body-envelope-secret", out.Field("body").Field("wrapped").StringValue())
}

func TestRecoverLeavesUnknownMaskedValue(t *testing.T) {
	engine, _ := newTestEngine(t)

	params := docFromJSON(t, `{"query":{"secret":"****","other":"plain"}}`)
	cfg := RecoveryConfig{RecoverableFields: []string{"secret", "other"}}

	out, stats := engine.Recover(context.Background(), params, cfg, "conv-1")

	assert.Equal(t, 0, stats.Recovered)
	assert.Equal(t, "****", out.Field("query").Field("secret").StringValue())
	assert.Equal(t, "plain", out.Field("query").Field("other").StringValue())
}

func TestRecoverCrossConversationIsolation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	doc := docFromJSON(t, `{"secret":"conversation-a-secret"}`)
	rules := []Rule{{Path: "secret", MaskType: MaskTypePartial}}
	masked, _ := engine.Mask(ctx, doc, rules, "conv-a")
	maskedValue := masked.Field("secret").StringValue()

	params := document.Object()
	params.SetField("secret", document.String(maskedValue))
	cfg := RecoveryConfig{RecoverableFields: []string{"secret"}}

	out, stats := engine.Recover(ctx, params, cfg, "conv-b")

	assert.Equal(t, 0, stats.Recovered)
	assert.Equal(t, maskedValue, out.Field("secret").StringValue())
}

func TestRecoverIgnoresUnconfiguredFields(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	doc := docFromJSON(t, `{"secret":"the-real-value"}`)
	rules := []Rule{{Path: "secret", MaskType: MaskTypePartial}}
	masked, _ := engine.Mask(ctx, doc, rules, "conv-1")
	maskedValue := masked.Field("secret").StringValue()

	params := document.Object()
	params.SetField("secret", document.String(maskedValue))

	// Field name not configured, no envelope: value passes through masked
	out, stats := engine.Recover(ctx, params, RecoveryConfig{}, "conv-1")

	assert.Equal(t, 0, stats.Recovered)
	assert.Equal(t, maskedValue, out.Field("secret").StringValue())
}

func TestRecoverFailSafeOnStoreError(t *testing.T) {
	engine := NewEngine(&faultyStore{err: errors.New("timeout")}, Options{})

	params := docFromJSON(t, `{
		"query":{"secret":"ab****ef"},
		"token":{"__sensitive":true,"value":"********","__binding_key":"auth_token"}
	}`)
	cfg := RecoveryConfig{RecoverableFields: []string{"secret"}}

	out, stats := engine.Recover(context.Background(), params, cfg, "conv-1")

	assert.Equal(t, 0, stats.Recovered)
	// Masked values stay masked; envelopes still collapse
	assert.Equal(t, "ab****ef", out.Field("query").Field("secret").StringValue())
	assert.Equal(t, "********", out.Field("token").StringValue())
}

func TestRecoverDoesNotMutateInput(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	doc := docFromJSON(t, `{"secret":"original-value"}`)
	rules := []Rule{{Path: "secret", MaskType: MaskTypePartial}}
	masked, _ := engine.Mask(ctx, doc, rules, "conv-1")
	maskedValue := masked.Field("secret").StringValue()

	params := document.Object()
	params.SetField("secret", document.String(maskedValue))
	cfg := RecoveryConfig{RecoverableFields: []string{"secret"}}

	out, stats := engine.Recover(ctx, params, cfg, "conv-1")
	require.Equal(t, 1, stats.Recovered)
	assert.Equal(t, "original-value", out.Field("secret").StringValue())
	assert.Equal(t, maskedValue, params.Field("secret").StringValue())
}
