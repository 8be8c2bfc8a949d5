package masking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mergedao/masking-mcp-server/internal/store"
	"github.com/mergedao/masking-mcp-server/internal/tracing"
)

// Identifier format: SENSITIVE::{conversation_id}::{custom-or-hash}.
// The conversation id is embedded in both the identifier and the store key
// prefix, so cross-conversation lookups are impossible by construction.
const identifierPrefix = "SENSITIVE"

// Store key layout. Everything for one conversation shares
// "sensitive:{conversation}:" so cleanup is a single prefix delete.
const (
	keyNamespace  = "sensitive"
	forwardSubkey = "id"  // identifier -> original value
	reverseSubkey = "rev" // masked string -> original value
)

// DefaultTTL is the mapping lifetime when the caller configures nothing.
const DefaultTTL = 7 * 24 * time.Hour

// DeriveIdentifier computes the stable identifier binding an original value
// within one conversation. A caller-supplied custom identifier takes
// precedence; otherwise the identifier is a 128-bit content hash, so
// re-masking the identical value re-derives the identical identifier.
func DeriveIdentifier(conversationID, originalValue, customIdentifier string) string {
	suffix := customIdentifier
	if suffix == "" {
		sum := sha256.Sum256([]byte(originalValue))
		suffix = hex.EncodeToString(sum[:16])
	}
	return fmt.Sprintf("%s::%s::%s", identifierPrefix, conversationID, suffix)
}

// ConversationPrefix returns the store key prefix owning every mapping of
// one conversation.
func ConversationPrefix(conversationID string) string {
	return fmt.Sprintf("%s:%s:", keyNamespace, conversationID)
}

func forwardKey(conversationID, identifier string) string {
	return ConversationPrefix(conversationID) + forwardSubkey + ":" + identifier
}

func reverseKey(conversationID, maskedValue string) string {
	return ConversationPrefix(conversationID) + reverseSubkey + ":" + maskedValue
}

// Binder manages the forward (identifier -> original) and reverse
// (masked -> original) mappings in the store collaborator. It keeps nothing
// in process memory across calls.
type Binder struct {
	store   store.Store
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// defaultStoreTimeout bounds store operations when the config provides none.
const defaultStoreTimeout = 2 * time.Second

// NewBinder creates a binder writing mappings with the given TTL and
// bounding every store call with timeout.
func NewBinder(s store.Store, ttl, timeout time.Duration, logger *zap.Logger) *Binder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binder{store: s, ttl: ttl, timeout: timeout, logger: logger}
}

// Bind persists both mappings for a masked value. Writes are blind upserts:
// re-binding the same identifier overwrites (idempotent), and if two distinct
// originals mask to the identical string the later reverse write wins.
// Any write failure is returned so the pipeline can fail closed.
func (b *Binder) Bind(ctx context.Context, conversationID, identifier, originalValue, maskedValue string) error {
	ctx, span := tracing.StoreSpan(ctx, "bind")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.store.Set(ctx, forwardKey(conversationID, identifier), originalValue, b.ttl); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if err := b.store.Set(ctx, reverseKey(conversationID, maskedValue), originalValue, b.ttl); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// LookupByIdentifier returns the original value bound to an identifier,
// or store.ErrNotFound.
func (b *Binder) LookupByIdentifier(ctx context.Context, conversationID, identifier string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Get(ctx, forwardKey(conversationID, identifier))
}

// LookupByMasked returns the original value whose masked rendering is
// exactly maskedValue, or store.ErrNotFound.
func (b *Binder) LookupByMasked(ctx context.Context, conversationID, maskedValue string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.store.Get(ctx, reverseKey(conversationID, maskedValue))
}

// Originals lists every original value stored for the conversation. Used by
// heuristic recovery, which has only a masked shape to go on.
func (b *Binder) Originals(ctx context.Context, conversationID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	prefix := ConversationPrefix(conversationID) + forwardSubkey + ":"
	keys, err := b.store.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	originals := make([]string, 0, len(keys))
	for _, key := range keys {
		value, err := b.store.Get(ctx, key)
		if err == store.ErrNotFound {
			continue // expired between scan and read
		}
		if err != nil {
			return nil, err
		}
		originals = append(originals, value)
	}
	return originals, nil
}

// ReverseEntries lists masked rendering -> original value for the
// conversation. The masked rendering is recovered from the key suffix.
func (b *Binder) ReverseEntries(ctx context.Context, conversationID string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	prefix := ConversationPrefix(conversationID) + reverseSubkey + ":"
	keys, err := b.store.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]string, len(keys))
	for _, key := range keys {
		value, err := b.store.Get(ctx, key)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		entries[key[len(prefix):]] = value
	}
	return entries, nil
}

// Cleanup deletes every mapping scoped to the conversation immediately,
// without waiting for TTL expiry. Idempotent: an unknown or already-clean
// conversation id deletes zero keys and raises no error.
func (b *Binder) Cleanup(ctx context.Context, conversationID string) (int, error) {
	ctx, span := tracing.StoreSpan(ctx, "cleanup")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	deleted, err := b.store.DeleteByPrefix(ctx, ConversationPrefix(conversationID))
	tracing.RecordError(span, err)
	return deleted, err
}
