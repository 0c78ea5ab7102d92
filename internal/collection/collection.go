// Package collection implements the per-collection document lifecycle,
// shard fan-out, ranking, faceting, and highlighting described in
// spec.md §4.2.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/monishk/shardsearch/internal/analytics"
	"github.com/monishk/shardsearch/internal/schema"
	"github.com/monishk/shardsearch/internal/shard"
	"github.com/monishk/shardsearch/internal/store"
	"github.com/monishk/shardsearch/pkg/metrics"

	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// Collection is a named, schema-bound set of documents split across a
// fixed number of shards.
type Collection struct {
	ID        uint32
	Name      string
	CreatedAt int64
	NumShards int
	Schema    *schema.Schema

	kv        store.KV
	m         *metrics.Metrics
	analytics *analytics.Collector
	onWrite   func()

	mu        sync.RWMutex
	nextSeqID uint32
	idIndex   map[string]uint32 // document id -> seq_id, for lookup/delete/dup-check

	shards []*shard.Shard

	overrides map[string]Override
	synonyms  map[string]Synonym
}

// New constructs an empty Collection. Recovery (internal/manager) calls
// Add to replay documents from the store; CreateCollection calls it for a
// brand new one.
func New(id uint32, name string, createdAt int64, numShards int, sc *schema.Schema, kv store.KV, m *metrics.Metrics) *Collection {
	shards := make([]*shard.Shard, numShards)
	for i := range shards {
		shards[i] = shard.New()
	}
	return &Collection{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
		NumShards: numShards,
		Schema:    sc,
		kv:        kv,
		m:         m,
		idIndex:   make(map[string]uint32),
		shards:    shards,
		overrides: make(map[string]Override),
		synonyms:  make(map[string]Synonym),
	}
}

// SetAnalytics attaches an event collector; nil disables event emission.
func (c *Collection) SetAnalytics(a *analytics.Collector) {
	c.analytics = a
}

// SetOnWrite attaches a callback invoked after every successful Add/Remove,
// so the manager's query cache can invalidate a collection's cached
// results the moment its documents change.
func (c *Collection) SetOnWrite(fn func()) {
	c.onWrite = fn
}

// NextSeqID returns the next sequence id that would be assigned, without
// mutating state — used by recovery to restore the counter.
func (c *Collection) NextSeqID() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextSeqID
}

// SetNextSeqID restores the counter during recovery.
func (c *Collection) SetNextSeqID(v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSeqID = v
}

// shardFor returns the shard a seq_id routes to: seq_id mod num_shards,
// the collection's only routing rule (spec.md §2, §8 "shard routing").
func (c *Collection) shardFor(seqID uint32) *shard.Shard {
	return c.shards[int(seqID)%c.NumShards]
}

// Add validates raw against the schema, assigns a seq_id, persists the
// document body, and indexes it into the owning shard. It returns the
// assigned seq_id and resolved document id.
func (c *Collection) Add(ctx context.Context, raw map[string]any) (uint32, string, error) {
	id, values, err := schema.Normalize(c.Schema, raw)
	if err != nil {
		return 0, "", err
	}

	c.mu.Lock()
	if id != "" {
		if _, exists := c.idIndex[id]; exists {
			c.mu.Unlock()
			return 0, "", apperrors.Conflict("A document with id `%s` already exists.", id)
		}
	}
	seqID := c.nextSeqID
	newNext := seqID + 1
	if id == "" {
		id = fmt.Sprintf("%d", seqID)
	}
	c.mu.Unlock()

	body, err := marshalDocument(raw, id, seqID)
	if err != nil {
		return 0, "", apperrors.Internal("marshalling document: %v", err)
	}

	start := time.Now()
	err = c.kv.BatchWrite(ctx, []store.WriteOp{
		store.Put(docKey(c.ID, seqID), body),
		store.Put(store.NextSeqIDKey(c.Name), []byte(fmt.Sprintf("%d", newNext))),
	})
	if c.m != nil {
		c.m.KVBatchWriteDuration.WithLabelValues(c.Name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return 0, "", apperrors.Internal("persisting document: %v", err)
	}

	c.mu.Lock()
	c.nextSeqID = newNext
	c.idIndex[id] = seqID
	c.mu.Unlock()

	shardIdx := int(seqID) % c.NumShards
	c.shardFor(seqID).Add(c.Schema, seqID, values)
	if c.m != nil {
		c.m.RecoveryDocumentsIndexedTotal.WithLabelValues(c.Name).Inc()
	}
	if c.analytics != nil {
		c.analytics.Track(analytics.IndexEvent{
			Type:       analytics.EventIndexDoc,
			Collection: c.Name,
			DocumentID: id,
			ShardID:    shardIdx,
			SizeBytes:  len(body),
			LatencyMs:  time.Since(start).Milliseconds(),
			Timestamp:  time.Now(),
		})
	}
	if c.onWrite != nil {
		c.onWrite()
	}
	return seqID, id, nil
}

// Restore re-indexes a document body exactly as persisted by Add (id and
// _seq_id already stamped in) without touching the KV store; it advances
// the in-memory seq_id counter past the restored seq_id if needed — used by
// recovery to replay documents into fresh shards.
func (c *Collection) Restore(body []byte) error {
	raw, err := schema.Decode(body)
	if err != nil {
		return err
	}
	seqRaw, ok := raw["_seq_id"]
	if !ok {
		return apperrors.Internal("persisted document missing _seq_id")
	}
	seqNum, ok := seqRaw.(json.Number)
	if !ok {
		return apperrors.Internal("persisted document has malformed _seq_id")
	}
	seqID64, err := seqNum.Int64()
	if err != nil {
		return apperrors.Internal("persisted document has malformed _seq_id: %v", err)
	}
	seqID := uint32(seqID64)
	delete(raw, "_seq_id")

	id, _ := raw["id"].(string)

	_, values, err := schema.Normalize(c.Schema, raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if id != "" {
		c.idIndex[id] = seqID
	}
	if seqID >= c.nextSeqID {
		c.nextSeqID = seqID + 1
	}
	c.mu.Unlock()

	c.shardFor(seqID).Add(c.Schema, seqID, values)
	return nil
}

// Remove deletes the document identified by id: from the KV store, from
// the id index, and from its owning shard's in-memory structures.
func (c *Collection) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	seqID, ok := c.idIndex[id]
	if !ok {
		c.mu.Unlock()
		return apperrors.NotFound("Could not find a document with id `%s`.", id)
	}
	delete(c.idIndex, id)
	c.mu.Unlock()

	if err := c.kv.Remove(ctx, docKey(c.ID, seqID)); err != nil {
		return apperrors.Internal("removing document: %v", err)
	}
	c.shardFor(seqID).Remove(c.Schema, seqID)
	if c.analytics != nil {
		c.analytics.Track(analytics.IndexEvent{
			Type:       analytics.EventRemoveDoc,
			Collection: c.Name,
			DocumentID: id,
			Timestamp:  time.Now(),
		})
	}
	if c.onWrite != nil {
		c.onWrite()
	}
	return nil
}

// Get returns the raw JSON body of the document identified by id.
func (c *Collection) Get(ctx context.Context, id string) ([]byte, error) {
	c.mu.RLock()
	seqID, ok := c.idIndex[id]
	c.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("Could not find a document with id `%s`.", id)
	}
	body, ok, err := c.kv.Get(ctx, docKey(c.ID, seqID))
	if err != nil {
		return nil, apperrors.Internal("reading document: %v", err)
	}
	if !ok {
		return nil, apperrors.NotFound("Could not find a document with id `%s`.", id)
	}
	return body, nil
}

// DocCount sums the live document count across every shard.
func (c *Collection) DocCount() int {
	total := 0
	for _, sh := range c.shards {
		total += sh.DocCount()
	}
	return total
}

func docKey(collID, seqID uint32) string { return store.DocumentKey(collID, seqID) }
