package manager

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/monishk/shardsearch/internal/collection"
	"github.com/monishk/shardsearch/internal/store"
	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// Load scans the store's collection-meta records, rebuilds every
// collection's schema and shards, replays its documents in batches, and
// only then loads symlinks — so a symlink can never resolve to a
// collection that recovery hasn't finished restoring yet (spec.md §4.1's
// "symlink load strictly after all collections recovered").
//
// Recovery is idempotent: re-running Load against an already-populated
// Manager rebuilds each collection from the store (recovered schema,
// documents replayed into fresh shards) and replaces the registered one,
// ending in the same state; CreateCollection is not called.
func (mgr *Manager) Load(ctx context.Context, initBatchSize int) error {
	entries, err := mgr.store.Scan(ctx, store.CollectionMetaPrefix)
	if err != nil {
		return apperrors.Internal("scanning collection meta: %v", err)
	}

	haveGlobalNextID, err := mgr.store.Contains(ctx, store.NextCollectionIDKey)
	if err != nil {
		return apperrors.Internal("checking %s: %v", store.NextCollectionIDKey, err)
	}

	var maxID uint32
	haveMax := false
	for _, e := range entries {
		var mj collectionMetaJSON
		if err := json.Unmarshal(e.Value, &mj); err != nil {
			return apperrors.Internal("decoding meta for %s: %v", e.Key, err)
		}
		if err := mgr.loadCollection(ctx, mj, initBatchSize, haveGlobalNextID); err != nil {
			return err
		}
		if !haveMax || mj.ID >= maxID {
			maxID = mj.ID
			haveMax = true
		}
	}
	if haveMax {
		mgr.mu.Lock()
		if maxID+1 > mgr.nextCollID {
			mgr.nextCollID = maxID + 1
		}
		mgr.mu.Unlock()
	} else if nextRaw, found, err := mgr.store.Get(ctx, store.NextCollectionIDKey); err == nil && found {
		if v, err := strconv.ParseUint(string(nextRaw), 10, 32); err == nil {
			mgr.mu.Lock()
			mgr.nextCollID = uint32(v)
			mgr.mu.Unlock()
		}
	}

	if err := mgr.loadSymlinks(ctx); err != nil {
		return err
	}
	if err := mgr.loadOverridesAndSynonyms(ctx); err != nil {
		return err
	}
	return nil
}

func (mgr *Manager) loadCollection(ctx context.Context, mj collectionMetaJSON, initBatchSize int, haveGlobalNextID bool) error {
	sc, err := fromMetaJSON(mj)
	if err != nil {
		return apperrors.Internal("rebuilding schema for `%s`: %v", mj.Name, err)
	}

	coll := collection.New(mj.ID, mj.Name, mj.CreatedAt, mj.NumMemoryShards, sc, mgr.store, mgr.m)
	coll.SetAnalytics(mgr.analytics)
	mgr.wireCache(coll)

	nextSeqRaw, found, err := mgr.store.Get(ctx, store.NextSeqIDKey(mj.Name))
	if err != nil {
		return apperrors.Internal("reading next_seq_id for `%s`: %v", mj.Name, err)
	}
	if !found {
		if haveGlobalNextID {
			return apperrors.Internal("missing next_seq_id for `%s` while %s is present", mj.Name, store.NextCollectionIDKey)
		}
	} else if v, err := strconv.ParseUint(string(nextSeqRaw), 10, 32); err == nil {
		coll.SetNextSeqID(uint32(v))
	}

	batchSize := initBatchSize
	if batchSize < mj.NumMemoryShards {
		batchSize = mj.NumMemoryShards
	}
	if err := mgr.replayDocuments(ctx, coll, batchSize); err != nil {
		return apperrors.Internal("replaying documents for `%s`: %v", mj.Name, err)
	}

	mgr.mu.Lock()
	mgr.byName[mj.Name] = coll
	mgr.byID[mj.ID] = coll
	mgr.mu.Unlock()
	return nil
}

// replayDocuments streams a collection's persisted documents back into its
// shards in fixed-size batches (spec.md §4.1's "batches of
// max(init_batch_size, num_shards)"), recording
// RecoveryDocumentsIndexedTotal per batch.
func (mgr *Manager) replayDocuments(ctx context.Context, coll *collection.Collection, batchSize int) error {
	entries, err := mgr.store.Scan(ctx, store.DocumentPrefix(coll.ID))
	if err != nil {
		return err
	}
	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		for _, e := range entries[start:end] {
			if err := coll.Restore(e.Value); err != nil {
				return err
			}
		}
		if mgr.m != nil {
			mgr.m.RecoveryDocumentsIndexedTotal.WithLabelValues(coll.Name).Add(float64(end - start))
		}
	}
	return nil
}

func (mgr *Manager) loadSymlinks(ctx context.Context) error {
	entries, err := mgr.store.Scan(ctx, store.SymlinkPrefix)
	if err != nil {
		return apperrors.Internal("scanning symlinks: %v", err)
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	for _, e := range entries {
		alias := strings.TrimPrefix(e.Key, store.SymlinkPrefix)
		mgr.symlinks[alias] = string(e.Value)
	}
	return nil
}

// loadOverridesAndSynonyms restores every collection's override and
// synonym rules. It runs after collections are registered so lookups by
// name succeed.
func (mgr *Manager) loadOverridesAndSynonyms(ctx context.Context) error {
	mgr.mu.RLock()
	names := make([]string, 0, len(mgr.byName))
	for name := range mgr.byName {
		names = append(names, name)
	}
	mgr.mu.RUnlock()

	for _, name := range names {
		coll, err := mgr.GetCollection(name)
		if err != nil {
			continue
		}
		if err := loadRulesInto(ctx, mgr.store, name, coll); err != nil {
			return err
		}
	}
	return nil
}
