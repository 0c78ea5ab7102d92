// Package manager implements the collection manager: lifecycle,
// persistence layout, recovery, symlink aliasing, and request dispatch to
// a collection, per spec.md §4.1.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/monishk/shardsearch/internal/analytics"
	"github.com/monishk/shardsearch/internal/cache"
	"github.com/monishk/shardsearch/internal/collection"
	"github.com/monishk/shardsearch/internal/schema"
	"github.com/monishk/shardsearch/internal/store"
	"github.com/monishk/shardsearch/pkg/metrics"

	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// AuthManager is the external auth key store spec.md §1 places out of
// scope; Manager.AuthKeyMatches delegates to it once the bootstrap key is
// ruled out.
type AuthManager interface {
	KeyMatches(ctx context.Context, key, action string, collections []string, outParams map[string]string) (bool, error)
}

// Manager is the process-wide registry of collections. Multiple
// independent Managers may be constructed over distinct KV stores (spec.md
// §9's "process-wide state" design note).
type Manager struct {
	store        store.KV
	auth         AuthManager
	bootstrapKey string
	maxMemRatio  float64
	m            *metrics.Metrics
	analytics    *analytics.Collector
	cache        *cache.QueryCache

	mu         sync.RWMutex
	byName     map[string]*collection.Collection
	byID       map[uint32]*collection.Collection
	symlinks   map[string]string
	nextCollID uint32
}

// New constructs a Manager bound to store. Collections must be populated
// via Load (recovery) or CreateCollection.
func New(kv store.KV, auth AuthManager, maxMemoryRatio float64, bootstrapKey string, m *metrics.Metrics, ac *analytics.Collector) *Manager {
	return &Manager{
		store:        kv,
		auth:         auth,
		bootstrapKey: bootstrapKey,
		maxMemRatio:  maxMemoryRatio,
		m:            m,
		analytics:    ac,
		byName:       make(map[string]*collection.Collection),
		byID:         make(map[uint32]*collection.Collection),
		symlinks:     make(map[string]string),
	}
}

// SetCache attaches the query result cache. A nil cache (the default) means
// DoSearch always executes against the shards directly — used by tests and
// by deployments that run without Redis.
func (mgr *Manager) SetCache(c *cache.QueryCache) {
	mgr.cache = c
}

// wireCache hooks a freshly constructed collection's writes into cache
// invalidation, so a stale cached page never outlives the documents it
// summarized.
func (mgr *Manager) wireCache(coll *collection.Collection) {
	name := coll.Name
	coll.SetOnWrite(func() {
		if mgr.cache != nil {
			_ = mgr.cache.InvalidateCollection(context.Background(), name)
		}
	})
}

// CreateCollection validates and registers a brand-new collection, per
// spec.md §4.1: fails 409 if the name exists, validates the default
// sorting field, assigns the next collection id, and persists
// {next_seq_id=0, meta, NEXT_COLLECTION_ID+1} as one atomic batch before
// registering in memory — batch-then-increment, so a failed write never
// advances the id.
func (mgr *Manager) CreateCollection(ctx context.Context, name string, numShards int, fields []schema.Field, defaultSortingField string, createdAt int64, indexAllFields bool) (*collection.Collection, error) {
	if numShards < 1 {
		return nil, apperrors.BadRequest("num_shards must be at least 1")
	}
	sc, err := schema.New(fields, defaultSortingField, indexAllFields)
	if err != nil {
		return nil, err
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if _, exists := mgr.byName[name]; exists {
		return nil, apperrors.Conflict("A collection with name `%s` already exists.", name)
	}
	if ok, _ := mgr.store.Contains(ctx, store.MetaKey(name)); ok {
		return nil, apperrors.Conflict("A collection with name `%s` already exists.", name)
	}

	id := mgr.nextCollID
	metaJSON, err := json.Marshal(toMetaJSON(id, name, createdAt, numShards, sc))
	if err != nil {
		return nil, apperrors.Internal("marshalling collection meta: %v", err)
	}

	err = mgr.store.BatchWrite(ctx, []store.WriteOp{
		store.Put(store.NextSeqIDKey(name), []byte("0")),
		store.Put(store.MetaKey(name), metaJSON),
		store.Put(store.NextCollectionIDKey, []byte(fmt.Sprintf("%d", id+1))),
	})
	if err != nil {
		return nil, apperrors.Internal("persisting new collection: %v", err)
	}

	mgr.nextCollID = id + 1
	coll := collection.New(id, name, createdAt, numShards, sc, mgr.store, mgr.m)
	coll.SetAnalytics(mgr.analytics)
	mgr.wireCache(coll)
	mgr.byName[name] = coll
	mgr.byID[id] = coll
	return coll, nil
}

// GetCollection resolves name to a directly registered collection, falling
// back to a single (non-chaining) symlink lookup. A real collection always
// wins over a symlink of the same name (spec.md §8 "symlink non-shadowing").
func (mgr *Manager) GetCollection(name string) (*collection.Collection, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	if c, ok := mgr.byName[name]; ok {
		return c, nil
	}
	if target, ok := mgr.symlinks[name]; ok {
		if c, ok := mgr.byName[target]; ok {
			return c, nil
		}
	}
	return nil, apperrors.NotFound("No collection with name `%s` found.", name)
}

// GetCollectionByID looks up a collection by numeric id.
func (mgr *Manager) GetCollectionByID(id uint32) (*collection.Collection, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	c, ok := mgr.byID[id]
	return c, ok
}

// Collections returns every registered collection, descending by
// collection id (creation order reversed) — supplemented from
// original_source/'s CollectionManager::get_collections().
func (mgr *Manager) Collections() []*collection.Collection {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	out := make([]*collection.Collection, 0, len(mgr.byID))
	for _, c := range mgr.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// dropInMemory removes name from the registry without touching the store,
// used both by DropCollection and by recovery's idempotency guard.
func (mgr *Manager) dropInMemory(name string) {
	c, ok := mgr.byName[name]
	if !ok {
		return
	}
	delete(mgr.byName, name)
	delete(mgr.byID, c.ID)
}

// DropCollection removes a collection's documents, then its counter, then
// its meta key, in that order (spec.md §3 invariant), so a partial failure
// never leaves an orphan meta record.
func (mgr *Manager) DropCollection(ctx context.Context, name string, removeFromStore bool) error {
	mgr.mu.Lock()
	c, ok := mgr.byName[name]
	if !ok {
		mgr.mu.Unlock()
		return apperrors.NotFound("No collection with name `%s` found.", name)
	}
	mgr.dropInMemory(name)
	mgr.mu.Unlock()

	if !removeFromStore {
		return nil
	}

	entries, err := mgr.store.Scan(ctx, store.DocumentPrefix(c.ID))
	if err != nil {
		return apperrors.Internal("scanning documents for drop: %v", err)
	}
	ops := make([]store.WriteOp, 0, len(entries)+2)
	for _, e := range entries {
		ops = append(ops, store.Delete(e.Key))
	}
	if err := mgr.store.BatchWrite(ctx, ops); err != nil {
		return apperrors.Internal("removing documents: %v", err)
	}
	if err := mgr.store.Remove(ctx, store.NextSeqIDKey(name)); err != nil {
		return apperrors.Internal("removing counter: %v", err)
	}
	if err := mgr.store.Remove(ctx, store.MetaKey(name)); err != nil {
		return apperrors.Internal("removing meta: %v", err)
	}
	return nil
}

// UpsertSymlink registers alias -> target, rejecting aliases that collide
// with a live collection name.
func (mgr *Manager) UpsertSymlink(ctx context.Context, alias, target string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if _, exists := mgr.byName[alias]; exists {
		return apperrors.Conflict("`%s` is already a collection name.", alias)
	}
	if err := mgr.store.Put(ctx, store.SymlinkKey(alias), []byte(target)); err != nil {
		return apperrors.Internal("persisting symlink: %v", err)
	}
	mgr.symlinks[alias] = target
	return nil
}

func (mgr *Manager) DeleteSymlink(ctx context.Context, alias string) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if err := mgr.store.Remove(ctx, store.SymlinkKey(alias)); err != nil {
		return apperrors.Internal("removing symlink: %v", err)
	}
	delete(mgr.symlinks, alias)
	return nil
}

func (mgr *Manager) ResolveSymlink(alias string) (string, bool) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	target, ok := mgr.symlinks[alias]
	return target, ok
}

// AuthKeyMatches accepts when key equals the bootstrap key (and key is
// non-empty), else delegates to the external AuthManager. Both the
// bootstrap-precedence and empty-key-rejection behaviors are supplemented
// from original_source/.
func (mgr *Manager) AuthKeyMatches(ctx context.Context, key, action string, collections []string, outParams map[string]string) (bool, error) {
	if key == "" {
		return false, apperrors.Unauthorized("An API key must be supplied.")
	}
	if mgr.bootstrapKey != "" && key == mgr.bootstrapKey {
		return true, nil
	}
	if mgr.auth == nil {
		return false, apperrors.Unauthorized("Invalid API key.")
	}
	return mgr.auth.KeyMatches(ctx, key, action, collections, outParams)
}
