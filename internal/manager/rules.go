package manager

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/monishk/shardsearch/internal/collection"
	"github.com/monishk/shardsearch/internal/store"
	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// loadRulesInto scans name's persisted overrides and synonyms and installs
// them into coll, used both by recovery and by tests seeding a collection
// directly against a store.
func loadRulesInto(ctx context.Context, kv store.KV, name string, coll *collection.Collection) error {
	overrides, err := kv.Scan(ctx, store.OverridePrefix(name))
	if err != nil {
		return apperrors.Internal("scanning overrides for `%s`: %v", name, err)
	}
	for _, e := range overrides {
		var o collection.Override
		if err := json.Unmarshal(e.Value, &o); err != nil {
			return apperrors.Internal("decoding override %s: %v", e.Key, err)
		}
		coll.AddOverride(o)
	}

	synonyms, err := kv.Scan(ctx, store.SynonymPrefix(name))
	if err != nil {
		return apperrors.Internal("scanning synonyms for `%s`: %v", name, err)
	}
	for _, e := range synonyms {
		var s collection.Synonym
		if err := json.Unmarshal(e.Value, &s); err != nil {
			return apperrors.Internal("decoding synonym %s: %v", e.Key, err)
		}
		coll.AddSynonym(s)
	}
	return nil
}

// UpsertOverride persists and installs an override rule for collName.
func (mgr *Manager) UpsertOverride(ctx context.Context, collName string, o collection.Override) error {
	coll, err := mgr.GetCollection(collName)
	if err != nil {
		return err
	}
	body, err := json.Marshal(o)
	if err != nil {
		return apperrors.Internal("marshalling override: %v", err)
	}
	if err := mgr.store.Put(ctx, store.OverrideKey(collName, o.ID), body); err != nil {
		return apperrors.Internal("persisting override: %v", err)
	}
	coll.AddOverride(o)
	return nil
}

// DeleteOverride removes an override rule for collName.
func (mgr *Manager) DeleteOverride(ctx context.Context, collName, id string) error {
	coll, err := mgr.GetCollection(collName)
	if err != nil {
		return err
	}
	if err := mgr.store.Remove(ctx, store.OverrideKey(collName, id)); err != nil {
		return apperrors.Internal("removing override: %v", err)
	}
	coll.RemoveOverride(id)
	return nil
}

// UpsertSynonym persists and installs a synonym rule for collName.
func (mgr *Manager) UpsertSynonym(ctx context.Context, collName string, s collection.Synonym) error {
	coll, err := mgr.GetCollection(collName)
	if err != nil {
		return err
	}
	body, err := json.Marshal(s)
	if err != nil {
		return apperrors.Internal("marshalling synonym: %v", err)
	}
	if err := mgr.store.Put(ctx, store.SynonymKey(collName, s.ID), body); err != nil {
		return apperrors.Internal("persisting synonym: %v", err)
	}
	coll.AddSynonym(s)
	return nil
}

// DeleteSynonym removes a synonym rule for collName.
func (mgr *Manager) DeleteSynonym(ctx context.Context, collName, id string) error {
	coll, err := mgr.GetCollection(collName)
	if err != nil {
		return err
	}
	if err := mgr.store.Remove(ctx, store.SynonymKey(collName, id)); err != nil {
		return apperrors.Internal("removing synonym: %v", err)
	}
	coll.RemoveSynonym(id)
	return nil
}

// aliasName strips the symlink key prefix, exported for readability at
// call sites that already imported strings for other reasons.
func aliasName(key string) string {
	return strings.TrimPrefix(key, store.SymlinkPrefix)
}
