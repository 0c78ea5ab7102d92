package store

import "fmt"

// Key layout, per spec.md §6.
const (
	NextCollectionIDKey  = "NEXT_COLLECTION_ID"
	CollectionMetaPrefix = "$CM_"
	SymlinkPrefix        = "$SL_"
)

// DocumentKey returns the key a document body is stored under.
func DocumentKey(collID uint32, seqID uint32) string {
	return fmt.Sprintf("%d_D_%d", collID, seqID)
}

// DocumentPrefix returns the prefix that scans every document of a
// collection.
func DocumentPrefix(collID uint32) string {
	return fmt.Sprintf("%d_D_", collID)
}

// CollectionPrefix returns the prefix that scans every key belonging to a
// collection. Nothing calls it at present: drop_collection scans
// DocumentPrefix instead.
func CollectionPrefix(collID uint32) string {
	return fmt.Sprintf("%d_", collID)
}

// MetaKey returns the key a collection's meta JSON is stored under.
func MetaKey(name string) string {
	return CollectionMetaPrefix + name
}

// NextSeqIDKey returns the key a collection's next_seq_id counter is
// stored under.
func NextSeqIDKey(name string) string {
	return name + "_NEXT_SEQ_ID"
}

// OverrideKey returns the key an override rule is stored under.
func OverrideKey(name, id string) string {
	return fmt.Sprintf("%s_OVERRIDE_%s", name, id)
}

// OverridePrefix returns the prefix that scans every override of a
// collection.
func OverridePrefix(name string) string {
	return name + "_OVERRIDE_"
}

// SynonymKey returns the key a synonym rule is stored under.
func SynonymKey(name, id string) string {
	return fmt.Sprintf("%s_SYNONYM_%s", name, id)
}

// SynonymPrefix returns the prefix that scans every synonym of a
// collection.
func SynonymPrefix(name string) string {
	return name + "_SYNONYM_"
}

// SymlinkKey returns the key an alias is stored under.
func SymlinkKey(alias string) string {
	return SymlinkPrefix + alias
}
