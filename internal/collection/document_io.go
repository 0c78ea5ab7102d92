package collection

import "encoding/json"

// marshalDocument re-serializes raw with its resolved id and seq_id
// stamped in, for the document body written under <coll_id>_D_<seq_id>.
func marshalDocument(raw map[string]any, id string, seqID uint32) ([]byte, error) {
	out := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		out[k] = v
	}
	out["id"] = id
	out["_seq_id"] = seqID
	return json.Marshal(out)
}
