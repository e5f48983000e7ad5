package codec

import (
	"sort"

	"github.com/redstring/core/internal/state"
)

// idRef builds a JSON-LD id reference object, e.g. {"@id": "prototype:abc"}.
func idRef(prefix, id string) map[string]any {
	return map[string]any{"@id": prefix + ":" + id}
}

// asSubClassOfSlice normalizes a subClassOf value (absent, a single
// {"@id":...} object, or already a slice) into a slice, promoting a lone
// object first as spec §4.1 rule 3 requires.
func asSubClassOfSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case map[string]any:
		return []any{t}
	default:
		return nil
	}
}

func subClassOfHasID(list []any, id string) bool {
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			if got, _ := m["@id"].(string); got == id {
				return true
			}
		}
	}
	return false
}

// applyChainSubclassing implements spec §4.1 rule 3: for each prototype's
// AbstractionChains[dimension], for i=1..len-1, append a reference to
// chain[i-1] onto chain[i]'s subClassOf, deduplicated by @id. It mutates
// the already-built prototypeSpace.prototypes document map in place, and
// is safe to call repeatedly on the same document (idempotent, per
// testable property 4: rerunning export yields byte-identical output).
func applyChainSubclassing(protos map[string]*state.Prototype, docs map[string]any) {
	ids := make([]string, 0, len(protos))
	for id := range protos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := protos[id]
		dims := make([]string, 0, len(p.AbstractionChains))
		for dim := range p.AbstractionChains {
			dims = append(dims, dim)
		}
		sort.Strings(dims)
		for _, dim := range dims {
			chain := p.AbstractionChains[dim]
			for i := 1; i < len(chain); i++ {
				childDoc, ok := docs[chain[i]].(map[string]any)
				if !ok {
					continue
				}
				parentID := "prototype:" + chain[i-1]
				list := asSubClassOfSlice(childDoc["subClassOf"])
				if !subClassOfHasID(list, parentID) {
					list = append(list, idRef("prototype", chain[i-1]))
				}
				childDoc["subClassOf"] = list
			}
		}
	}
}
