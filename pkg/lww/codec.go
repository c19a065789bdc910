package lww

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// encode/decode wrap an arbitrary Go value in a one-field BSON document so
// scalars, maps and slices all round-trip the same way, the same technique
// the teacher's pkg/storage/bson.go uses for whole documents (MarshalBson/
// UnmarshalBson) applied here at the single-cell-value granularity spec.md
// §4.1 operates at ("Map<string, {val, ts}>").
func encode(v any) ([]byte, error) {
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return nil, fmt.Errorf("lww: encode value: %w", err)
	}
	return raw, nil
}

func decode(data []byte) (any, error) {
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lww: decode value: %w", err)
	}
	return normalize(doc["v"]), nil
}

// normalize undoes BSON's generic-decode typing (bson.A for arrays, bson.D/
// bson.M for embedded documents) so a KindTags value decodes back to
// []string and a KindJSON value decodes back to map[string]any — the types
// field.kindMismatch asserts against — instead of the driver's own wrapper
// types, which would otherwise make every tags/json cell look invalid on
// read even with no remote merge involved.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.A:
		out := make([]any, len(t))
		allStrings := true
		for i, e := range t {
			ne := normalize(e)
			out[i] = ne
			if _, ok := ne.(string); !ok {
				allStrings = false
			}
		}
		if allStrings {
			strs := make([]string, len(out))
			for i, e := range out {
				strs[i] = e.(string)
			}
			return strs
		}
		return out
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalize(val)
		}
		return m
	default:
		return v
	}
}
