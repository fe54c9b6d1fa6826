package preseed

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DeepMerge merges src into dst recursively: mapping keys are unioned,
// and a non-mapping value from src overwrites the value at the same key
// path in dst. dst is modified in place and returned.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcValue := range src {
		srcMap, srcIsMap := toStringMap(srcValue)
		dstMap, dstIsMap := toStringMap(dst[key])
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcValue
	}
	return dst
}

// toStringMap normalizes the mapping shapes yaml.v3 can produce.
func toStringMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[fmt.Sprintf("%v", key)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// MergeFragments deep-merges a list of YAML documents left to right.
// Later fragments' scalars override earlier ones at matching key paths;
// emission order is significant and must be preserved by callers.
func MergeFragments(fragments []string) (map[string]any, error) {
	merged := make(map[string]any)
	for i, fragment := range fragments {
		var doc map[string]any
		if err := yaml.Unmarshal([]byte(fragment), &doc); err != nil {
			return nil, fmt.Errorf("fragment %d is not valid YAML: %w", i, err)
		}
		merged = DeepMerge(merged, doc)
	}
	return merged, nil
}
