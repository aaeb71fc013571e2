package configmap

import "reflect"

// contribution is one layer's raw value for a top-level key, tagged
// with the layer index that supplied it (FrontIndex for the front layer).
type contribution struct {
	layer int
	value any
}

// mergeContributions deep-merges contributions ordered low priority
// first. Mapping-vs-mapping recurses; anything else the later (higher
// priority) value wins. Nested DELETE markers drop keys, nested REPLACE
// wrappers short-circuit the merge below them. The returned provenance
// tree parallels the merged value: leaves are layer indices, scalars
// collapse to the index itself.
func mergeContributions(contribs []contribution) (any, any) {
	var merged, prov any
	seen := newSeenSet()
	for _, c := range contribs {
		merged, prov = mergeValue(merged, prov, c.value, c.layer, seen)
	}
	return merged, prov
}

func mergeValue(dst, dstProv, src any, layer int, seen *seenSet) (any, any) {
	if IsDelete(src) {
		return nil, nil
	}
	if r, ok := src.(Replace); ok {
		cloned := cloneValue(r.Value, seen)
		return cloned, provenanceTree(cloned, layer)
	}

	srcMap, srcIsMap := asStringMap(src)
	dstMap, dstIsMap := dst.(map[string]any)

	if !srcIsMap || !dstIsMap {
		cloned := cloneValue(src, seen)
		return cloned, provenanceTree(cloned, layer)
	}

	if !seen.enter(src) {
		return dst, dstProv
	}
	defer seen.leave(src)

	provMap, ok := dstProv.(map[string]any)
	if !ok {
		provMap = make(map[string]any, len(srcMap))
	}
	for k, v := range srcMap {
		if IsDelete(v) {
			delete(dstMap, k)
			delete(provMap, k)
			continue
		}
		dstMap[k], provMap[k] = mergeValue(dstMap[k], provMap[k], v, layer, seen)
	}
	return dstMap, provMap
}

// cloneValue deep-copies v so that merged results never alias source
// layers. DELETE markers vanish, REPLACE wrappers are unwrapped. Cycles
// are broken by returning the original reference.
func cloneValue(v any, seen *seenSet) any {
	if IsDelete(v) {
		return nil
	}
	if r, ok := v.(Replace); ok {
		return cloneValue(r.Value, seen)
	}

	if mv, ok := asStringMap(v); ok {
		if !seen.enter(v) {
			return v
		}
		defer seen.leave(v)
		out := make(map[string]any, len(mv))
		for k, item := range mv {
			if IsDelete(item) {
				continue
			}
			out[k] = cloneValue(item, seen)
		}
		return out
	}

	if sv, ok := v.([]any); ok {
		if !seen.enter(v) {
			return v
		}
		defer seen.leave(v)
		out := make([]any, len(sv))
		for i, item := range sv {
			out[i] = cloneValue(item, seen)
		}
		return out
	}

	return v
}

// provenanceTree builds a tree parallel to v with every leaf set to
// layer. Non-mapping values collapse to the bare index.
func provenanceTree(v any, layer int) any {
	if mv, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(mv))
		for k, item := range mv {
			out[k] = provenanceTree(item, layer)
		}
		return out
	}
	return layer
}

// asStringMap accepts both map[string]any and the map[any]any shape
// older YAML decoders produce.
func asStringMap(v any) (map[string]any, bool) {
	switch mv := v.(type) {
	case map[string]any:
		return mv, true
	case map[any]any:
		out := make(map[string]any, len(mv))
		for k, item := range mv {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = item
		}
		return out, true
	default:
		return nil, false
	}
}

// seenSet is an identity-keyed guard against self-referential maps and
// slices: the cycle is broken and merging continues.
type seenSet struct {
	ptrs map[uintptr]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{ptrs: make(map[uintptr]struct{})}
}

func (s *seenSet) enter(v any) bool {
	ptr, ok := identityPtr(v)
	if !ok {
		return true
	}
	if _, dup := s.ptrs[ptr]; dup {
		return false
	}
	s.ptrs[ptr] = struct{}{}
	return true
}

func (s *seenSet) leave(v any) {
	if ptr, ok := identityPtr(v); ok {
		delete(s.ptrs, ptr)
	}
}

func identityPtr(v any) (uintptr, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return 0, false
		}
		return rv.Pointer(), true
	default:
		return 0, false
	}
}
