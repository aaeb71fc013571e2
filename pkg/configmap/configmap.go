// Package configmap implements the deep chain map (DCM): an ordered
// stack of read-only source layers under a mutable front layer, merged
// on read with tombstone deletion, explicit-replace wrappers, deferred
// list operations and per-leaf provenance.
//
// Layer index 0 is the highest priority source layer. The front layer
// (index FrontIndex) sits above all sources and receives every write.
// Source layers are never mutated by any operation.
package configmap

import "sort"

// Path addresses a nested value as a tuple of string keys.
type Path []string

// FrontIndex is the provenance index of the front layer.
const FrontIndex = -1

type cacheEntry struct {
	value any
	prov  any
	found bool
}

// Map is the deep chain map. It is not safe for concurrent writes;
// callers that share one across goroutines must synchronize externally.
type Map struct {
	layers  []map[string]any
	front   map[string]any
	listOps []queuedOp
	cache   map[string]cacheEntry

	trackProvenance bool
}

// New builds a DCM over the given source layers, highest priority first.
func New(layers ...map[string]any) *Map {
	m := &Map{
		layers: append([]map[string]any(nil), layers...),
		front:  make(map[string]any),
		cache:  make(map[string]cacheEntry),
	}
	return m
}

// EnableProvenance turns per-leaf provenance tracking on or off.
func (m *Map) EnableProvenance(on bool) {
	if m.trackProvenance != on {
		m.trackProvenance = on
		m.invalidate()
	}
}

// AddLayer inserts a source layer at the given priority index
// (0 = highest). Index is clamped to the current layer count.
func (m *Map) AddLayer(layer map[string]any, index int) {
	if index < 0 {
		index = 0
	}
	if index > len(m.layers) {
		index = len(m.layers)
	}
	m.layers = append(m.layers[:index], append([]map[string]any{layer}, m.layers[index:]...)...)
	m.invalidate()
}

// RemoveLayer removes the source layer at index.
func (m *Map) RemoveLayer(index int) error {
	if index < 0 || index >= len(m.layers) {
		return ErrLayerIndex
	}
	m.layers = append(m.layers[:index], m.layers[index+1:]...)
	m.invalidate()
	return nil
}

// ReorderLayers rearranges source layers; order lists current indices
// in their new priority order and must be a permutation.
func (m *Map) ReorderLayers(order []int) error {
	if len(order) != len(m.layers) {
		return ErrLayerIndex
	}
	used := make(map[int]bool, len(order))
	reordered := make([]map[string]any, 0, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(m.layers) || used[idx] {
			return ErrLayerIndex
		}
		used[idx] = true
		reordered = append(reordered, m.layers[idx])
	}
	m.layers = reordered
	m.invalidate()
	return nil
}

// LayerCount returns the number of source layers.
func (m *Map) LayerCount() int { return len(m.layers) }

// Reload drops the read cache. User state (front layer, queued list
// ops) is preserved; use it after source layers were mutated externally.
func (m *Map) Reload() {
	m.invalidate()
}

// Reset clears the front layer, queued list ops and the cache, so reads
// equal those of a freshly-constructed map over the same sources.
func (m *Map) Reset() {
	m.front = make(map[string]any)
	m.listOps = nil
	m.invalidate()
}

func (m *Map) invalidate() {
	m.cache = make(map[string]cacheEntry)
}

// Get materializes the merged value for a top-level key. Mappings come
// back as a *MapProxy routing writes to SetPath; lists come back as a
// *FrozenList (mutations go through the List* operations).
func (m *Map) Get(key string) (any, error) {
	entry, err := m.resolve(key)
	if err != nil {
		return nil, err
	}
	return m.wrap(Path{key}, entry.value), nil
}

// GetPath materializes the merged value at a nested path.
func (m *Map) GetPath(p Path) (any, error) {
	if len(p) == 0 {
		return nil, pathErr("get", p, ErrKeyNotFound)
	}
	entry, err := m.resolve(p[0])
	if err != nil {
		return nil, err
	}
	v := entry.value
	for i, key := range p[1:] {
		mv, ok := v.(map[string]any)
		if !ok {
			return nil, pathErr("get", p[:i+2], ErrNotAMap)
		}
		v, ok = mv[key]
		if !ok {
			return nil, pathErr("get", p[:i+2], ErrKeyNotFound)
		}
	}
	return m.wrap(p, v), nil
}

// Raw returns the plain merged value at p without proxy wrapping. The
// result is a deep copy; mutating it does not affect the map.
func (m *Map) Raw(p Path) (any, error) {
	if len(p) == 0 {
		return nil, pathErr("get", p, ErrKeyNotFound)
	}
	entry, err := m.resolve(p[0])
	if err != nil {
		return nil, err
	}
	v := entry.value
	for i, key := range p[1:] {
		mv, ok := v.(map[string]any)
		if !ok {
			return nil, pathErr("get", p[:i+2], ErrNotAMap)
		}
		v, ok = mv[key]
		if !ok {
			return nil, pathErr("get", p[:i+2], ErrKeyNotFound)
		}
	}
	return cloneValue(v, newSeenSet()), nil
}

func (m *Map) wrap(p Path, v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return &MapProxy{m: m, path: append(Path(nil), p...)}
	case []any:
		return newFrozenList(tv)
	default:
		return v
	}
}

// resolve runs the read algorithm for one top-level key and caches the
// result. The cached value is the plain merged form.
func (m *Map) resolve(key string) (cacheEntry, error) {
	if entry, ok := m.cache[key]; ok {
		if !entry.found {
			return entry, pathErr("get", Path{key}, ErrKeyNotFound)
		}
		return entry, nil
	}

	frontVal, frontPresent := m.front[key]
	if frontPresent && IsDelete(frontVal) {
		entry := cacheEntry{found: false}
		m.cache[key] = entry
		return entry, pathErr("get", Path{key}, ErrKeyNotFound)
	}

	// Walk sources high to low; DELETE masks everything below it,
	// REPLACE adopts its value and stops the descent.
	var contribs []contribution
	found := false
	for i := 0; i < len(m.layers); i++ {
		raw, present := m.layers[i][key]
		if !present {
			continue
		}
		if IsDelete(raw) {
			break
		}
		found = true
		contribs = append(contribs, contribution{layer: i, value: raw})
		if IsReplace(raw) {
			break
		}
	}

	// Merge collected values low to high.
	for l, r := 0, len(contribs)-1; l < r; l, r = l+1, r-1 {
		contribs[l], contribs[r] = contribs[r], contribs[l]
	}
	merged, prov := mergeContributions(contribs)

	var err error
	before := merged
	merged, err = m.applyListOps(key, merged)
	if err != nil {
		return cacheEntry{}, err
	}
	if merged != nil && before == nil {
		found = true
	}

	if frontPresent {
		found = true
		merged, prov = mergeValue(merged, prov, frontVal, FrontIndex, newSeenSet())
	}

	if !found {
		entry := cacheEntry{found: false}
		m.cache[key] = entry
		return entry, pathErr("get", Path{key}, ErrKeyNotFound)
	}

	entry := cacheEntry{value: merged, found: true}
	if m.trackProvenance {
		entry.prov = prov
	}
	m.cache[key] = entry
	return entry, nil
}

// Set writes v at a top-level key with deep-merge semantics.
func (m *Map) Set(key string, v any) error {
	return m.SetPath(Path{key}, v, true)
}

// SetPath writes v into the front layer at p, creating intermediate
// mappings as needed. Any DELETE tombstone or queued list ops at the
// subpath are cleared. With merge true a mapping value deep-merges over
// existing front content; when that content is a REPLACE wrapper the
// merge lands inside its payload and the wrapper is kept. With merge
// false the value is stored as an explicit REPLACE, suppressing merges
// with lower layers on read.
func (m *Map) SetPath(p Path, v any, merge bool) error {
	if len(p) == 0 {
		return pathErr("set", p, ErrKeyNotFound)
	}
	for _, comp := range p {
		if comp == "" {
			return pathErr("set", p, ErrKeyNotFound)
		}
	}

	m.discardListOps(p)

	parent := m.frontParent(p)
	last := p[len(p)-1]

	value := cloneValue(v, newSeenSet())
	if !merge {
		parent[last] = Replace{Value: value}
		m.invalidate()
		return nil
	}

	switch existing := parent[last].(type) {
	case nil:
		parent[last] = value
	case deleteMarker:
		parent[last] = value
	case Replace:
		// Merge into the replaced payload; the mask over lower layers
		// stays in place.
		merged, _ := mergeValue(existing.Value, nil, value, FrontIndex, newSeenSet())
		parent[last] = Replace{Value: merged}
	default:
		merged, _ := mergeValue(existing, nil, value, FrontIndex, newSeenSet())
		parent[last] = merged
	}
	m.invalidate()
	return nil
}

// DeletePath writes a DELETE tombstone at p, masking every source layer
// for that path, and discards queued list ops at or below it.
func (m *Map) DeletePath(p Path) error {
	if len(p) == 0 {
		return pathErr("delete", p, ErrKeyNotFound)
	}
	m.discardListOps(p)
	parent := m.frontParent(p)
	parent[p[len(p)-1]] = Delete
	m.invalidate()
	return nil
}

// OwnList snapshots the merged list at p into the front layer, so that
// subsequent reads see a user-owned copy detached from source layers.
// Queued ops at p are applied to the snapshot and then cleared.
func (m *Map) OwnList(p Path) error {
	raw, err := m.Raw(p)
	if err != nil {
		return err
	}
	items, ok := raw.([]any)
	if !ok {
		return pathErr("own list", p, ErrNotAList)
	}

	m.discardListOps(p)
	parent := m.frontParent(p)
	parent[p[len(p)-1]] = Replace{Value: items}
	m.invalidate()
	return nil
}

// frontParent navigates the front layer to the parent mapping of p,
// replacing tombstones and scalars with fresh maps along the way.
func (m *Map) frontParent(p Path) map[string]any {
	cur := m.front
	for _, key := range p[:len(p)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[key] = next
		}
		cur = next
	}
	return cur
}

// Keys returns the sorted union of visible top-level keys.
func (m *Map) Keys() []string {
	seen := make(map[string]struct{})
	for _, layer := range m.layers {
		for k := range layer {
			seen[k] = struct{}{}
		}
	}
	for k := range m.front {
		seen[k] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		if _, err := m.resolve(k); err == nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// ToMap materializes the whole merged mapping as a plain deep copy.
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any)
	for _, key := range m.Keys() {
		entry, err := m.resolve(key)
		if err != nil {
			continue
		}
		out[key] = cloneValue(entry.value, newSeenSet())
	}
	return out
}

// ProvenanceFor returns the provenance tree for a top-level key: a
// mapping parallel to the merged value whose leaves are layer indices
// (FrontIndex when the front layer contributed). Scalars are reported
// under the sentinel key ".".
func (m *Map) ProvenanceFor(key string) (map[string]any, error) {
	if !m.trackProvenance {
		m.EnableProvenance(true)
	}
	entry, err := m.resolve(key)
	if err != nil {
		return nil, err
	}
	if tree, ok := entry.prov.(map[string]any); ok {
		return tree, nil
	}
	return map[string]any{".": entry.prov}, nil
}
