package configmap

import "sort"

// MapProxy is the mutable view returned for merged mappings. It reads
// through the owning Map on every access (so it always reflects the
// current merge) and routes writes back through SetPath, keeping the
// source layers untouched.
type MapProxy struct {
	m    *Map
	path Path
}

// Path returns the path this proxy is rooted at.
func (p *MapProxy) Path() Path {
	return append(Path(nil), p.path...)
}

// Get reads a child key. Nested mappings come back as proxies, lists as
// frozen views.
func (p *MapProxy) Get(key string) (any, error) {
	return p.m.GetPath(append(p.Path(), key))
}

// Has reports whether the child key resolves.
func (p *MapProxy) Has(key string) bool {
	_, err := p.Get(key)
	return err == nil
}

// Set writes a child key with deep-merge semantics.
func (p *MapProxy) Set(key string, v any) error {
	return p.m.SetPath(append(p.Path(), key), v, true)
}

// Replace writes a child key with explicit-replace semantics.
func (p *MapProxy) Replace(key string, v any) error {
	return p.m.SetPath(append(p.Path(), key), v, false)
}

// Delete tombstones a child key.
func (p *MapProxy) Delete(key string) error {
	return p.m.DeletePath(append(p.Path(), key))
}

// Keys returns the sorted child keys of the merged mapping.
func (p *MapProxy) Keys() []string {
	raw, err := p.m.Raw(p.path)
	if err != nil {
		return nil
	}
	mv, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(mv))
	for k := range mv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Raw returns a plain deep copy of the merged mapping.
func (p *MapProxy) Raw() map[string]any {
	raw, err := p.m.Raw(p.path)
	if err != nil {
		return nil
	}
	mv, _ := raw.(map[string]any)
	return mv
}

// FrozenList is the read-only view returned for merged lists. Mutations
// must go through the Map's List* operations so they are recorded as
// deferred ops.
type FrozenList struct {
	items []any
}

func newFrozenList(items []any) *FrozenList {
	return &FrozenList{items: append([]any(nil), items...)}
}

func (l *FrozenList) Len() int {
	return len(l.items)
}

// At returns the item at index, or nil when out of range.
func (l *FrozenList) At(index int) any {
	if index < 0 || index >= len(l.items) {
		return nil
	}
	return l.items[index]
}

// Items returns a copy of the underlying slice.
func (l *FrozenList) Items() []any {
	return append([]any(nil), l.items...)
}
