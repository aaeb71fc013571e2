package configmap

import (
	"fmt"
	"reflect"
)

// ListOp is a deferred mutation of a merged list. Ops are recorded
// against a path and replayed, in recording order, every time the
// path is read.
type ListOp interface {
	apply(items []any) ([]any, error)
}

type Append struct{ Value any }

func (op Append) apply(items []any) ([]any, error) {
	return append(items, op.Value), nil
}

type Extend struct{ Values []any }

func (op Extend) apply(items []any) ([]any, error) {
	return append(items, op.Values...), nil
}

type Insert struct {
	Index int
	Value any
}

func (op Insert) apply(items []any) ([]any, error) {
	idx := clampInsertIndex(op.Index, len(items))
	out := make([]any, 0, len(items)+1)
	out = append(out, items[:idx]...)
	out = append(out, op.Value)
	out = append(out, items[idx:]...)
	return out, nil
}

type SetItem struct {
	Index int
	Value any
}

func (op SetItem) apply(items []any) ([]any, error) {
	idx, err := resolveIndex(op.Index, len(items))
	if err != nil {
		return nil, err
	}
	items[idx] = op.Value
	return items, nil
}

type DelItem struct{ Index int }

func (op DelItem) apply(items []any) ([]any, error) {
	idx, err := resolveIndex(op.Index, len(items))
	if err != nil {
		return nil, err
	}
	return append(items[:idx], items[idx+1:]...), nil
}

// Pop removes the item at Index (negative counts from the end; -1 pops
// the last item).
type Pop struct{ Index int }

func (op Pop) apply(items []any) ([]any, error) {
	return DelItem{Index: op.Index}.apply(items)
}

type Remove struct{ Value any }

func (op Remove) apply(items []any) ([]any, error) {
	for i, item := range items {
		if reflect.DeepEqual(item, op.Value) {
			return append(items[:i], items[i+1:]...), nil
		}
	}
	return nil, fmt.Errorf("value %v not in list", op.Value)
}

type Clear struct{}

func (op Clear) apply(items []any) ([]any, error) {
	return []any{}, nil
}

func resolveIndex(idx, length int) (int, error) {
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("list index %d out of range (len %d)", idx, length)
	}
	return idx, nil
}

func clampInsertIndex(idx, length int) int {
	if idx < 0 {
		idx += length
	}
	if idx < 0 {
		return 0
	}
	if idx > length {
		return length
	}
	return idx
}

// queuedOp pairs a recorded list op with its target path. A single
// ordered queue preserves global recording order across paths.
type queuedOp struct {
	path Path
	op   ListOp
}

func (m *Map) recordListOp(p Path, op ListOp) {
	m.listOps = append(m.listOps, queuedOp{path: append(Path(nil), p...), op: op})
	m.invalidate()
}

// ListAppend queues an append of v to the list at p.
func (m *Map) ListAppend(p Path, v any) { m.recordListOp(p, Append{Value: v}) }

// ListExtend queues an extension of the list at p with values.
func (m *Map) ListExtend(p Path, values []any) {
	m.recordListOp(p, Extend{Values: append([]any(nil), values...)})
}

// ListInsert queues an insert at index (clamped python-style).
func (m *Map) ListInsert(p Path, index int, v any) {
	m.recordListOp(p, Insert{Index: index, Value: v})
}

// ListSetItem queues item replacement at index.
func (m *Map) ListSetItem(p Path, index int, v any) {
	m.recordListOp(p, SetItem{Index: index, Value: v})
}

// ListDelItem queues item deletion at index.
func (m *Map) ListDelItem(p Path, index int) { m.recordListOp(p, DelItem{Index: index}) }

// ListPop queues removal of the item at index (-1 = last).
func (m *Map) ListPop(p Path, index int) { m.recordListOp(p, Pop{Index: index}) }

// ListRemove queues removal of the first item equal to v.
func (m *Map) ListRemove(p Path, v any) { m.recordListOp(p, Remove{Value: v}) }

// ListClear queues emptying of the list at p.
func (m *Map) ListClear(p Path) { m.recordListOp(p, Clear{}) }

// discardListOps drops every queued op whose path is at or below p.
func (m *Map) discardListOps(p Path) {
	kept := m.listOps[:0]
	for _, q := range m.listOps {
		if !pathHasPrefix(q.path, p) {
			kept = append(kept, q)
		}
	}
	m.listOps = kept
}

// applyListOps replays all ops recorded under top-level key k against
// the merged value rooted at that key.
func (m *Map) applyListOps(key string, merged any) (any, error) {
	for _, q := range m.listOps {
		if len(q.path) == 0 || q.path[0] != key {
			continue
		}
		var err error
		merged, err = applyOpAt(merged, q.path[1:], q.op)
		if err != nil {
			return nil, pathErr("list op", q.path, err)
		}
	}
	return merged, nil
}

func applyOpAt(v any, rel Path, op ListOp) (any, error) {
	if len(rel) == 0 {
		items, ok := v.([]any)
		if !ok {
			if v == nil {
				items = []any{}
			} else {
				return nil, ErrNotAList
			}
		}
		return op.apply(items)
	}

	mv, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotAMap
	}
	child, err := applyOpAt(mv[rel[0]], rel[1:], op)
	if err != nil {
		return nil, err
	}
	mv[rel[0]] = child
	return mv, nil
}

func pathHasPrefix(p, prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}
