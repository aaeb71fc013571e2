package configmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(t *testing.T, layers ...map[string]any) []map[string]any {
	t.Helper()
	out := make([]map[string]any, len(layers))
	for i, layer := range layers {
		out[i] = cloneValue(layer, newSeenSet()).(map[string]any)
	}
	return out
}

func TestGet_SingleLayer(t *testing.T) {
	m := New(map[string]any{"a": 1, "b": "two"})

	v, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = m.Get("missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestGet_PrecedenceHighestWins(t *testing.T) {
	high := map[string]any{"a": "high"}
	low := map[string]any{"a": "low", "b": "only-low"}
	m := New(high, low)

	v, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "high", v)

	v, err = m.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "only-low", v)
}

func TestGet_DeepMergeMappings(t *testing.T) {
	high := map[string]any{"cfg": map[string]any{"x": 1}}
	low := map[string]any{"cfg": map[string]any{"x": 0, "y": 2}}
	m := New(high, low)

	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, raw)
}

func TestDelete_MasksLowerLayers(t *testing.T) {
	m := New(
		map[string]any{"a": Delete},
		map[string]any{"a": "low"},
	)

	_, err := m.Get("a")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestNestedDelete_DropsKey(t *testing.T) {
	m := New(
		map[string]any{"cfg": map[string]any{"y": Delete}},
		map[string]any{"cfg": map[string]any{"x": 1, "y": 2}},
	)

	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, raw)
}

func TestReplace_ShortCircuitsMerge(t *testing.T) {
	m := New(
		map[string]any{"cfg": Replace{Value: map[string]any{"x": 1}}},
		map[string]any{"cfg": map[string]any{"x": 0, "y": 2}},
	)

	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, raw)
}

func TestReplace_HigherLayersStillWin(t *testing.T) {
	m := New(
		map[string]any{"cfg": map[string]any{"x": "top"}},
		map[string]any{"cfg": Replace{Value: map[string]any{"x": "mid", "y": "mid"}}},
		map[string]any{"cfg": map[string]any{"x": "low", "z": "low"}},
	)

	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	// Replace masks the lowest layer, top layer merges over it.
	assert.Equal(t, map[string]any{"x": "top", "y": "mid"}, raw)
}

func TestFrontLayer_SetAndDelete(t *testing.T) {
	m := New(map[string]any{"a": 1, "b": 2})

	require.NoError(t, m.Set("a", 10))
	v, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	require.NoError(t, m.DeletePath(Path{"b"}))
	_, err = m.Get("b")
	require.ErrorIs(t, err, ErrKeyNotFound)

	// Setting after delete clears the tombstone.
	require.NoError(t, m.Set("b", 99))
	v, err = m.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestSetPath_ExplicitReplace(t *testing.T) {
	m := New(map[string]any{"cfg": map[string]any{"x": 1, "y": 2}})

	require.NoError(t, m.SetPath(Path{"cfg"}, map[string]any{"z": 3}, false))
	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"z": 3}, raw)
}

func TestSetPath_MergeOntoReplaceKeepsMask(t *testing.T) {
	m := New(map[string]any{"cfg": map[string]any{"x": 0, "y": 2}})

	require.NoError(t, m.SetPath(Path{"cfg"}, map[string]any{"x": 1}, false))
	require.NoError(t, m.SetPath(Path{"cfg"}, map[string]any{"z": 3}, true))

	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	// The merge lands inside the replaced payload; the source layer
	// stays masked (no "y").
	assert.Equal(t, map[string]any{"x": 1, "z": 3}, raw)
}

func TestSetPath_MergeOverSources(t *testing.T) {
	m := New(map[string]any{"cfg": map[string]any{"x": 1, "y": 2}})

	require.NoError(t, m.SetPath(Path{"cfg"}, map[string]any{"z": 3}, true))
	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": 2, "z": 3}, raw)
}

func TestSetPath_CreatesIntermediates(t *testing.T) {
	m := New()

	require.NoError(t, m.SetPath(Path{"a", "b", "c"}, 42, true))
	raw, err := m.Raw(Path{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 42, raw)
}

func TestSourcePurity_NeverMutated(t *testing.T) {
	layer0 := map[string]any{"cfg": map[string]any{"x": 1, "list": []any{"a", "b"}}}
	layer1 := map[string]any{"cfg": map[string]any{"y": 2}}
	want := snapshot(t, layer0, layer1)

	m := New(layer0, layer1)
	require.NoError(t, m.Set("cfg", map[string]any{"x": 100}))
	require.NoError(t, m.DeletePath(Path{"cfg", "y"}))
	m.ListAppend(Path{"cfg", "list"}, "c")
	_, _ = m.Get("cfg")
	_, _ = m.Raw(Path{"cfg"})
	m.Reset()
	_, _ = m.Get("cfg")

	assert.Equal(t, want[0], layer0, "layer 0 mutated")
	assert.Equal(t, want[1], layer1, "layer 1 mutated")
}

func TestReset_MatchesFreshMap(t *testing.T) {
	layers := []map[string]any{
		{"a": map[string]any{"x": 1}},
		{"a": map[string]any{"y": 2}, "b": []any{1, 2}},
	}

	m := New(layers...)
	require.NoError(t, m.Set("a", map[string]any{"x": 5}))
	require.NoError(t, m.DeletePath(Path{"b"}))
	m.ListAppend(Path{"b"}, 3)
	m.Reset()

	fresh := New(layers...)
	assert.Equal(t, fresh.ToMap(), m.ToMap())
}

func TestReload_PreservesUserState(t *testing.T) {
	layer := map[string]any{"a": 1}
	m := New(layer)

	require.NoError(t, m.Set("b", 2))
	_, _ = m.Get("a")

	// External mutation of a source layer is visible after Reload.
	layer["a"] = 99
	m.Reload()

	v, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 99, v)

	v, err = m.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestListOps_AppliedInOrder(t *testing.T) {
	m := New(map[string]any{"items": []any{"a", "b", "c"}})

	m.ListAppend(Path{"items"}, "d")
	m.ListRemove(Path{"items"}, "a")
	m.ListInsert(Path{"items"}, 0, "z")

	raw, err := m.Raw(Path{"items"})
	require.NoError(t, err)
	assert.Equal(t, []any{"z", "b", "c", "d"}, raw)
}

func TestListOps_DiscardedByDelete(t *testing.T) {
	m := New(map[string]any{"cfg": map[string]any{"items": []any{"a"}}})

	m.ListAppend(Path{"cfg", "items"}, "b")
	require.NoError(t, m.DeletePath(Path{"cfg"}))
	require.NoError(t, m.Set("cfg", map[string]any{"items": []any{"x"}}))

	raw, err := m.Raw(Path{"cfg", "items"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, raw, "queued ops must not survive a delete")
}

func TestOwnList_SnapshotsAndClearsOps(t *testing.T) {
	layer := map[string]any{"items": []any{"a", "b"}}
	m := New(layer)

	m.ListAppend(Path{"items"}, "c")
	require.NoError(t, m.OwnList(Path{"items"}))

	// Source changes no longer leak through the owned copy.
	layer["items"] = []any{"changed"}
	m.Reload()

	raw, err := m.Raw(Path{"items"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, raw)
}

func TestGet_ReturnsProxyAndFrozenList(t *testing.T) {
	m := New(map[string]any{
		"cfg":   map[string]any{"x": 1},
		"items": []any{"a"},
	})

	v, err := m.Get("cfg")
	require.NoError(t, err)
	proxy, ok := v.(*MapProxy)
	require.True(t, ok, "mappings must come back as proxies")

	require.NoError(t, proxy.Set("y", 2))
	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": 2}, raw)

	v, err = m.Get("items")
	require.NoError(t, err)
	frozen, ok := v.(*FrozenList)
	require.True(t, ok, "lists must come back frozen")
	assert.Equal(t, 1, frozen.Len())
	assert.Equal(t, "a", frozen.At(0))
}

func TestAddRemoveReorderLayers(t *testing.T) {
	m := New(map[string]any{"a": "first"})

	m.AddLayer(map[string]any{"a": "second", "b": "second"}, 1)
	v, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	require.NoError(t, m.ReorderLayers([]int{1, 0}))
	v, err = m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "second", v)

	require.NoError(t, m.RemoveLayer(0))
	v, err = m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	assert.ErrorIs(t, m.RemoveLayer(5), ErrLayerIndex)
	assert.ErrorIs(t, m.ReorderLayers([]int{0, 0}), ErrLayerIndex)
}

func TestSelfReferentialLayer_DoesNotLoop(t *testing.T) {
	inner := map[string]any{"x": 1}
	inner["self"] = inner
	m := New(map[string]any{"cfg": inner})

	raw, err := m.Raw(Path{"cfg"})
	require.NoError(t, err)
	mv := raw.(map[string]any)
	assert.Equal(t, 1, mv["x"])
}

func TestKeysAndToMap(t *testing.T) {
	m := New(
		map[string]any{"b": 2, "gone": Delete},
		map[string]any{"a": 1, "gone": "low"},
	)
	require.NoError(t, m.Set("c", 3))

	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, m.ToMap())
}
