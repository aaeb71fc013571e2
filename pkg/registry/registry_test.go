package registry

import (
	"fmt"
	"testing"
)

type testItem struct {
	ID   string
	Name string
}

func TestBaseRegistry_Register(t *testing.T) {
	r := NewBaseRegistry[testItem]()

	tests := []struct {
		name    string
		key     string
		item    testItem
		wantErr bool
	}{
		{
			name: "register valid item",
			key:  "item-1",
			item: testItem{ID: "1", Name: "first"},
		},
		{
			name:    "register with empty name",
			key:     "",
			item:    testItem{ID: "2"},
			wantErr: true,
		},
		{
			name:    "register duplicate name",
			key:     "item-1",
			item:    testItem{ID: "3"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.key, tt.item)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBaseRegistry_GetAndRemove(t *testing.T) {
	r := NewBaseRegistry[testItem]()

	if err := r.Register("a", testItem{ID: "1"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := r.Get("a")
	if !ok || got.ID != "1" {
		t.Errorf("Get() = %v, %v; want ID 1, true", got, ok)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get() found missing item")
	}

	if err := r.Remove("a"); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if err := r.Remove("a"); err == nil {
		t.Error("Remove() on missing item should fail")
	}
}

func TestBaseRegistry_NamesSorted(t *testing.T) {
	r := NewBaseRegistry[int]()
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Register(name, len(name)); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"alpha", "bravo", "charlie"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}

	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}

	r.Clear()
	if r.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", r.Count())
	}
}
