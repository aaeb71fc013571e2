package configmap

// deleteMarker is the tombstone type. The exported singleton Delete is
// the only value of it; a DELETE at a path masks every lower-priority
// layer for that path.
type deleteMarker struct{}

func (deleteMarker) String() string { return "<DELETE>" }

// Delete masks a key in all lower-priority layers.
var Delete = deleteMarker{}

// Replace disables deep-merge at a path; its value is used exactly,
// regardless of lower-priority layers.
type Replace struct {
	Value any
}

// IsDelete reports whether v is the tombstone marker.
func IsDelete(v any) bool {
	_, ok := v.(deleteMarker)
	return ok
}

// IsReplace reports whether v is a replace wrapper.
func IsReplace(v any) bool {
	_, ok := v.(Replace)
	return ok
}
