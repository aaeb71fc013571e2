package configmap

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyNotFound is returned when a key is absent from every layer
	// or masked by a DELETE tombstone.
	ErrKeyNotFound = errors.New("key not found")

	// ErrNotAList is returned when a list operation targets a value
	// that is not a sequence.
	ErrNotAList = errors.New("value is not a list")

	// ErrNotAMap is returned when a path descends through a scalar.
	ErrNotAMap = errors.New("value is not a mapping")

	// ErrLayerIndex is returned for out-of-range layer operations.
	ErrLayerIndex = errors.New("layer index out of range")
)

// PathError decorates an error with the path and operation it occurred on.
type PathError struct {
	Op   string
	Path Path
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("configmap: %s %s: %v", e.Op, strings.Join(e.Path, "."), e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

func pathErr(op string, p Path, err error) error {
	return &PathError{Op: op, Path: append(Path(nil), p...), Err: err}
}
