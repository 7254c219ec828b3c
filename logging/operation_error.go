package logging

import "fmt"

// StorageError records which index operation failed and what it was acting
// on: an image path, the database file, or a source prefix.
type StorageError struct {
	Op     string
	Target string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Target, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage returns nil when err is nil. An empty target means the
// operation spanned every source prefix.
func WrapStorage(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Target: target, Err: err}
}
