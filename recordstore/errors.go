package recordstore

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotConnected    = errors.New("not connected to the record store")
	ErrConnection      = errors.New("connection failed")
	ErrRead            = errors.New("read failed")
	ErrWrite           = errors.New("write failed")
	ErrUpdate          = errors.New("update failed")
	ErrDelete          = errors.New("delete failed")
	ErrRecordNotFound  = errors.New("record not found")
)

// OpError describes a failed operation. It matches both its Kind sentinel and
// the underlying cause under errors.Is.
type OpError struct {
	Op   string
	ID   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	prefix := "recordstore: " + e.Op
	if e.ID != "" {
		prefix += fmt.Sprintf(" %q", e.ID)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", prefix, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", prefix, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
