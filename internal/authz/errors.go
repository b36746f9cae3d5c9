package authz

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("authz: not found")
	ErrForbidden      = errors.New("authz: forbidden")
	ErrInvalidRole    = errors.New("authz: invalid role")
	ErrInvalidInput   = errors.New("authz: invalid input")
	ErrDuplicateGrant = errors.New("authz: duplicate grant")
)

// StoreError wraps an underlying storage failure. Callers must surface it;
// masking a storage failure as a denial (or as access) is a security hazard.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("authz: store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStore decorates err as a StoreError unless it is already one of the
// package sentinels (those pass through untouched).
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrDuplicateGrant):
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
