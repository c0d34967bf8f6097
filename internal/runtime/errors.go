package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable  = errors.New("runtime unavailable")
	ErrOutOfMemory  = errors.New("runtime out of memory")
	ErrDevice       = errors.New("runtime device failure")
	ErrIncompatible = errors.New("runtime rejected artifact")
	ErrNotFound     = errors.New("runtime object not found")
	ErrInvalidInput = errors.New("runtime rejected input")
)

const (
	CodeOutOfMemory  = "oom"
	CodeDevice       = "device"
	CodeIncompatible = "incompatible"
	CodeNotFound     = "not_found"
	CodeInvalidInput = "invalid_input"
)

// RemoteError is an error reported by the runtime process itself.
type RemoteError struct {
	Op      Op
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("runtime %s failed: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("runtime %s failed (%s): %s", e.Op, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeOutOfMemory:
		return ErrOutOfMemory
	case CodeDevice:
		return ErrDevice
	case CodeIncompatible:
		return ErrIncompatible
	case CodeNotFound:
		return ErrNotFound
	case CodeInvalidInput:
		return ErrInvalidInput
	}
	return nil
}
