// Package exit carries process exit codes through cobra's error return.
package exit

import (
	"errors"
	"fmt"

	"github.com/yourusername/pvemap/internal/proxmox"
)

// Exit codes
const (
	CodeConfig     = 1
	CodeAuth       = 2
	CodeCollection = 3
)

type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code int, err error) error {
	return &Error{Code: code, Err: err}
}

// FromError picks the exit code for an adapter error. Anything that is not
// an authentication or collection failure exits with CodeConfig.
func FromError(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *Error
	if errors.As(err, &exitErr) {
		return err
	}

	var authErr *proxmox.AuthenticationError
	if errors.As(err, &authErr) {
		return New(CodeAuth, err)
	}
	var collErr *proxmox.CollectionError
	if errors.As(err, &collErr) {
		return New(CodeCollection, err)
	}
	return New(CodeConfig, err)
}
