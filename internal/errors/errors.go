// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLinked is returned when a channel has no repository mapping.
	ErrNotLinked = errors.New("channel is not linked to any repository")

	// ErrRepositoryNotFound is returned when a repository cannot be verified against the remote API.
	ErrRepositoryNotFound = errors.New("repository not found or not accessible")
)

// ErrInvalidRepoFormat is returned when a repository string is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}
