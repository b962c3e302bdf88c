package server

import "errors"

var (
	// ErrRootNotFound is returned when the site root does not exist.
	ErrRootNotFound = errors.New("site root not found")

	// ErrRootNotDir is returned when the site root is not a directory.
	ErrRootNotDir = errors.New("site root is not a directory")
)
