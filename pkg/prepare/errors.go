package prepare

import "github.com/pkg/errors"

var (
	// ErrUnknownView is returned for a view name other than ant or post
	ErrUnknownView = errors.New("unknown view")

	// ErrNoView is returned when an array carries no frame for the requested view
	ErrNoView = errors.New("view not available for shape")

	// ErrMissingDir is returned when a source directory does not exist
	ErrMissingDir = errors.New("directory does not exist")

	// ErrSameDir is returned when an output directory would overwrite its input
	ErrSameDir = errors.New("output directory equals input directory")
)
