package route

import "errors"

// Route table and allowlist validation errors.
var (
	// ErrInvalidPath is returned when a route path or category prefix does not
	// start with "/".
	ErrInvalidPath = errors.New("invalid path: must start with /")

	// ErrEmptyFile is returned when a route does not name a file.
	ErrEmptyFile = errors.New("invalid route: file is required")

	// ErrUnsafeFile is returned when a route file escapes the site root.
	ErrUnsafeFile = errors.New("invalid route: file must stay inside the site root")

	// ErrInvalidLocale is returned when a locale is not a valid BCP 47 tag.
	ErrInvalidLocale = errors.New("invalid locale")
)
