package memory

import "github.com/pkg/errors"

// Mapper errors.
var (
	ErrMisaligned        = errors.New("address is not page aligned")
	ErrInvalidPermission = errors.New("invalid permission bits")
	ErrOverlap           = errors.New("region overlaps an existing mapping")
	ErrNotMapped         = errors.New("range is not mapped")
	ErrOutOfRange        = errors.New("range exceeds the memory ceiling")
	ErrNoMemory          = errors.New("out of physical frames")
)

// Translation errors.
var (
	ErrUnmapped         = errors.New("virtual page has no mapping")
	ErrPermissionDenied = errors.New("page does not permit the access")
)
