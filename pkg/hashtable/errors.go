package hashtable

import "errors"

var (
	// ErrInvalidFormat indicates a bad magic or an inconsistent segment table.
	ErrInvalidFormat = errors.New("invalid hashtable format")
	// ErrTruncatedRead indicates a name record cut short by the end of the file.
	ErrTruncatedRead = errors.New("truncated read")
	// ErrNotFound indicates a hash that is not in the table.
	ErrNotFound = errors.New("hash not found")
	// ErrNameTooLong indicates a name whose UTF-8 encoding exceeds MaxNameLen.
	ErrNameTooLong = errors.New("name too long")
	// ErrNoSource indicates an unresolved entry with no backing stream to read from.
	ErrNoSource = errors.New("no backing stream for unresolved entry")
)
