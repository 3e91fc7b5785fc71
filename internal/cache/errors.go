package cache

import "errors"

var (
	// ErrEntryTooLarge is returned when a single entry is bigger than MaxTotalSize.
	ErrEntryTooLarge = errors.New("cache: entry exceeds max total size")
	// ErrCorruptPayload wraps codec and record decoding failures.
	ErrCorruptPayload = errors.New("cache: corrupt payload")
	// ErrPersistenceDisabled is returned by Probe when no backend is configured.
	ErrPersistenceDisabled = errors.New("cache: persistence disabled")
	// ErrReservedKey is returned for keys that collide with internal bookkeeping records.
	ErrReservedKey = errors.New("cache: reserved key")
)
