package blkdev

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a token matched no device in the cache. The
	// orchestrator treats it as a soft miss for the initial token.
	ErrNotFound = errors.New("token not found")

	// ErrDeviceNotFound indicates no candidate device could be established
	// from the request.
	ErrDeviceNotFound = errors.New("block device not found")

	// ErrPartitionNotFound indicates the parent's partition table has no
	// entry with the requested number.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrPartitionUUIDMissing indicates the partition exists but its table
	// format carries no UUID for it.
	ErrPartitionUUIDMissing = errors.New("partition uuid missing")

	// ErrOracle indicates the underlying probing subsystem failed.
	ErrOracle = errors.New("block device oracle")
)

// oracleError wraps err so that it matches ErrOracle while keeping err in the
// chain. Errors already matching ErrOracle or ErrNotFound are returned as is.
func oracleError(action string, err error) error {
	if errors.Is(err, ErrOracle) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s; error: %w", action, err)
	}
	return fmt.Errorf("%w; %s, error: %w", ErrOracle, action, err)
}
