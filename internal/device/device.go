// Package device provides an API composed of utilities for interacting with
// block device nodes and their numbers.
package device

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	// ErrNotBlockDevice indicates a path exists but is not a block special
	// file.
	ErrNotBlockDevice = errors.New("not a block device")
	// ErrNodeNotFound indicates no node under the walked directory carries
	// the requested device number.
	ErrNodeNotFound = errors.New("device node not found")
	// ErrInvalidNumber indicates a malformed "major:minor" string.
	ErrInvalidNumber = errors.New("invalid device number")
)

// Number is a block device identifier, the major/minor pair packed the way
// the kernel reports it in st_rdev. Two Numbers name the same device iff they
// are equal.
type Number uint64

// New packs major and minor into a Number.
func New(major, minor uint32) Number {
	return Number(unix.Mkdev(major, minor))
}

// Major returns the device major.
func (n Number) Major() uint32 { return unix.Major(uint64(n)) }

// Minor returns the device minor.
func (n Number) Minor() uint32 { return unix.Minor(uint64(n)) }

// String formats n as "major:minor", the form used by sysfs.
func (n Number) String() string {
	return fmt.Sprintf("%d:%d", n.Major(), n.Minor())
}

// Parse reads a "major:minor" string, such as the contents of a sysfs dev
// attribute.
func Parse(s string) (Number, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w; value: %q", ErrInvalidNumber, s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w; value: %q, error: %v", ErrInvalidNumber, s, err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w; value: %q, error: %v", ErrInvalidNumber, s, err)
	}
	return New(uint32(major), uint32(minor)), nil
}

// Stat retrieves the device number of the block special file at path.
func Stat(path string) (Number, error) {
	var stats unix.Stat_t
	if err := unix.Stat(path, &stats); err != nil {
		return 0, fmt.Errorf("stat device; path: %s, error: %w", path, err)
	}
	if stats.Mode&unix.S_IFMT != unix.S_IFBLK {
		return 0, fmt.Errorf("%w; path: %s", ErrNotBlockDevice, path)
	}
	return Number(stats.Rdev), nil
}

// Find walks root looking for a block special file whose device number is n
// and returns its path. Unreadable entries are skipped.
func Find(root string, n Number) (string, error) {
	var found string
	if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.Type() != fs.ModeDevice {
			return nil
		}

		var stats unix.Stat_t
		if err := unix.Stat(path, &stats); err != nil {
			return nil
		}

		if stats.Mode&unix.S_IFMT != unix.S_IFBLK || Number(stats.Rdev) != n {
			return nil
		}

		found = path
		return filepath.SkipAll
	}); err != nil {
		return "", fmt.Errorf("walk device nodes; root: %s, error: %w", root, err)
	}

	if found == "" {
		return "", fmt.Errorf("%w; root: %s, number: %s", ErrNodeNotFound, root, n)
	}
	return found, nil
}
