package blkdev

import (
	"errors"
	"fmt"

	"github.com/tjper/isak/internal/device"
	"github.com/tjper/isak/internal/validator"

	"github.com/google/uuid"
)

// Request describes which block device to resolve. Empty strings mean the
// corresponding input is absent.
type Request struct {
	// Token is a KEY=VALUE string such as LABEL=boot, or a bare key
	// understood by the cache. A token of only whitespace is rejected by
	// Validate rather than looked up.
	Token string
	// Path names a device node directly. When both Token and Path resolve,
	// Path wins.
	Path string
	// Parent resolves to the whole disk backing the device.
	Parent bool
	// PartNo, when set, descends from the (parent) device to the partition
	// with this number.
	PartNo *int
}

// Validate checks r for malformed input.
func (r Request) Validate() error {
	v := validator.New()
	v.NotBlank(r.Token, "token")
	v.NotBlank(r.Path, "device")
	v.NonNegative(r.PartNo, "partition number")
	return v.Err()
}

// Device is a resolved block device.
type Device struct {
	Number device.Number
	// Name is the canonical device path.
	Name string
}

// Resolve runs the resolution pipeline for req: token lookup, path override,
// candidate check, parent walk, partition descent. It returns exactly one
// device or an error.
func (r *Resolver) Resolve(req Request) (*Device, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		candidate device.Number
		found     bool
		tokenMiss bool
	)

	if req.Token != "" {
		dev, err := r.ResolveToken(req.Token)
		switch {
		case errors.Is(err, ErrNotFound):
			logger.Debugf("token matched no device; token: %s", req.Token)
			tokenMiss = true
		case err != nil:
			return nil, err
		default:
			candidate, found = dev, true
		}
	}

	if req.Path != "" {
		logger.Debugf("device: %s", req.Path)
		dev, err := r.OpenPath(req.Path)
		if err != nil {
			return nil, err
		}
		candidate, found = dev, true
	}

	if !found {
		if tokenMiss {
			return nil, fmt.Errorf("%w; token matched no device, token: %s", ErrDeviceNotFound, req.Token)
		}
		return nil, fmt.Errorf("%w; no token or device given", ErrDeviceNotFound)
	}

	if req.Parent {
		parent, err := r.Parent(candidate)
		if err != nil {
			return nil, err
		}
		candidate = parent
	}

	if req.PartNo != nil {
		part, err := r.Descend(candidate, *req.PartNo)
		if err != nil {
			return nil, err
		}
		candidate = part
	}

	name, err := r.oracle.Name(candidate)
	if err != nil {
		return nil, oracleError(fmt.Sprintf("device name; number: %s", candidate), err)
	}

	return &Device{Number: candidate, Name: name}, nil
}

// Parent returns the whole disk backing dev. A whole disk resolves to
// itself.
func (r *Resolver) Parent(dev device.Number) (device.Number, error) {
	name, parent, err := r.oracle.WholeDisk(dev)
	if err != nil {
		return 0, oracleError(fmt.Sprintf("whole disk; number: %s", dev), err)
	}
	logger.Debugf("parent: %s (%s)", name, parent)
	return parent, nil
}

// Descend finds partition number partno on the parent disk and resolves it
// back through a fresh cache by its PARTUUID. Partition table UUIDs are not
// openable directly, so the cache is the only route to a live node.
func (r *Resolver) Descend(parent device.Number, partno int) (device.Number, error) {
	name, err := r.oracle.Name(parent)
	if err != nil {
		return 0, oracleError(fmt.Sprintf("device name; number: %s", parent), err)
	}

	part, err := r.partition(name, partno)
	if err != nil {
		return 0, err
	}
	if part.UUID == nil {
		return 0, fmt.Errorf("%w; device: %s, partition: %d", ErrPartitionUUIDMissing, name, partno)
	}

	token := PartUUIDToken(*part.UUID)
	logger.Debugf("partition %d of %s: %s", partno, name, token)

	dev, err := r.ResolveToken(token)
	if err != nil {
		return 0, fmt.Errorf("resolve partition; device: %s, partition: %d, error: %w", name, partno, err)
	}
	return dev, nil
}

func (r *Resolver) partition(name string, partno int) (part Partition, err error) {
	probe, err := r.oracle.OpenProbe(name)
	if err != nil {
		return Partition{}, oracleError(fmt.Sprintf("open probe; device: %s", name), err)
	}
	defer func() {
		if cerr := probe.Close(); cerr != nil && err == nil {
			err = oracleError(fmt.Sprintf("close probe; device: %s", name), cerr)
		}
	}()

	probe.EnablePartitions(true)
	probe.EnableSuperblocks(true)
	if err := probe.SafeProbe(); err != nil {
		return Partition{}, oracleError(fmt.Sprintf("safe probe; device: %s", name), err)
	}

	parts, err := probe.Partitions()
	if err != nil {
		return Partition{}, oracleError(fmt.Sprintf("partition table; device: %s", name), err)
	}

	part, ok := parts.ByNumber(partno)
	if !ok {
		return Partition{}, fmt.Errorf("%w; device: %s, partition: %d", ErrPartitionNotFound, name, partno)
	}
	return part, nil
}

// PartUUIDToken builds the PARTUUID=<uuid> token for id, with the UUID in
// its lower-case 8-4-4-4-12 form.
func PartUUIDToken(id uuid.UUID) string {
	return "PARTUUID=" + id.String()
}
