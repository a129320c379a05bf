// Package sysfs implements blkdev.Oracle on top of the Linux sysfs and
// devtmpfs trees.
package sysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tjper/isak/internal/blkdev"
	"github.com/tjper/isak/internal/device"
	"github.com/tjper/isak/internal/log"
	"github.com/tjper/isak/internal/probe"

	"github.com/spf13/afero"
)

// logger is an object for logging package events to stderr.
var logger = log.New(os.Stderr, "sysfs")

// ErrWholeDiskNotFound indicates a partition's disk could not be located
// under the sysfs block directory.
var ErrWholeDiskNotFound = errors.New("whole disk not found")

const (
	sysDir = "/sys"
	devDir = "/dev"
)

// New creates an Oracle instance.
func New(options ...Option) *Oracle {
	o := &Oracle{
		fs:          afero.NewOsFs(),
		sysDir:      sysDir,
		devDir:      devDir,
		stat:        device.Stat,
		find:        device.Find,
		superblocks: probe.Superblocks{},
		tables:      probe.PartitionTables{},
	}
	for _, option := range options {
		option(o)
	}
	return o
}

// Oracle answers block device questions from sysfs attributes and on-disk
// signatures. Oracle keeps no state between calls.
type Oracle struct {
	fs     afero.Fs
	sysDir string
	devDir string

	stat        func(path string) (device.Number, error)
	find        func(root string, n device.Number) (string, error)
	superblocks probe.SuperblockReader
	tables      probe.PartitionTableReader
}

// Option mutates the Oracle instance. This is typically used for
// configuration with New.
type Option func(*Oracle)

// WithFs configures the filesystem sysfs attributes and snapshots are read
// from and written to.
func WithFs(fs afero.Fs) Option {
	return func(o *Oracle) { o.fs = fs }
}

// WithSysDir configures where sysfs is mounted.
func WithSysDir(dir string) Option {
	return func(o *Oracle) { o.sysDir = dir }
}

// WithDevDir configures where device nodes live.
func WithDevDir(dir string) Option {
	return func(o *Oracle) { o.devDir = dir }
}

// WithStat configures how device paths are turned into device numbers.
func WithStat(stat func(string) (device.Number, error)) Option {
	return func(o *Oracle) { o.stat = stat }
}

// WithFind configures how a node is located when sysfs does not name it.
func WithFind(find func(string, device.Number) (string, error)) Option {
	return func(o *Oracle) { o.find = find }
}

// WithSuperblockReader configures the filesystem signature reader.
func WithSuperblockReader(r probe.SuperblockReader) Option {
	return func(o *Oracle) { o.superblocks = r }
}

// WithPartitionTableReader configures the partition table reader.
func WithPartitionTableReader(r probe.PartitionTableReader) Option {
	return func(o *Oracle) { o.tables = r }
}

var _ blkdev.Oracle = (*Oracle)(nil)

// OpenByPath implements blkdev.Oracle.
func (o *Oracle) OpenByPath(path string) (device.Number, error) {
	return o.stat(path)
}

// Cache implements blkdev.Oracle.
func (o *Oracle) Cache(snapshot string) (blkdev.Cache, error) {
	return &Cache{oracle: o, snapshot: snapshot}, nil
}

// Name implements blkdev.Oracle. The node is named by the DEVNAME in the
// device's uevent; when sysfs has none the dev directory is searched.
func (o *Oracle) Name(dev device.Number) (string, error) {
	attrs, err := o.uevent(o.numberDir(dev))
	if err == nil && attrs["DEVNAME"] != "" {
		return filepath.Join(o.devDir, attrs["DEVNAME"]), nil
	}
	logger.Debugf("no DEVNAME in sysfs, searching %s; number: %s, error: %v", o.devDir, dev, err)

	name, err := o.find(o.devDir, dev)
	if err != nil {
		return "", fmt.Errorf("device name; number: %s, error: %w", dev, err)
	}
	return name, nil
}

// WholeDisk implements blkdev.Oracle.
func (o *Oracle) WholeDisk(dev device.Number) (string, device.Number, error) {
	dir := o.numberDir(dev)
	if !o.exists(filepath.Join(dir, "partition")) {
		name, err := o.Name(dev)
		if err != nil {
			return "", 0, err
		}
		return name, dev, nil
	}

	attrs, err := o.uevent(dir)
	if err != nil {
		return "", 0, err
	}
	kname := attrs["DEVNAME"]

	disks, err := afero.ReadDir(o.fs, o.blockDir())
	if err != nil {
		return "", 0, fmt.Errorf("read block dir; path: %s, error: %w", o.blockDir(), err)
	}
	for _, disk := range disks {
		if kname == "" || !o.exists(filepath.Join(o.blockDir(), disk.Name(), kname, "partition")) {
			continue
		}

		parent, err := o.number(filepath.Join(o.blockDir(), disk.Name()))
		if err != nil {
			return "", 0, err
		}
		name, err := o.Name(parent)
		if err != nil {
			return "", 0, err
		}
		return name, parent, nil
	}

	return "", 0, fmt.Errorf("%w; number: %s, name: %s", ErrWholeDiskNotFound, dev, kname)
}

// OpenProbe implements blkdev.Oracle.
func (o *Oracle) OpenProbe(name string) (blkdev.Probe, error) {
	if _, err := o.stat(name); err != nil {
		return nil, fmt.Errorf("open probe; error: %w", err)
	}
	return &deviceProbe{oracle: o, path: name}, nil
}
