// Package blkdevtest provides a scripted blkdev.Oracle for tests.
package blkdevtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tjper/isak/internal/blkdev"
	"github.com/tjper/isak/internal/device"

	"github.com/google/uuid"
)

// ErrScripted is returned by operations configured to fail with Fail.
var ErrScripted = errors.New("scripted oracle failure")

// Op names an Oracle operation that can be scripted to fail.
type Op string

const (
	OpOpenByPath Op = "open_by_path"
	OpCache      Op = "cache"
	OpProbeAll   Op = "probe_all"
	OpName       Op = "name"
	OpWholeDisk  Op = "whole_disk"
	OpOpenProbe  Op = "open_probe"
	OpSafeProbe  Op = "safe_probe"
)

// New creates an empty Oracle.
func New() *Oracle {
	return &Oracle{
		nodes:   make(map[string]device.Number),
		names:   make(map[device.Number]string),
		parents: make(map[device.Number]device.Number),
		tables:  make(map[string]blkdev.PartitionList),
		tokens:  make(map[string]string),
		misses:  make(map[string]int),
		fail:    make(map[Op]error),
	}
}

// Oracle is an in-memory blkdev.Oracle. It is safe for concurrent use.
type Oracle struct {
	mutex sync.Mutex

	nodes   map[string]device.Number
	names   map[device.Number]string
	parents map[device.Number]device.Number
	tables  map[string]blkdev.PartitionList
	tokens  map[string]string
	misses  map[string]int
	fail    map[Op]error

	// Snapshots records the snapshot argument of every Cache call.
	Snapshots []string
	// Scans counts ProbeAll calls.
	Scans int
	// Closed counts Cache.Close calls.
	Closed int
}

// AddDisk registers a whole disk at path.
func (o *Oracle) AddDisk(path string, n device.Number) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.nodes[path] = n
	o.names[n] = path
	if _, ok := o.tables[path]; !ok {
		o.tables[path] = blkdev.PartitionList{}
	}
}

// AddPartition registers partition number partno of the disk at disk. When
// id is non-nil the partition is reachable through its PARTUUID token.
func (o *Oracle) AddPartition(disk, path string, n device.Number, partno int, id *uuid.UUID) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.nodes[path] = n
	o.names[n] = path
	o.parents[n] = o.nodes[disk]
	o.tables[disk] = append(o.tables[disk], blkdev.Partition{Number: partno, UUID: id})
	if id != nil {
		o.tokens[blkdev.PartUUIDToken(*id)] = path
	}
}

// AddToken maps token to path in every subsequent cache.
func (o *Oracle) AddToken(token, path string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.tokens[token] = path
}

// Miss makes the next count lookups of token report a miss even when the
// token is mapped.
func (o *Oracle) Miss(token string, count int) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.misses[token] = count
}

// Fail makes op return err. A nil err clears the failure.
func (o *Oracle) Fail(op Op, err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if err == nil {
		delete(o.fail, op)
		return
	}
	o.fail[op] = err
}

func (o *Oracle) failure(op Op) error {
	if err, ok := o.fail[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// OpenByPath implements blkdev.Oracle.
func (o *Oracle) OpenByPath(path string) (device.Number, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if err := o.failure(OpOpenByPath); err != nil {
		return 0, err
	}
	n, ok := o.nodes[path]
	if !ok {
		return 0, fmt.Errorf("no such device; path: %s", path)
	}
	return n, nil
}

// Cache implements blkdev.Oracle. Each cache sees the tokens mapped at the
// time of its ProbeAll.
func (o *Oracle) Cache(snapshot string) (blkdev.Cache, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if err := o.failure(OpCache); err != nil {
		return nil, err
	}
	o.Snapshots = append(o.Snapshots, snapshot)
	return &cache{oracle: o}, nil
}

// Name implements blkdev.Oracle.
func (o *Oracle) Name(dev device.Number) (string, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if err := o.failure(OpName); err != nil {
		return "", err
	}
	name, ok := o.names[dev]
	if !ok {
		return "", fmt.Errorf("unknown device; number: %s", dev)
	}
	return name, nil
}

// WholeDisk implements blkdev.Oracle.
func (o *Oracle) WholeDisk(dev device.Number) (string, device.Number, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if err := o.failure(OpWholeDisk); err != nil {
		return "", 0, err
	}
	if _, ok := o.names[dev]; !ok {
		return "", 0, fmt.Errorf("unknown device; number: %s", dev)
	}
	parent, ok := o.parents[dev]
	if !ok {
		parent = dev
	}
	return o.names[parent], parent, nil
}

// OpenProbe implements blkdev.Oracle.
func (o *Oracle) OpenProbe(name string) (blkdev.Probe, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if err := o.failure(OpOpenProbe); err != nil {
		return nil, err
	}
	if _, ok := o.nodes[name]; !ok {
		return nil, fmt.Errorf("no such device; path: %s", name)
	}
	return &probe{oracle: o, name: name}, nil
}

type cache struct {
	oracle *Oracle
	tokens map[string]string
}

func (c *cache) ProbeAll() error {
	c.oracle.mutex.Lock()
	defer c.oracle.mutex.Unlock()

	if err := c.oracle.failure(OpProbeAll); err != nil {
		return err
	}
	c.oracle.Scans++
	c.tokens = make(map[string]string, len(c.oracle.tokens))
	for token, path := range c.oracle.tokens {
		c.tokens[token] = path
	}
	return nil
}

func (c *cache) DevName(token string) (string, error) {
	c.oracle.mutex.Lock()
	defer c.oracle.mutex.Unlock()

	if n := c.oracle.misses[token]; n > 0 {
		c.oracle.misses[token] = n - 1
		return "", fmt.Errorf("%w; token: %s", blkdev.ErrNotFound, token)
	}
	path, ok := c.tokens[token]
	if !ok {
		return "", fmt.Errorf("%w; token: %s", blkdev.ErrNotFound, token)
	}
	return path, nil
}

func (c *cache) Close() error {
	c.oracle.mutex.Lock()
	defer c.oracle.mutex.Unlock()

	c.oracle.Closed++
	c.tokens = nil
	return nil
}

type probe struct {
	oracle     *Oracle
	name       string
	partitions bool
	probed     bool
}

func (p *probe) EnablePartitions(enable bool) { p.partitions = enable }

func (p *probe) EnableSuperblocks(bool) {}

func (p *probe) SafeProbe() error {
	p.oracle.mutex.Lock()
	defer p.oracle.mutex.Unlock()

	if err := p.oracle.failure(OpSafeProbe); err != nil {
		return err
	}
	p.probed = true
	return nil
}

func (p *probe) Partitions() (blkdev.PartitionList, error) {
	if !p.partitions || !p.probed {
		return nil, errors.New("partition probing not run")
	}

	p.oracle.mutex.Lock()
	defer p.oracle.mutex.Unlock()

	return p.oracle.tables[p.name], nil
}

func (p *probe) Close() error { return nil }
