package sysfs

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tjper/isak/internal/blkdev"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// foldedTags compare their values case-insensitively.
var foldedTags = map[string]bool{
	"UUID":     true,
	"PARTUUID": true,
	"PTUUID":   true,
}

// Cache maps tags of every visible block device to its node. A Cache is
// empty until ProbeAll runs.
type Cache struct {
	oracle   *Oracle
	snapshot string

	tags    map[string]string
	devices []entry
}

type entry struct {
	Name   string            `yaml:"devname"`
	Number string            `yaml:"devno"`
	Tags   map[string]string `yaml:"tags,omitempty"`
}

type snapshot struct {
	Devices []entry `yaml:"devices"`
}

// ProbeAll re-enumerates the devices under the sysfs block class, replacing
// any previous scan. Devices whose signatures cannot be read are still
// listed, without tags.
func (c *Cache) ProbeAll() error {
	o := c.oracle
	entries, err := afero.ReadDir(o.fs, o.classDir())
	if err != nil {
		return fmt.Errorf("read block class; path: %s, error: %w", o.classDir(), err)
	}

	c.tags = make(map[string]string)
	c.devices = nil

	index := make(map[string]int)
	for _, e := range entries {
		dir := filepath.Join(o.classDir(), e.Name())

		if size, err := o.attr(dir, "size"); err == nil && size == "0" {
			logger.Debugf("skip empty device; name: %s", e.Name())
			continue
		}
		n, err := o.number(dir)
		if err != nil {
			logger.Debugf("skip device; name: %s, error: %s", e.Name(), err)
			continue
		}

		index[e.Name()] = len(c.devices)
		c.devices = append(c.devices, entry{
			Name:   o.devnode(dir),
			Number: n.String(),
			Tags:   make(map[string]string),
		})
	}

	for name, i := range index {
		c.probeSuperblock(i)
		if !o.exists(filepath.Join(o.classDir(), name, "partition")) {
			c.probePartitions(name, index)
		}
	}

	for _, d := range c.devices {
		for key, value := range d.Tags {
			c.add(key, value, d.Name)
		}
	}

	if c.snapshot != "" {
		if err := c.write(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) probeSuperblock(i int) {
	d := &c.devices[i]

	sb, err := c.oracle.superblocks.ReadSuperblock(d.Name)
	if err != nil {
		logger.Debugf("skip superblock; device: %s, error: %s", d.Name, err)
		return
	}
	if sb.HasPartitionTable() {
		d.Tags["PTTYPE"] = sb.PTType
		if sb.PTUUID != nil {
			d.Tags["PTUUID"] = sb.PTUUID.String()
		}
		return
	}
	if !sb.Found() {
		return
	}

	d.Tags["TYPE"] = sb.Type
	if sb.UUID != nil {
		d.Tags["UUID"] = sb.UUID.String()
	}
	if sb.Label != "" {
		d.Tags["LABEL"] = sb.Label
	}
}

// probePartitions tags the partitions of the whole disk named disk with the
// UUIDs and labels found in its partition table.
func (c *Cache) probePartitions(disk string, index map[string]int) {
	o := c.oracle
	node := c.devices[index[disk]].Name

	parts, err := o.tables.ReadPartitions(node)
	if err != nil {
		logger.Debugf("skip partition table; device: %s, error: %s", node, err)
		return
	}
	if len(parts) == 0 {
		return
	}

	children, err := afero.ReadDir(o.fs, filepath.Join(o.blockDir(), disk))
	if err != nil {
		logger.Debugf("skip partition table; device: %s, error: %s", node, err)
		return
	}

	for _, child := range children {
		value, err := o.attr(filepath.Join(o.blockDir(), disk, child.Name()), "partition")
		if err != nil {
			continue
		}
		partno, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		part, ok := parts.ByNumber(partno)
		if !ok {
			continue
		}
		i, ok := index[child.Name()]
		if !ok {
			continue
		}

		if part.UUID != nil {
			c.devices[i].Tags["PARTUUID"] = part.UUID.String()
		}
		if part.Label != "" {
			c.devices[i].Tags["PARTLABEL"] = part.Label
		}
	}
}

// add records key=value for path unless an earlier device already claimed
// it.
func (c *Cache) add(key, value, path string) {
	token := key + "=" + fold(key, value)
	if prev, ok := c.tags[token]; ok && prev != path {
		logger.Debugf("duplicate tag; token: %s, kept: %s, ignored: %s", token, prev, path)
		return
	}
	c.tags[token] = path
}

// DevName returns the node of the device carrying token. Tokens take the form
// KEY=VALUE, VALUE optionally quoted. A token without "=" is taken to be a
// device name and returned unchanged.
func (c *Cache) DevName(token string) (string, error) {
	key, value, ok := strings.Cut(token, "=")
	if !ok {
		return token, nil
	}

	path, ok := c.tags[key+"="+fold(key, unquote(value))]
	if !ok {
		return "", fmt.Errorf("%w; token: %s", blkdev.ErrNotFound, token)
	}
	return path, nil
}

// Close releases the scan results.
func (c *Cache) Close() error {
	c.tags = nil
	c.devices = nil
	return nil
}

func (c *Cache) write() error {
	b, err := yaml.Marshal(snapshot{Devices: c.devices})
	if err != nil {
		return fmt.Errorf("marshal cache snapshot; error: %w", err)
	}
	if err := c.oracle.fs.MkdirAll(filepath.Dir(c.snapshot), 0755); err != nil {
		return fmt.Errorf("mkdir cache snapshot; path: %s, error: %w", c.snapshot, err)
	}
	if err := afero.WriteFile(c.oracle.fs, c.snapshot, b, 0644); err != nil {
		return fmt.Errorf("write cache snapshot; path: %s, error: %w", c.snapshot, err)
	}
	return nil
}

func fold(key, value string) string {
	if foldedTags[key] {
		return strings.ToLower(value)
	}
	return value
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if first == last && (first == '"' || first == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}
