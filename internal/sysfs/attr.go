package sysfs

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tjper/isak/internal/device"

	"github.com/spf13/afero"
)

func (o *Oracle) classDir() string { return filepath.Join(o.sysDir, "class", "block") }

func (o *Oracle) blockDir() string { return filepath.Join(o.sysDir, "block") }

func (o *Oracle) numberDir(n device.Number) string {
	return filepath.Join(o.sysDir, "dev", "block", n.String())
}

func (o *Oracle) exists(path string) bool {
	ok, _ := afero.Exists(o.fs, path)
	return ok
}

// attr reads a single-value sysfs attribute.
func (o *Oracle) attr(dir, name string) (string, error) {
	b, err := afero.ReadFile(o.fs, filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("read attribute; path: %s, error: %w", filepath.Join(dir, name), err)
	}
	return strings.TrimSpace(string(b)), nil
}

// number reads the dev attribute of the device directory dir.
func (o *Oracle) number(dir string) (device.Number, error) {
	value, err := o.attr(dir, "dev")
	if err != nil {
		return 0, err
	}
	return device.Parse(value)
}

// uevent reads the KEY=VALUE pairs of dir's uevent attribute. Lines without
// a separator are skipped.
func (o *Oracle) uevent(dir string) (map[string]string, error) {
	b, err := afero.ReadFile(o.fs, filepath.Join(dir, "uevent"))
	if err != nil {
		return nil, fmt.Errorf("read uevent; path: %s, error: %w", dir, err)
	}

	attrs := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		attrs[key] = value
	}
	return attrs, scanner.Err()
}

// devnode returns the node path of the device directory dir, falling back to
// the directory name when uevent carries no DEVNAME.
func (o *Oracle) devnode(dir string) string {
	attrs, err := o.uevent(dir)
	if err != nil || attrs["DEVNAME"] == "" {
		return filepath.Join(o.devDir, filepath.Base(dir))
	}
	return filepath.Join(o.devDir, attrs["DEVNAME"])
}
