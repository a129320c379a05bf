package blkdev

import (
	"fmt"
	"os"

	"github.com/tjper/isak/internal/device"
	"github.com/tjper/isak/internal/log"
)

// logger is an object for logging package events to stderr.
var logger = log.New(os.Stderr, "blkdev")

// NewResolver creates a Resolver instance backed by oracle.
func NewResolver(oracle Oracle, options ...ResolverOption) *Resolver {
	r := &Resolver{oracle: oracle}
	for _, option := range options {
		option(r)
	}
	return r
}

// Resolver turns tokens and device paths into block devices. Resolver holds
// no state between calls; each token lookup obtains its own cache.
type Resolver struct {
	oracle   Oracle
	snapshot string
}

// ResolverOption mutates the Resolver instance. This is typically used for
// configuration with NewResolver.
type ResolverOption func(*Resolver)

// WithCacheSnapshot configures the location each token cache is allowed to
// persist to.
func WithCacheSnapshot(path string) ResolverOption {
	return func(r *Resolver) { r.snapshot = path }
}

// ResolveToken refreshes a fresh cache, looks token up and opens the device
// path it maps to. A token matching nothing returns an error matching
// ErrNotFound.
func (r *Resolver) ResolveToken(token string) (dev device.Number, err error) {
	logger.Debugf("token: %s", token)

	cache, err := r.oracle.Cache(r.snapshot)
	if err != nil {
		return 0, oracleError("get cache", err)
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = oracleError("close cache", cerr)
		}
	}()

	if err := cache.ProbeAll(); err != nil {
		return 0, oracleError("probe all devices", err)
	}

	path, err := cache.DevName(token)
	if err != nil {
		return 0, oracleError(fmt.Sprintf("lookup token; token: %s", token), err)
	}
	logger.Debugf("dev: %s", path)

	return r.OpenPath(path)
}

// OpenPath probes path directly, without consulting a cache.
func (r *Resolver) OpenPath(path string) (device.Number, error) {
	dev, err := r.oracle.OpenByPath(path)
	if err != nil {
		return 0, oracleError(fmt.Sprintf("open path; path: %s", path), err)
	}
	return dev, nil
}
