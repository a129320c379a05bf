package cli

import (
	"context"
	"errors"
	"time"

	"github.com/tjper/isak/internal/blkdev"
	ierrors "github.com/tjper/isak/internal/errors"
	"github.com/tjper/isak/internal/fsnotify"
)

// resolve runs req once, or, when wait is positive, re-runs it every time an
// entry under dir changes until it succeeds, fails for a reason more devices
// cannot fix, or wait elapses. The last resolution error is returned.
func resolve(
	ctx context.Context,
	r *blkdev.Resolver,
	req blkdev.Request,
	wait time.Duration,
	dir string,
	watch watchFunc,
) (*blkdev.Device, error) {
	if wait <= 0 {
		return r.Resolve(req)
	}

	logger.Infof("waiting up to %s for device", wait)
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	// watch before the first attempt so nodes created in between are seen
	events, stop, err := watch(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := stop(); err != nil {
			logger.Warnf("stop watch; dir: %s, error: %s", dir, err)
		}
	}()

	for {
		dev, err := r.Resolve(req)
		if err == nil || !retryable(err) {
			return dev, err
		}
		logger.Infof("device not ready, retrying on next device event; error: %s", err)

		select {
		case <-ctx.Done():
			return nil, err
		case event, ok := <-events:
			if !ok {
				return nil, err
			}
			logger.Debugf("device event; op: %s, path: %s", event.Op, event.Path)
		}
	}
}

// retryable reports whether err may clear once more devices appear.
func retryable(err error) bool {
	return errors.Is(err, blkdev.ErrDeviceNotFound) ||
		errors.Is(err, blkdev.ErrPartitionNotFound) ||
		errors.Is(err, blkdev.ErrNotFound)
}

func watchDir(dir string) (<-chan fsnotify.Event, func() error, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, ierrors.Wrapf(err, "watch %s", dir)
	}
	if _, err := w.AddWatch(dir); err != nil {
		w.Close()
		return nil, nil, ierrors.Wrapf(err, "watch %s", dir)
	}
	return w.Events, w.Close, nil
}
