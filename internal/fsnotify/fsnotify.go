// Package fsnotify provides an API for watching directories for entries being
// created or removed, such as device nodes appearing under /dev.
package fsnotify

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	ierrors "github.com/tjper/isak/internal/errors"
	"github.com/tjper/isak/internal/log"

	"golang.org/x/sys/unix"
)

// logger is an object for logging package events to stderr.
var logger = log.New(os.Stderr, "fsnotify")

var (
	// ErrInvalidFD indicates the Watcher was unable to initialize.
	ErrInvalidFD = errors.New("invalid file descriptor")
	// ErrWatchExists indicates the path specifed is already being watched.
	ErrWatchExists = errors.New("path is already being watched")
	// ErrWatchDNE indicates the path specified is not being watched.
	ErrWatchDNE = errors.New("path is not being watched")
)

// watchMask selects the events reported for a watched directory.
const watchMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MOVED_TO | unix.IN_ATTRIB | unix.IN_DELETE_SELF

// NewWatcher creates a Watcher instance.
func NewWatcher() (*Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, ierrors.Wrap(err)
	}

	file := os.NewFile(uintptr(fd), "inotify")
	if file == nil {
		unix.Close(fd)
		return nil, fmt.Errorf("watcher file descriptor; error: %w", ErrInvalidFD)
	}

	w := &Watcher{
		mutex:   new(sync.Mutex),
		watches: make(map[string]int),
		paths:   make(map[int]string),
		Events:  make(chan Event),
		done:    make(chan struct{}),
		fd:      fd,
		file:    file,
		closed:  make(chan struct{}),
	}

	go w.readEvents()
	return w, nil
}

// Watcher utilizes the inotify API to observe and publish events related
// watched filesystem entities.
type Watcher struct {
	mutex   *sync.Mutex
	watches map[string]int
	paths   map[int]string
	Events  chan Event

	fd   int
	file *os.File

	done   chan struct{}
	closed chan struct{}
}

// AddWatch instructs the Watcher to begin watching the specified path. The
// first return value is watch descriptor unique to this path. If the path is
// being watched, the ErrWatchExists error will be returned.
func (w *Watcher) AddWatch(path string) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	path = filepath.Clean(path)
	wd, ok := w.watches[path]
	if ok {
		return wd, ErrWatchExists
	}

	wd, err := unix.InotifyAddWatch(w.fd, path, watchMask)
	if err != nil {
		return 0, fmt.Errorf("add watch; path: %s, error: %w", path, err)
	}

	w.watches[path] = wd
	w.paths[wd] = path

	return wd, nil
}

// RemoveWatch instructs the Watcher to stop watching the specified path. If
// the path is not being watched, the ErrWatchDNE error will be returned.
func (w *Watcher) RemoveWatch(path string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	path = filepath.Clean(path)
	wd, ok := w.watches[path]
	if !ok {
		return ErrWatchDNE
	}

	// On success, inotify_rm_watch() returns zero.  On error, -1 is returned
	// and errno is set to  indicate  the cause of the error.
	success, err := unix.InotifyRmWatch(w.fd, uint32(wd))
	if success == -1 {
		return fmt.Errorf("remove watch; path: %s, error: %w", path, err)
	}

	delete(w.watches, path)
	delete(w.paths, wd)

	return nil
}

// Close stops the Watcher and closes Events.
func (w *Watcher) Close() error {
	if w.isDone() {
		return nil
	}

	close(w.done)

	<-w.closed
	return nil
}

// isDone indicates if the watcher has intitiated closing.
func (w *Watcher) isDone() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// readEvents reads inotify events from the Watcher's inotifiy file descriptor
// and publishes them on the Watcher.Events channel.
func (w *Watcher) readEvents() {
	defer close(w.closed)
	defer close(w.Events)

	go func() {
		<-w.done
		if err := w.file.Close(); err != nil {
			logger.Warnf("close watcher; error: %s", err)
		}
	}()

	// room for many events, each carrying a name of up to NAME_MAX bytes
	buf := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	for {
		if w.isDone() {
			return
		}

		n, err := w.file.Read(buf)
		if errors.Is(err, os.ErrClosed) {
			return
		}
		if err != nil {
			logger.Errorf("inotify event read; error: %s", err)
			continue
		}

		for _, e := range w.parse(buf[:n]) {
			select {
			case <-w.done:
				return
			case w.Events <- e:
			}
		}
	}
}

// parse splits b into events. A trailing partial event is dropped.
func (w *Watcher) parse(b []byte) []Event {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	var events []Event
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(b); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&b[offset]))
		end := offset + unix.SizeofInotifyEvent + int(raw.Len)
		if end > len(b) {
			logger.Warnf("inotify event not fully read; size: %d, expected: %d", len(b)-offset, end-offset)
			break
		}
		name := string(bytes.TrimRight(b[offset+unix.SizeofInotifyEvent:end], "\x00"))
		offset = end

		// IN_DELETE_SELF occurs when the file/directory being watched is removed.
		// This should result in cleaning up the maps, otherwise we are no longer
		// in sync with the inotify kernel state.
		path, ok := w.paths[int(raw.Wd)]
		if ok && raw.Mask&unix.IN_DELETE_SELF == unix.IN_DELETE_SELF {
			delete(w.paths, int(raw.Wd))
			delete(w.watches, path)
		}

		e := newEvent(int(raw.Wd), raw.Mask, path, name)
		if e.Op == 0 {
			continue
		}
		events = append(events, e)
	}
	return events
}

func newEvent(wd int, mask uint32, dir, name string) Event {
	e := Event{Wd: wd, Path: dir}
	if name != "" {
		e.Path = filepath.Join(dir, name)
	}
	if mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
		e.Op |= Create
	}
	if mask&unix.IN_ATTRIB == unix.IN_ATTRIB {
		e.Op |= Chmod
	}
	if mask&(unix.IN_DELETE|unix.IN_DELETE_SELF) != 0 {
		e.Op |= Remove
	}
	return e
}

// Event is a change observed under a watched directory. Path is the entry
// that changed.
type Event struct {
	Op   Op
	Wd   int
	Path string
}

// Op describes the kind of change.
type Op int

const (
	Create Op = 1 << iota
	Chmod
	Remove
)

func (op Op) String() string {
	var buffer bytes.Buffer

	if op&Create == Create {
		buffer.WriteString("|CREATE")
	}
	if op&Chmod == Chmod {
		buffer.WriteString("|CHMOD")
	}
	if op&Remove == Remove {
		buffer.WriteString("|REMOVE")
	}
	if buffer.Len() == 0 {
		return ""
	}
	return buffer.String()[1:] // strip leading pipe
}
