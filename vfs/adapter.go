// Package vfs implements the workspace-scoped virtual filesystem: a
// mount table routing absolute paths to filesystem adapters by longest
// prefix, and a façade dispatching file operations to the owning
// adapter.
//
// Filesystem adapters are registered by name, typically from init()
// functions in adapter packages:
//
//	func init() {
//	    vfs.Register("mem", func() vfs.Adapter { return &adapter{} })
//	}
//
// An adapter's Configure turns mount options into a live FS value.
// Adapters whose filesystems are served by a backing process (a FUSE
// helper, a remote bridge) additionally implement ProcessStarter; the
// mount table launches and owns such processes so that unmount can
// stop them exactly once.
package vfs

import (
	"fmt"
	"sort"
	"sync"
)

// FileInfo describes a file or directory.
type FileInfo struct {
	Name string
	Dir  bool
	Size int64
}

// FS is the operation surface a filesystem adapter provides. Paths are
// relative to the mount root: "." for the root itself, otherwise
// slash-separated without a leading slash.
type FS interface {
	Stat(path string) (FileInfo, error)
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	List(path string) ([]FileInfo, error)
	Mkdir(path string) error
	Remove(path string) error
}

// MountOptions configure a single mount.
type MountOptions struct {
	// Managed marks the mount for bulk teardown by
	// UnmountWorkspace(..., managedOnly=true).
	Managed bool

	// Config is passed through to the adapter's Configure.
	Config map[string]string
}

// Process is a handle to an adapter's backing process.
type Process interface {
	// Stop terminates the process. Must be idempotent.
	Stop() error
}

// Adapter turns mount options into a live filesystem.
type Adapter interface {
	// Configure validates opts and returns the filesystem value for a
	// new mount. Configure must not start processes; that is
	// ProcessStarter's job.
	Configure(opts MountOptions) (FS, error)
}

// ProcessStarter is implemented by adapters whose filesystem is served
// by a backing process.
type ProcessStarter interface {
	// StartProcess launches the backing process for fs, or attaches to
	// one that already exists. preexisting reports the latter case, in
	// which the mount must not stop the process on unmount.
	StartProcess(fs FS, opts MountOptions) (proc Process, preexisting bool, err error)
}

// AdapterFunc is a constructor for Adapter implementations.
type AdapterFunc func() Adapter

var (
	adaptersMu sync.RWMutex
	adapters   = make(map[string]AdapterFunc)
)

// Register registers an adapter constructor under name.
// Panics if name is already registered (programming error).
func Register(name string, fn AdapterFunc) {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()

	if _, exists := adapters[name]; exists {
		panic(fmt.Sprintf("vfs adapter already registered: %s", name))
	}
	adapters[name] = fn
}

// NewAdapter creates an adapter instance for the given name.
func NewAdapter(name string) (Adapter, error) {
	adaptersMu.RLock()
	fn, ok := adapters[name]
	adaptersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown vfs adapter: %s", name)
	}
	return fn(), nil
}

// Adapters returns the registered adapter names, sorted.
func Adapters() []string {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()

	names := make([]string, 0, len(adapters))
	for name := range adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
