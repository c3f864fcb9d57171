package vfs

import (
	"io"
	"sort"
	"sync"

	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/pathutil"
	"github.com/agentjido/jido-shell/shellerr"
)

// Ownership records who is responsible for a mount's backing process.
type Ownership string

const (
	// OwnershipOwned means the mount started the process and stops it
	// on unmount.
	OwnershipOwned Ownership = "owned"

	// OwnershipShared means the process pre-existed; the mount must
	// not stop it.
	OwnershipShared Ownership = "shared"

	// OwnershipNone means the adapter has no backing process.
	OwnershipNone Ownership = "none"
)

// Mount binds an absolute path prefix to a configured filesystem
// within one workspace.
type Mount struct {
	Path      string
	Adapter   string
	FS        FS
	Child     Process // nil unless the adapter started/attached a process
	Ownership Ownership
	Managed   bool
}

// Table is the mount table for all workspaces. A single Table is
// shared by every session; mount and unmount are serialised, path
// resolution takes a read lock only.
type Table struct {
	mu     sync.RWMutex
	mounts map[string][]*Mount // workspace id -> mounts, longest path first
	logger log.LibraryLogger
}

// NewTable creates an empty mount table.
func NewTable(logger log.LibraryLogger) *Table {
	if logger == nil {
		logger = log.NoOpLogger{}
	}
	return &Table{
		mounts: make(map[string][]*Mount),
		logger: logger,
	}
}

// MountAdapter mounts the named adapter at path within workspace ws.
//
// The path is normalised first. Configure failures surface as
// {vfs, invalid_adapter_config}; mounting an exact path twice fails
// with {vfs, path_already_mounted}. If the adapter starts processes,
// the process is launched before the mount becomes visible and its
// ownership recorded.
func (t *Table) MountAdapter(ws, path, adapterName string, opts MountOptions) (*Mount, error) {
	path = pathutil.Normalize(path)

	adapter, err := NewAdapter(adapterName)
	if err != nil {
		return nil, shellerr.Wrap(shellerr.VFSBadAdapter, err).WithContext("adapter", adapterName)
	}

	fs, err := adapter.Configure(opts)
	if err != nil {
		return nil, shellerr.Wrap(shellerr.VFSBadAdapter, err).
			WithContext("adapter", adapterName).
			WithContext("path", path)
	}

	mount := &Mount{
		Path:      path,
		Adapter:   adapterName,
		FS:        fs,
		Ownership: OwnershipNone,
		Managed:   opts.Managed,
	}

	if starter, ok := adapter.(ProcessStarter); ok {
		proc, preexisting, err := starter.StartProcess(fs, opts)
		if err != nil {
			return nil, shellerr.Wrap(shellerr.VFSBadAdapter, err).
				WithContext("adapter", adapterName).
				WithContext("path", path)
		}
		mount.Child = proc
		if preexisting {
			mount.Ownership = OwnershipShared
		} else if proc != nil {
			mount.Ownership = OwnershipOwned
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.mounts[ws] {
		if m.Path == path {
			// Roll back the resources configured for the losing mount.
			if err := t.release(mount); err != nil {
				t.logger.Warn("rollback after mount conflict at %s: %v", path, err)
			}
			return nil, shellerr.Newf(shellerr.VFSPathMounted, "path already mounted: %s", path).
				WithContext("workspace", ws).
				WithContext("path", path)
		}
	}

	t.mounts[ws] = append(t.mounts[ws], mount)
	sortMounts(t.mounts[ws])

	t.logger.Debug("mounted %s adapter at %s (workspace %s, ownership %s)", adapterName, path, ws, mount.Ownership)
	return mount, nil
}

// Unmount removes the exact mount at path, stopping the backing
// process iff the mount owns it. Fails with {vfs, not_found} if no
// mount exists at that path.
func (t *Table) Unmount(ws, path string) error {
	path = pathutil.Normalize(path)

	t.mu.Lock()
	var removed *Mount
	list := t.mounts[ws]
	for i, m := range list {
		if m.Path == path {
			removed = m
			t.mounts[ws] = append(list[:i], list[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	if removed == nil {
		return shellerr.Newf(shellerr.VFSNotFound, "no mount at %s", path).
			WithContext("workspace", ws).
			WithContext("path", path)
	}

	return t.release(removed)
}

// UnmountWorkspace tears down mounts for ws. With managedOnly set,
// only mounts flagged Managed are removed.
func (t *Table) UnmountWorkspace(ws string, managedOnly bool) error {
	t.mu.Lock()
	var removed, kept []*Mount
	for _, m := range t.mounts[ws] {
		if managedOnly && !m.Managed {
			kept = append(kept, m)
			continue
		}
		removed = append(removed, m)
	}
	if len(kept) == 0 {
		delete(t.mounts, ws)
	} else {
		t.mounts[ws] = kept
	}
	t.mu.Unlock()

	var firstErr error
	for _, m := range removed {
		if err := t.release(m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// release tears down a removed mount: the backing process is stopped
// when this table owns it, and the filesystem value is closed when the
// adapter holds resources (e.g. a database file).
func (t *Table) release(m *Mount) error {
	var firstErr error

	if m.Ownership == OwnershipOwned && m.Child != nil {
		if err := m.Child.Stop(); err != nil {
			t.logger.Warn("failed to stop adapter process for %s: %v", m.Path, err)
			firstErr = shellerr.Wrap(shellerr.VFSIO, err).WithContext("path", m.Path)
		}
	}

	if closer, ok := m.FS.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			t.logger.Warn("failed to close filesystem for %s: %v", m.Path, err)
			firstErr = shellerr.Wrap(shellerr.VFSIO, err).WithContext("path", m.Path)
		}
	}

	return firstErr
}

// List returns ws's mounts ordered by path length descending, longest
// first. The returned slice is a copy.
func (t *Table) List(ws string) []*Mount {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Mount, len(t.mounts[ws]))
	copy(out, t.mounts[ws])
	return out
}

// Resolve normalises path and returns the mount whose path is the
// longest prefix of it, plus the remainder relative to the mount root
// ("." when exactly at the root). Fails with {vfs, no_mount} when
// nothing matches.
func (t *Table) Resolve(ws, path string) (*Mount, string, error) {
	path = pathutil.Normalize(path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	// Mounts are kept longest-path-first, so the first prefix match
	// is the longest one.
	for _, m := range t.mounts[ws] {
		if pathutil.HasPrefix(path, m.Path) {
			return m, pathutil.Rel(m.Path, path), nil
		}
	}

	return nil, "", shellerr.Newf(shellerr.VFSNoMount, "no mount for %s", path).
		WithContext("workspace", ws).
		WithContext("path", path)
}

// sortMounts orders mounts longest path first; ties broken
// lexicographically so resolution stays deterministic.
func sortMounts(mounts []*Mount) {
	sort.SliceStable(mounts, func(i, j int) bool {
		if len(mounts[i].Path) != len(mounts[j].Path) {
			return len(mounts[i].Path) > len(mounts[j].Path)
		}
		return mounts[i].Path < mounts[j].Path
	})
}
