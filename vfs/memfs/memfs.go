// Package memfs provides the in-memory reference filesystem adapter.
//
// It keeps a tree of nodes guarded by one RWMutex and implements the
// full vfs.FS surface. Contents do not survive the process; memfs is
// the default adapter for workspaces and the fixture of choice in
// tests.
package memfs

import (
	"sort"
	"strings"
	"sync"

	"github.com/agentjido/jido-shell/shellerr"
	"github.com/agentjido/jido-shell/vfs"
)

// AdapterName is the registry key for this adapter.
const AdapterName = "mem"

func init() {
	vfs.Register(AdapterName, func() vfs.Adapter { return &adapter{} })
}

type adapter struct{}

// Configure returns a fresh empty filesystem. memfs takes no options.
func (*adapter) Configure(opts vfs.MountOptions) (vfs.FS, error) {
	return New(), nil
}

type node struct {
	name     string
	dir      bool
	data     []byte
	children map[string]*node
}

// FS is an in-memory filesystem rooted at a single directory node.
type FS struct {
	mu   sync.RWMutex
	root *node
}

// New creates an empty in-memory filesystem.
func New() *FS {
	return &FS{root: &node{name: ".", dir: true, children: make(map[string]*node)}}
}

// lookup walks rel from the root. rel is "." or "a/b" form.
func (f *FS) lookup(rel string) (*node, error) {
	if rel == "." || rel == "" {
		return f.root, nil
	}

	cur := f.root
	for _, seg := range strings.Split(rel, "/") {
		if !cur.dir {
			return nil, shellerr.Newf(shellerr.VFSNotADirectory, "not a directory: %s", cur.name).
				WithContext("path", rel)
		}
		next, ok := cur.children[seg]
		if !ok {
			return nil, shellerr.Newf(shellerr.VFSNotFound, "no such file or directory: %s", rel).
				WithContext("path", rel)
		}
		cur = next
	}
	return cur, nil
}

// lookupParent returns the parent directory of rel and the leaf name.
func (f *FS) lookupParent(rel string) (*node, string, error) {
	idx := strings.LastIndex(rel, "/")
	if idx < 0 {
		return f.root, rel, nil
	}

	parent, err := f.lookup(rel[:idx])
	if err != nil {
		return nil, "", err
	}
	if !parent.dir {
		return nil, "", shellerr.Newf(shellerr.VFSNotADirectory, "not a directory: %s", rel[:idx]).
			WithContext("path", rel[:idx])
	}
	return parent, rel[idx+1:], nil
}

func (f *FS) Stat(rel string) (vfs.FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, err := f.lookup(rel)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return vfs.FileInfo{Name: n.name, Dir: n.dir, Size: int64(len(n.data))}, nil
}

func (f *FS) Read(rel string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, err := f.lookup(rel)
	if err != nil {
		return nil, err
	}
	if n.dir {
		return nil, shellerr.Newf(shellerr.VFSIO, "is a directory: %s", rel).
			WithContext("path", rel)
	}

	out := make([]byte, len(n.data))
	copy(out, n.data)
	return out, nil
}

func (f *FS) Write(rel string, data []byte) error {
	if rel == "." || rel == "" {
		return shellerr.New(shellerr.VFSIO, "cannot write to mount root").WithContext("path", rel)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	parent, name, err := f.lookupParent(rel)
	if err != nil {
		return err
	}

	if existing, ok := parent.children[name]; ok {
		if existing.dir {
			return shellerr.Newf(shellerr.VFSIO, "is a directory: %s", rel).
				WithContext("path", rel)
		}
		existing.data = append([]byte(nil), data...)
		return nil
	}

	parent.children[name] = &node{name: name, data: append([]byte(nil), data...)}
	return nil
}

func (f *FS) List(rel string) ([]vfs.FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, err := f.lookup(rel)
	if err != nil {
		return nil, err
	}
	if !n.dir {
		return nil, shellerr.Newf(shellerr.VFSNotADirectory, "not a directory: %s", rel).
			WithContext("path", rel)
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]vfs.FileInfo, len(names))
	for i, name := range names {
		c := n.children[name]
		out[i] = vfs.FileInfo{Name: c.name, Dir: c.dir, Size: int64(len(c.data))}
	}
	return out, nil
}

func (f *FS) Mkdir(rel string) error {
	if rel == "." || rel == "" {
		return shellerr.New(shellerr.VFSExists, "mount root already exists").WithContext("path", rel)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	parent, name, err := f.lookupParent(rel)
	if err != nil {
		return err
	}

	if _, ok := parent.children[name]; ok {
		return shellerr.Newf(shellerr.VFSExists, "already exists: %s", rel).
			WithContext("path", rel)
	}

	parent.children[name] = &node{name: name, dir: true, children: make(map[string]*node)}
	return nil
}

func (f *FS) Remove(rel string) error {
	if rel == "." || rel == "" {
		return shellerr.New(shellerr.VFSIO, "cannot remove mount root").WithContext("path", rel)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	parent, name, err := f.lookupParent(rel)
	if err != nil {
		return err
	}

	if _, ok := parent.children[name]; !ok {
		return shellerr.Newf(shellerr.VFSNotFound, "no such file or directory: %s", rel).
			WithContext("path", rel)
	}

	delete(parent.children, name)
	return nil
}
