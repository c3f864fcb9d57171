package vfs

import (
	"github.com/agentjido/jido-shell/pathutil"
	"github.com/agentjido/jido-shell/shellerr"
)

// Workspace is the façade the command layer talks to: file operations
// over one workspace's mount table, taking normalised absolute paths.
type Workspace struct {
	table *Table
	id    string
}

// NewWorkspace binds a façade to one workspace of the shared table.
func NewWorkspace(table *Table, id string) *Workspace {
	return &Workspace{table: table, id: id}
}

// ID returns the workspace identifier.
func (w *Workspace) ID() string {
	return w.id
}

// Table exposes the underlying mount table (for mount management).
func (w *Workspace) Table() *Table {
	return w.table
}

// Stat returns information about the file or directory at path.
func (w *Workspace) Stat(path string) (FileInfo, error) {
	m, rel, err := w.table.Resolve(w.id, path)
	if err != nil {
		return FileInfo{}, err
	}
	return m.FS.Stat(rel)
}

// Read returns the contents of the file at path.
func (w *Workspace) Read(path string) ([]byte, error) {
	m, rel, err := w.table.Resolve(w.id, path)
	if err != nil {
		return nil, err
	}
	return m.FS.Read(rel)
}

// Write stores data at path, creating or replacing the file.
func (w *Workspace) Write(path string, data []byte) error {
	m, rel, err := w.table.Resolve(w.id, path)
	if err != nil {
		return err
	}
	return m.FS.Write(rel, data)
}

// List returns the entries of the directory at path.
func (w *Workspace) List(path string) ([]FileInfo, error) {
	m, rel, err := w.table.Resolve(w.id, path)
	if err != nil {
		return nil, err
	}
	return m.FS.List(rel)
}

// Mkdir creates a directory at path.
func (w *Workspace) Mkdir(path string) error {
	m, rel, err := w.table.Resolve(w.id, path)
	if err != nil {
		return err
	}
	return m.FS.Mkdir(rel)
}

// Remove deletes the file or directory at path.
func (w *Workspace) Remove(path string) error {
	m, rel, err := w.table.Resolve(w.id, path)
	if err != nil {
		return err
	}
	return m.FS.Remove(rel)
}

// Copy duplicates the file at src to dst. The two paths may live on
// different mounts; the copy goes through this façade rather than the
// adapters so cross-mount copies work uniformly.
func (w *Workspace) Copy(src, dst string) error {
	info, err := w.Stat(src)
	if err != nil {
		return err
	}
	if info.Dir {
		return shellerr.Newf(shellerr.VFSIO, "cannot copy directory: %s", src).
			WithContext("path", src)
	}

	data, err := w.Read(src)
	if err != nil {
		return err
	}

	// Copying onto a directory targets a file of the same name inside it.
	if dstInfo, err := w.Stat(dst); err == nil && dstInfo.Dir {
		dst = pathutil.Join(dst, pathutil.Base(src))
	}

	return w.Write(dst, data)
}
