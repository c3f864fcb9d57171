// Package boltfs provides a bbolt-backed filesystem adapter for
// workspaces that need files to survive the process.
//
// Layout inside the database file:
//
//   - "files" bucket: key = relative path, value = file contents
//   - "dirs" bucket:  key = relative path, value = empty marker
//
// The mount root "." is an implicit directory and has no entry.
// Paths are stored in the mount-relative form the vfs layer uses
// ("a/b", no leading slash), so prefix scans give directory listings.
package boltfs

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/agentjido/jido-shell/shellerr"
	"github.com/agentjido/jido-shell/vfs"
)

// AdapterName is the registry key for this adapter.
const AdapterName = "bolt"

// Bucket names for the bbolt database.
const (
	BucketFiles = "files"
	BucketDirs  = "dirs"
)

func init() {
	vfs.Register(AdapterName, func() vfs.Adapter { return &adapter{} })
}

type adapter struct{}

// Configure opens (or creates) the database named by the "path"
// option. The file is created with 0600 permissions.
func (*adapter) Configure(opts vfs.MountOptions) (vfs.FS, error) {
	path := opts.Config["path"]
	if path == "" {
		return nil, fmt.Errorf("boltfs: missing required option %q", "path")
	}

	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltfs: open %s: %w", path, err)
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketFiles)); err != nil {
			return fmt.Errorf("create bucket %s: %w", BucketFiles, err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketDirs)); err != nil {
			return fmt.Errorf("create bucket %s: %w", BucketDirs, err)
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	return &FS{db: bdb, path: path}, nil
}

// FS is a bbolt-backed filesystem.
type FS struct {
	db   *bolt.DB
	path string
}

// Close closes the underlying database. Mounted filesystems are closed
// by workspace teardown.
func (f *FS) Close() error {
	return f.db.Close()
}

// exists reports whether rel names a file or directory in tx.
func exists(tx *bolt.Tx, rel string) (file, dir bool) {
	if rel == "." || rel == "" {
		return false, true
	}
	file = tx.Bucket([]byte(BucketFiles)).Get([]byte(rel)) != nil
	dir = tx.Bucket([]byte(BucketDirs)).Get([]byte(rel)) != nil
	return file, dir
}

// parentOK verifies rel's parent is a directory.
func parentOK(tx *bolt.Tx, rel string) error {
	idx := strings.LastIndex(rel, "/")
	if idx < 0 {
		return nil
	}
	parent := rel[:idx]
	if isFile, isDir := exists(tx, parent); !isDir {
		if isFile {
			return shellerr.Newf(shellerr.VFSNotADirectory, "not a directory: %s", parent).
				WithContext("path", parent)
		}
		return shellerr.Newf(shellerr.VFSNotFound, "no such file or directory: %s", parent).
			WithContext("path", parent)
	}
	return nil
}

func (f *FS) Stat(rel string) (vfs.FileInfo, error) {
	var info vfs.FileInfo
	err := f.db.View(func(tx *bolt.Tx) error {
		if rel == "." || rel == "" {
			info = vfs.FileInfo{Name: ".", Dir: true}
			return nil
		}
		name := rel
		if idx := strings.LastIndex(rel, "/"); idx >= 0 {
			name = rel[idx+1:]
		}
		if data := tx.Bucket([]byte(BucketFiles)).Get([]byte(rel)); data != nil {
			info = vfs.FileInfo{Name: name, Size: int64(len(data))}
			return nil
		}
		if tx.Bucket([]byte(BucketDirs)).Get([]byte(rel)) != nil {
			info = vfs.FileInfo{Name: name, Dir: true}
			return nil
		}
		return shellerr.Newf(shellerr.VFSNotFound, "no such file or directory: %s", rel).
			WithContext("path", rel)
	})
	return info, err
}

func (f *FS) Read(rel string) ([]byte, error) {
	var out []byte
	err := f.db.View(func(tx *bolt.Tx) error {
		if _, isDir := exists(tx, rel); isDir {
			return shellerr.Newf(shellerr.VFSIO, "is a directory: %s", rel).
				WithContext("path", rel)
		}
		data := tx.Bucket([]byte(BucketFiles)).Get([]byte(rel))
		if data == nil {
			return shellerr.Newf(shellerr.VFSNotFound, "no such file or directory: %s", rel).
				WithContext("path", rel)
		}
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

func (f *FS) Write(rel string, data []byte) error {
	if rel == "." || rel == "" {
		return shellerr.New(shellerr.VFSIO, "cannot write to mount root").WithContext("path", rel)
	}
	return f.db.Update(func(tx *bolt.Tx) error {
		if _, isDir := exists(tx, rel); isDir {
			return shellerr.Newf(shellerr.VFSIO, "is a directory: %s", rel).
				WithContext("path", rel)
		}
		if err := parentOK(tx, rel); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(BucketFiles)).Put([]byte(rel), data); err != nil {
			return shellerr.Wrap(shellerr.VFSIO, err).WithContext("path", rel)
		}
		return nil
	})
}

func (f *FS) List(rel string) ([]vfs.FileInfo, error) {
	var out []vfs.FileInfo
	err := f.db.View(func(tx *bolt.Tx) error {
		if isFile, isDir := exists(tx, rel); !isDir {
			if isFile {
				return shellerr.Newf(shellerr.VFSNotADirectory, "not a directory: %s", rel).
					WithContext("path", rel)
			}
			return shellerr.Newf(shellerr.VFSNotFound, "no such file or directory: %s", rel).
				WithContext("path", rel)
		}

		prefix := ""
		if rel != "." && rel != "" {
			prefix = rel + "/"
		}

		// Direct children only: entries under prefix with no further slash.
		collect := func(bucket string, dir bool) {
			c := bucketCursor(tx, bucket)
			for k, v := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, v = c.Next() {
				name := string(k[len(prefix):])
				if name == "" || strings.Contains(name, "/") {
					continue
				}
				size := int64(0)
				if !dir {
					size = int64(len(v))
				}
				out = append(out, vfs.FileInfo{Name: name, Dir: dir, Size: size})
			}
		}
		collect(BucketDirs, true)
		collect(BucketFiles, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortInfos(out)
	return out, nil
}

func (f *FS) Mkdir(rel string) error {
	if rel == "." || rel == "" {
		return shellerr.New(shellerr.VFSExists, "mount root already exists").WithContext("path", rel)
	}
	return f.db.Update(func(tx *bolt.Tx) error {
		if isFile, isDir := exists(tx, rel); isFile || isDir {
			return shellerr.Newf(shellerr.VFSExists, "already exists: %s", rel).
				WithContext("path", rel)
		}
		if err := parentOK(tx, rel); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(BucketDirs)).Put([]byte(rel), []byte{}); err != nil {
			return shellerr.Wrap(shellerr.VFSIO, err).WithContext("path", rel)
		}
		return nil
	})
}

func (f *FS) Remove(rel string) error {
	if rel == "." || rel == "" {
		return shellerr.New(shellerr.VFSIO, "cannot remove mount root").WithContext("path", rel)
	}
	return f.db.Update(func(tx *bolt.Tx) error {
		isFile, isDir := exists(tx, rel)
		if !isFile && !isDir {
			return shellerr.Newf(shellerr.VFSNotFound, "no such file or directory: %s", rel).
				WithContext("path", rel)
		}

		if isFile {
			return tx.Bucket([]byte(BucketFiles)).Delete([]byte(rel))
		}

		// Directories are removed with their contents.
		prefix := rel + "/"
		for _, bucket := range []string{BucketFiles, BucketDirs} {
			c := bucketCursor(tx, bucket)
			var doomed [][]byte
			for k, _ := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, _ = c.Next() {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			for _, k := range doomed {
				if err := tx.Bucket([]byte(bucket)).Delete(k); err != nil {
					return shellerr.Wrap(shellerr.VFSIO, err).WithContext("path", string(k))
				}
			}
		}
		return tx.Bucket([]byte(BucketDirs)).Delete([]byte(rel))
	})
}

func bucketCursor(tx *bolt.Tx, bucket string) *bolt.Cursor {
	return tx.Bucket([]byte(bucket)).Cursor()
}

func sortInfos(infos []vfs.FileInfo) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
}
