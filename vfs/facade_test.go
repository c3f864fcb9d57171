package vfs_test

import (
	"testing"

	"github.com/agentjido/jido-shell/log"
	"github.com/agentjido/jido-shell/shellerr"
	"github.com/agentjido/jido-shell/vfs"
)

func newWorkspace(t *testing.T, mounts ...string) *vfs.Workspace {
	t.Helper()

	table := vfs.NewTable(log.NoOpLogger{})
	for _, p := range mounts {
		if _, err := table.MountAdapter("ws", p, "mem", vfs.MountOptions{}); err != nil {
			t.Fatalf("mount %s failed: %v", p, err)
		}
	}
	return vfs.NewWorkspace(table, "ws")
}

func TestFacadeFileRoundTrip(t *testing.T) {
	w := newWorkspace(t, "/")

	if err := w.Write("/hello.txt", []byte("hi\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := w.Read("/hello.txt")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "hi\n" {
		t.Errorf("Read = %q, want %q", data, "hi\n")
	}

	info, err := w.Stat("/hello.txt")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Dir || info.Size != 3 {
		t.Errorf("info = %+v, want file of size 3", info)
	}
}

func TestFacadeMkdirList(t *testing.T) {
	w := newWorkspace(t, "/")

	if err := w.Mkdir("/a"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := w.Write("/a/f.txt", []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, err := w.List("/a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "f.txt" {
		t.Errorf("entries = %v, want [f.txt]", entries)
	}

	if err := w.Mkdir("/a"); !shellerr.HasCode(err, shellerr.VFSExists) {
		t.Errorf("Mkdir twice err = %v, want exists", err)
	}
}

func TestFacadeRemove(t *testing.T) {
	w := newWorkspace(t, "/")

	if err := w.Write("/f", []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Remove("/f"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := w.Remove("/f"); !shellerr.HasCode(err, shellerr.VFSNotFound) {
		t.Errorf("Remove twice err = %v, want not_found", err)
	}
}

func TestFacadeCopyAcrossMounts(t *testing.T) {
	w := newWorkspace(t, "/", "/other")

	if err := w.Write("/src.txt", []byte("payload")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Copy("/src.txt", "/other/dst.txt"); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	data, err := w.Read("/other/dst.txt")
	if err != nil {
		t.Fatalf("Read of copy failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("copy contents = %q, want %q", data, "payload")
	}
}

func TestFacadeCopyIntoDirectory(t *testing.T) {
	w := newWorkspace(t, "/")

	if err := w.Mkdir("/dir"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := w.Write("/f.txt", []byte("x")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Copy("/f.txt", "/dir"); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	if _, err := w.Read("/dir/f.txt"); err != nil {
		t.Errorf("copy target missing: %v", err)
	}
}

func TestFacadeNoMount(t *testing.T) {
	w := newWorkspace(t, "/data")

	_, err := w.Read("/outside")
	if !shellerr.HasCode(err, shellerr.VFSNoMount) {
		t.Errorf("err = %v, want no_mount", err)
	}
}
