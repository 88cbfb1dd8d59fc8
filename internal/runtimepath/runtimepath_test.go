package runtimepath

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestSocketPathFollowsRuntimeDir(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	socket, err := SocketPath()
	if err != nil {
		t.Fatalf("SocketPath: %v", err)
	}
	if want := filepath.Join(runtimeDir, "winbridge.sock"); socket != want {
		t.Fatalf("socket = %q, want %q", socket, want)
	}
	if got := LockPathFor(socket); got != socket+".lock" {
		t.Fatalf("lock for default socket = %q", got)
	}
}

func TestDirWithoutXDGRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	uid := strconv.Itoa(os.Getuid())
	candidates := map[string]bool{
		"/run/user/" + uid:              true,
		"/tmp/winbridge-runtime-" + uid: true,
	}
	if !candidates[dir] {
		t.Fatalf("Dir = %q, want one of %v", dir, candidates)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("runtime dir %q not usable: %v", dir, err)
	}
}

func TestLockPathForSeparatesSockets(t *testing.T) {
	tests := []struct {
		socket string
		want   string
	}{
		{"/run/user/1000/winbridge.sock", "/run/user/1000/winbridge.sock.lock"},
		{"/srv/other.sock", "/srv/other.sock.lock"},
		{"relative.sock", "relative.sock.lock"},
	}
	seen := map[string]bool{}
	for _, tt := range tests {
		got := LockPathFor(tt.socket)
		if got != tt.want {
			t.Errorf("LockPathFor(%q) = %q, want %q", tt.socket, got, tt.want)
		}
		if seen[got] {
			t.Errorf("lock path %q shared between sockets", got)
		}
		seen[got] = true
	}
}
