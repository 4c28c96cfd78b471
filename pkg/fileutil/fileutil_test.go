package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSearchPaths(t *testing.T) {
	tmpDir := t.TempDir()

	file1 := filepath.Join(tmpDir, "file1.yaml")
	file2 := filepath.Join(tmpDir, "file2.yaml")
	if err := os.WriteFile(file2, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	tests := []struct {
		name    string
		paths   []string
		want    string
		wantErr bool
	}{
		{"skips missing and finds existing", []string{file1, file2}, file2, false},
		{"returns error when no files exist", []string{file1}, "", true},
		{"handles empty path list", []string{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SearchPaths(tt.paths)
			if (err != nil) != tt.wantErr {
				t.Errorf("SearchPaths() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SearchPaths() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchPathsOptional(t *testing.T) {
	if got := SearchPathsOptional([]string{"/nonexistent/kryodeploy.yaml"}); got != "" {
		t.Errorf("SearchPathsOptional() = %q, want empty", got)
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	paths := DefaultConfigPaths("kryodeploy.yaml")

	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(paths))
	}
	for _, p := range paths {
		if !strings.HasSuffix(p, "kryodeploy.yaml") {
			t.Errorf("path %q does not end with filename", p)
		}
	}
	if paths[2] != filepath.Join(SystemConfigDir, "kryodeploy.yaml") {
		t.Errorf("last search path = %q, want system config dir", paths[2])
	}
}

func TestFileAndDirExists(t *testing.T) {
	tmpDir := t.TempDir()
	file := filepath.Join(tmpDir, "f")
	os.WriteFile(file, []byte("x"), 0644)

	if !FileExists(file) || FileExists(tmpDir) || FileExists(filepath.Join(tmpDir, "missing")) {
		t.Error("FileExists() returned wrong result")
	}
	if !DirExists(tmpDir) || DirExists(file) || DirExists(filepath.Join(tmpDir, "missing")) {
		t.Error("DirExists() returned wrong result")
	}
}

func TestEnsureParentDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "deploys.db")

	if err := EnsureParentDir(target, 0750); err != nil {
		t.Fatalf("EnsureParentDir() error = %v", err)
	}
	if !DirExists(filepath.Dir(target)) {
		t.Error("parent directory was not created")
	}
}
