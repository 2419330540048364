package asr

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllowListEmptyAllowsAll(t *testing.T) {
	al, err := LoadAllowList("")
	if err != nil {
		t.Fatalf("LoadAllowList(\"\") error = %v", err)
	}
	if !al.Allowed("10.0.0.50") {
		t.Error("empty allow-list rejected a peer")
	}
}

func TestAllowListMissingFileAllowsAll(t *testing.T) {
	al, err := LoadAllowList(filepath.Join(t.TempDir(), "nope.txt"))
	if err != nil {
		t.Fatalf("LoadAllowList(missing) error = %v", err)
	}
	if !al.Allowed("10.0.0.50") {
		t.Error("missing allow-list rejected a peer")
	}
}

func TestAllowListFiltersPeers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allow.txt")
	content := "# hotline test floor\n10.0.0.50\n\n10.0.0.51\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	al, err := LoadAllowList(path)
	if err != nil {
		t.Fatalf("LoadAllowList() error = %v", err)
	}

	if al.Len() != 2 {
		t.Errorf("Len() = %d, want 2", al.Len())
	}
	if !al.Allowed("10.0.0.50") || !al.Allowed("10.0.0.51") {
		t.Error("listed peer rejected")
	}
	if al.Allowed("10.0.0.99") {
		t.Error("unlisted peer allowed")
	}
}
