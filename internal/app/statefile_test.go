package app

import (
	"os"
	"path/filepath"
	"testing"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStateStore_SaveLoad(t *testing.T) {
	store, err := NewStateStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	in := payload{Name: "window", Count: 42}
	if err := store.Save("test.json", in); err != nil {
		t.Fatalf("save: %v", err)
	}

	var out payload
	ok, err := store.Load("test.json", &out)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatal("expected file to exist")
	}
	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}

func TestStateStore_LoadMissing(t *testing.T) {
	store, err := NewStateStore(nil, t.TempDir())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	var out payload
	ok, err := store.Load("nope.json", &out)
	if err != nil {
		t.Fatalf("expected missing file to be non-fatal, got %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing file")
	}
}

func TestStateStore_CorruptFileSetAside(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStateStore(nil, dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"name": "trunc`), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	var out payload
	ok, err := store.Load("bad.json", &out)
	if err != nil {
		t.Fatalf("expected corrupt file to be non-fatal, got %v", err)
	}
	if ok {
		t.Error("expected ok=false for corrupt file")
	}

	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Errorf("expected corrupt file renamed aside: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected original corrupt file gone")
	}
}

func TestStateStore_SaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStateStore(nil, dir)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}

	if err := store.Save("s.json", payload{Name: "first"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := store.Save("s.json", payload{Name: "second"}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var out payload
	if ok, _ := store.Load("s.json", &out); !ok || out.Name != "second" {
		t.Errorf("expected latest write to win, got %+v", out)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the final file, found %d entries", len(entries))
	}
}

func TestStateStore_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	if _, err := NewStateStore(nil, dir); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected state dir created: %v", err)
	}
}
