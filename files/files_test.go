package files

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStoreSaveAndPath(t *testing.T) {
	store, err := NewStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	path, err := store.Save("doc-1", KindOriginal, ".pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if !strings.HasSuffix(path, "doc-1_original.pdf") {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("content = %q", data)
	}

	got, err := store.Path("doc-1", KindOriginal)
	if err != nil {
		t.Fatalf("Path() failed: %v", err)
	}
	if got != path {
		t.Errorf("Path() = %q, want %q", got, path)
	}

	if _, err := store.Path("doc-1", KindOCR); err == nil {
		t.Error("Path() for missing artifact kind succeeded")
	}
	if _, err := store.Path("doc-2", KindOriginal); err == nil {
		t.Error("Path() for unknown document succeeded")
	}
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	path, err := store.Save("doc-1", KindOriginal, ".html", strings.NewReader("<html/>"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save("doc-1", KindOCR, ".md", strings.NewReader("# extracted")); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete("doc-1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original file survived Delete()")
	}

	// Deleting a document without files is not an error.
	if err := store.Delete("doc-2"); err != nil {
		t.Errorf("Delete() of unknown document failed: %v", err)
	}
}

func TestStoreDeleteAll(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Save(id, KindOriginal, ".txt", strings.NewReader(id)); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll() failed: %v", err)
	}

	// The docs directory is recreated empty so new uploads keep working.
	if _, err := store.Save("d", KindOriginal, ".txt", strings.NewReader("d")); err != nil {
		t.Errorf("Save() after DeleteAll() failed: %v", err)
	}
	if _, err := store.Path("a", KindOriginal); err == nil {
		t.Error("old artifact survived DeleteAll()")
	}
}
