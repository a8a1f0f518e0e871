package store

import (
	"path/filepath"
	"testing"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := tempStore(t)
	content := map[string]any{"name": "thing", "value": "42"}
	if err := s.Put("widgets", "id-1", content, "sha256:abc"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	doc, err := s.Get("widgets", "id-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc == nil {
		t.Fatal("expected document, got nil")
	}
	if doc.Content["name"] != "thing" {
		t.Errorf("content name = %v, want thing", doc.Content["name"])
	}
	if doc.Hash != "sha256:abc" {
		t.Errorf("hash = %q, want sha256:abc", doc.Hash)
	}
}

func TestPutIsIdempotentOnConflict(t *testing.T) {
	s := tempStore(t)
	if err := s.Put("widgets", "id-1", map[string]any{"v": "1"}, "h1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("widgets", "id-1", map[string]any{"v": "2"}, "h2"); err != nil {
		t.Fatal(err)
	}
	doc, err := s.Get("widgets", "id-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content["v"] != "2" {
		t.Errorf("content v = %v, want 2 (last write wins)", doc.Content["v"])
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := tempStore(t)
	doc, err := s.Get("widgets", "missing")
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil {
		t.Fatal("expected nil document for missing id")
	}
}

func TestFindFiltersByContent(t *testing.T) {
	s := tempStore(t)
	s.Put("widgets", "a", map[string]any{"kind": "blue"}, "h")
	s.Put("widgets", "b", map[string]any{"kind": "red"}, "h")

	found, err := s.Find("widgets", map[string]string{"kind": "blue"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != "a" {
		t.Fatalf("Find = %+v, want exactly [a]", found)
	}
}

func TestFindRespectsLimit(t *testing.T) {
	s := tempStore(t)
	for _, id := range []string{"a", "b", "c"} {
		s.Put("widgets", id, map[string]any{}, "h")
	}
	found, err := s.Find("widgets", nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("len(found) = %d, want 2", len(found))
	}
}

func TestLogDoesNotError(t *testing.T) {
	s := tempStore(t)
	if err := s.Log("ptc:phase", "INTAKE", "started"); err != nil {
		t.Fatalf("Log: %v", err)
	}
}
