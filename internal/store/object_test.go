package store

import (
	"path/filepath"
	"testing"
)

func TestLocalObjectStoreAddGetRoundTrip(t *testing.T) {
	objs, err := NewLocalObjectStore(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatalf("NewLocalObjectStore: %v", err)
	}

	id, err := objs.Add([]byte("payload"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := objs.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Get = %q, want payload", got)
	}

	if err := objs.Pin(id); err != nil {
		t.Errorf("Pin: %v", err)
	}
}

func TestLocalObjectStorePinMissingFails(t *testing.T) {
	objs, err := NewLocalObjectStore(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}
	if err := objs.Pin("local:doesnotexist"); err == nil {
		t.Fatal("expected error pinning nonexistent object")
	}
}
