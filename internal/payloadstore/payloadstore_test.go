package payloadstore

import "testing"

func TestPutGetRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := store.Put("uid-1", []byte("hello")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get("uid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
}

func TestPutReplacesExistingPayload(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := store.Put("uid-1", []byte("first")); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	if err := store.Put("uid-1", []byte("second")); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := store.Get("uid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("expected the second write to win, got %q", got)
	}
}

func TestEraseIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ref := store.RefFor("uid-1")
	if err := store.Put("uid-1", []byte("data")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := store.Erase(ref); err != nil {
		t.Fatalf("first Erase failed: %v", err)
	}
	if err := store.Erase(ref); err != nil {
		t.Fatalf("second Erase on an already-erased blob should not error, got %v", err)
	}
	if store.Exists(ref) {
		t.Error("expected blob to be gone after Erase")
	}
}
