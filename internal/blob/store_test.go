package blob

import (
	"errors"
	"strings"
	"testing"
)

func TestPutReadPrune(t *testing.T) {
	s := NewMem()
	a, err := s.Put("R001", "chantier.JPG", []byte("aaa"))
	if err != nil {
		t.Fatalf("put a: %v", err)
	}
	if !strings.HasSuffix(a, ".jpg") {
		t.Fatalf("expected lowercased extension, got %s", a)
	}
	b, err := s.Put("R001", "plan", []byte("bbb"))
	if err != nil {
		t.Fatalf("put b: %v", err)
	}
	data, err := s.Read("R001", a)
	if err != nil || string(data) != "aaa" {
		t.Fatalf("read: %q %v", data, err)
	}
	if err := s.Prune("R001", []string{b}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	names, err := s.List("R001")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != b {
		t.Fatalf("expected only %s, got %v", b, names)
	}
	if err := s.RemoveReport("R001"); err != nil {
		t.Fatalf("remove report: %v", err)
	}
	if names, _ := s.List("R001"); len(names) != 0 {
		t.Fatalf("expected empty after removal, got %v", names)
	}
}

func TestPutRejectsBadInput(t *testing.T) {
	s := NewMem()
	s.MaxBytes = 2
	if _, err := s.Put("R001", "x.jpg", nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := s.Put("R001", "x.jpg", []byte("abc")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("too large: %v", err)
	}
	if _, err := s.Put("../etc", "x.jpg", []byte("a")); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("traversal: %v", err)
	}
	if _, err := s.Read("R001", "../../secret"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("read traversal: %v", err)
	}
}

func TestRemoveIgnoresMissingFiles(t *testing.T) {
	s := NewMem()
	if err := s.Remove("R009", "nope.jpg"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if err := s.Prune("R009", nil); err != nil {
		t.Fatalf("prune missing dir: %v", err)
	}
}

func TestDisabledStore(t *testing.T) {
	var s Store
	if _, err := s.Put("R001", "a.jpg", []byte("a")); !errors.Is(err, ErrNoStore) {
		t.Fatalf("put on disabled store: %v", err)
	}
	if err := s.RemoveReport("R001"); err != nil {
		t.Fatalf("remove on disabled store: %v", err)
	}
}
