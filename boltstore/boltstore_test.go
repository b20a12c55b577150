package boltstore

import (
	"os"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "boltstore-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPortsRoundTrip(t *testing.T) {
	s := openTemp(t)

	if _, ok, err := s.LoadInUsePorts("chan-1"); err != nil || ok {
		t.Fatalf("expected no checkpoint yet, ok=%v err=%v", ok, err)
	}

	want := []int{10001, 10002, 10007}
	if err := s.SaveInUsePorts("chan-1", want); err != nil {
		t.Fatalf("SaveInUsePorts: %v", err)
	}

	got, ok, err := s.LoadInUsePorts("chan-1")
	if err != nil || !ok {
		t.Fatalf("LoadInUsePorts: ok=%v err=%v", ok, err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestNumLinksRoundTrip(t *testing.T) {
	s := openTemp(t)

	if _, ok, err := s.LoadNumLinks("chan-1"); err != nil || ok {
		t.Fatalf("expected no checkpoint yet, ok=%v err=%v", ok, err)
	}

	if err := s.SaveNumLinks("chan-1", 3); err != nil {
		t.Fatalf("SaveNumLinks: %v", err)
	}
	n, ok, err := s.LoadNumLinks("chan-1")
	if err != nil || !ok || n != 3 {
		t.Fatalf("got n=%d ok=%v err=%v", n, ok, err)
	}
}

func TestSeparateChannelsAreIndependent(t *testing.T) {
	s := openTemp(t)

	if err := s.SaveNumLinks("chan-a", 1); err != nil {
		t.Fatalf("SaveNumLinks a: %v", err)
	}
	if err := s.SaveNumLinks("chan-b", 2); err != nil {
		t.Fatalf("SaveNumLinks b: %v", err)
	}

	a, _, _ := s.LoadNumLinks("chan-a")
	b, _, _ := s.LoadNumLinks("chan-b")
	if a != 1 || b != 2 {
		t.Fatalf("cross-channel contamination: a=%d b=%d", a, b)
	}
}
