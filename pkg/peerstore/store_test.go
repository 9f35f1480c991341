package peerstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpen_CreatesPermissionHardenedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")

	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != filePerm {
		t.Errorf("file perm = %o, want %o", info.Mode().Perm(), filePerm)
	}
	if len(s.List()) != 0 {
		t.Errorf("List() = %v, want empty", s.List())
	}
}

func TestOpen_TightensLoosePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")
	if err := os.WriteFile(path, []byte(`{"peers":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path, nil); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != filePerm {
		t.Errorf("file perm = %o, want %o", info.Mode().Perm(), filePerm)
	}
}

func TestSaveGetDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	p := Peer{
		PeerID:    "alice-01",
		PublicKey: []byte{1, 2, 3},
		TrustedAt: time.Now(),
		LastSeen:  time.Now(),
	}
	if err := s.Save(p); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Get("alice-01")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PeerID != p.PeerID {
		t.Errorf("Get().PeerID = %q, want %q", got.PeerID, p.PeerID)
	}

	// Reopen from disk and confirm persistence.
	s2, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s2.Get("alice-01"); err != nil {
		t.Errorf("Get() after reopen error = %v", err)
	}

	if err := s.Delete("alice-01"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get("alice-01"); err != ErrNotFound {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestSave_RejectsInvalidPeerID(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "peers.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(Peer{PeerID: "has a space"}); err != ErrInvalidPeerID {
		t.Errorf("Save() error = %v, want ErrInvalidPeerID", err)
	}
}

func TestIdentity_AbsentOnFreshStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "peers.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LoadIdentity(); ok {
		t.Errorf("LoadIdentity() ok = true on fresh store, want false")
	}
}

func TestIdentity_SavePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	priv := make([]byte, 32)
	for i := range priv {
		priv[i] = byte(i)
	}
	if err := s.SaveIdentity(priv); err != nil {
		t.Fatalf("SaveIdentity() error = %v", err)
	}

	got, ok := s.LoadIdentity()
	if !ok {
		t.Fatalf("LoadIdentity() ok = false, want true")
	}
	if string(got) != string(priv) {
		t.Errorf("LoadIdentity() = %v, want %v", got, priv)
	}

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	got2, ok := s2.LoadIdentity()
	if !ok {
		t.Fatalf("LoadIdentity() after reopen ok = false, want true")
	}
	if string(got2) != string(priv) {
		t.Errorf("LoadIdentity() after reopen = %v, want %v", got2, priv)
	}
}

func TestPairingCode_AbsentOnFreshStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "peers.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LoadPairingCode(); ok {
		t.Errorf("LoadPairingCode() ok = true on fresh store, want false")
	}
}

func TestPairingCode_SavePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SavePairingCode("XYZ12A"); err != nil {
		t.Fatalf("SavePairingCode() error = %v", err)
	}

	got, ok := s.LoadPairingCode()
	if !ok || got != "XYZ12A" {
		t.Errorf("LoadPairingCode() = (%q, %v), want (%q, true)", got, ok, "XYZ12A")
	}

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	got2, ok2 := s2.LoadPairingCode()
	if !ok2 || got2 != "XYZ12A" {
		t.Errorf("LoadPairingCode() after reopen = (%q, %v), want (%q, true)", got2, ok2, "XYZ12A")
	}
}
