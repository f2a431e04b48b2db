package service

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"plan.png", "plan.png", false},
		{"../../etc/passwd", "passwd", false},
		{`C:\Users\me\plan.svg`, "plan.svg", false},
		{"", "", true},
		{"..", "", true},
		{"/", "", true},
	}
	for _, tt := range tests {
		got, err := SafeName(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SafeName(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("SafeName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestFileStorageSaveAndPrune(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	s := NewFileStorage(root)

	name, err := s.SaveFile("../ground.png", []byte("png"))
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if name != "ground.png" || !s.Exists("ground.png") {
		t.Fatalf("saved as %q", name)
	}
	if _, err := s.SaveFile("first.svg", []byte("<svg/>")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveFile("old.png", []byte("x")); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Prune(map[string]bool{"ground.png": true, "first.svg": true})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !slices.Equal(removed, []string{"old.png"}) {
		t.Errorf("removed = %v", removed)
	}
	if _, err := os.Stat(filepath.Join(root, "old.png")); !os.IsNotExist(err) {
		t.Error("old.png still on disk")
	}
	if !s.Exists("first.svg") {
		t.Error("referenced file removed")
	}
}

func TestFileStoragePruneMissingDir(t *testing.T) {
	s := NewFileStorage(filepath.Join(t.TempDir(), "absent"))
	removed, err := s.Prune(nil)
	if err != nil || removed != nil {
		t.Errorf("Prune on missing dir = %v, %v", removed, err)
	}
}
