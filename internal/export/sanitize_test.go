package export

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeEDLName_ClipNames(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"interview_take3.mp4", "interview_take3.mp4"},
		{"b-roll (drone), v2.mov", "b-roll (drone), v2.mov"},
		{"reel<01>|final\".mp4", "reel_01__final_.mp4"},
		{" scene\t1\ncut.mp4 ", "scene1cut.mp4"},
	}
	for _, tt := range tests {
		if got := SanitizeEDLName(tt.in, MaxTitleLen); got != tt.want {
			t.Errorf("SanitizeEDLName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeEDLName_CapsClipNameLength(t *testing.T) {
	long := "super_long_drone_establishing_shot_take_12.mp4"
	got := SanitizeEDLName(long, MaxClipNameLen)
	if n := len([]rune(got)); n != MaxClipNameLen {
		t.Fatalf("clip name not capped: %d runes (%q)", n, got)
	}
}

func TestValidateOutputDir_ExportDir(t *testing.T) {
	dir := t.TempDir()
	if err := ValidateOutputDir(dir); err != nil {
		t.Fatalf("ValidateOutputDir(%q) error = %v, want nil", dir, err)
	}
}

func TestValidateOutputDir_Empty(t *testing.T) {
	if err := ValidateOutputDir("  "); err == nil {
		t.Fatal("blank output_dir should be rejected")
	}
}

func TestValidateOutputDir_MissingExportDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "exports")
	if err := ValidateOutputDir(missing); err == nil {
		t.Fatalf("ValidateOutputDir(%q) expected error for non-existent path", missing)
	}
}

func TestValidateOutputDir_RejectsTraversal(t *testing.T) {
	if err := ValidateOutputDir("/exports/../etc"); err == nil {
		t.Fatal("traversal path should be rejected")
	}
}

func TestValidateOutputDir_RejectsFile(t *testing.T) {
	edl := filepath.Join(t.TempDir(), "rough_cut.edl")
	if err := os.WriteFile(edl, []byte("TITLE: x\n"), 0o644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	if err := ValidateOutputDir(edl); err == nil {
		t.Fatalf("ValidateOutputDir(%q) expected non-directory error", edl)
	}
}
