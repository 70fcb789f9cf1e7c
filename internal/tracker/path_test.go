package tracker

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`\\nas\media\clip.mp4`, "//nas/media/clip.mp4"},
		{`media\2025\clip.mp4`, "media/2025/clip.mp4"},
		{"/mnt/nas/media/clip.mp4", "/mnt/nas/media/clip.mp4"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBasename(t *testing.T) {
	if got := Basename(`media\2025\clip.mp4`); got != "clip.mp4" {
		t.Errorf("Basename() = %q, want %q", got, "clip.mp4")
	}
	if got := Basename("/mnt/nas/clip.mp4"); got != "clip.mp4" {
		t.Errorf("Basename() = %q, want %q", got, "clip.mp4")
	}
}

func TestExt(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/media/clip.MP4", ".mp4"},
		{"/media/clip.m2ts", ".m2ts"},
		{"/media/noext", ""},
	}
	for _, tt := range tests {
		if got := Ext(tt.in); got != tt.want {
			t.Errorf("Ext(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
