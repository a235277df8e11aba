package utils

import "testing"

func TestMimeCategory(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"diagram.png", "image"},
		{"photo.JPG", "image"},
		{"icon.svg", "image"},
		{"notes.pdf", "document"},
		{"style.css", "document"},
		{"page.html", "document"},
		{"data.json", "other"},
		{"archive.xyz", "other"},
		{"no-extension", "other"},
		{"", "other"},
	}
	for _, tc := range cases {
		if got := MimeCategory(tc.filename); got != tc.want {
			t.Errorf("MimeCategory(%q) = %q, want %q", tc.filename, got, tc.want)
		}
	}
}
