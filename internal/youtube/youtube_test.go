package youtube

import (
	"errors"
	"testing"
)

func TestVideoID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  error
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", nil},
		{"no scheme", "youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", nil},
		{"short link", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", nil},
		{"extra params", "http://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", nil},
		{"padded", "  https://youtu.be/abcdefghijk ", "abcdefghijk", nil},
		{"short id", "https://youtu.be/abc", "", ErrInvalidURL},
		{"other host", "https://vimeo.com/watch?v=dQw4w9WgXcQ", "", ErrInvalidURL},
		{"empty", "", "", ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VideoID(tt.in)
			if !errors.Is(err, tt.err) {
				t.Fatalf("VideoID(%q) error = %v, want %v", tt.in, err, tt.err)
			}
			if got != tt.want {
				t.Errorf("VideoID(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if IsValid(tt.in) != (tt.err == nil) {
				t.Errorf("IsValid(%q) disagrees with VideoID", tt.in)
			}
		})
	}
}

func TestWatchURL(t *testing.T) {
	got, err := WatchURL("youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Errorf("WatchURL = %q", got)
	}

	if _, err := WatchURL("not a url"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("https://youtu.be/dQw4w9WgXcQ"); err != nil {
		t.Errorf("expected valid URL, got %v", err)
	}
	if err := Validate("not a url"); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL, got %v", err)
	}
}
