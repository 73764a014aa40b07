// Package youtube validates analysis targets and extracts video ids.
package youtube

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidURL is returned for targets that are not a YouTube video link.
var ErrInvalidURL = errors.New("not a youtube video url")

var videoURL = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/(watch\?v=)?([a-zA-Z0-9_-]{11})`)

// IsValid reports whether raw looks like a YouTube video URL.
func IsValid(raw string) bool {
	return videoURL.MatchString(strings.TrimSpace(raw))
}

// Validate returns ErrInvalidURL unless raw is a YouTube video URL.
func Validate(raw string) error {
	if !IsValid(raw) {
		return ErrInvalidURL
	}
	return nil
}

// VideoID returns the 11 character video id embedded in raw.
func VideoID(raw string) (string, error) {
	m := videoURL.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", ErrInvalidURL
	}
	return m[5], nil
}

// WatchURL returns the canonical watch URL for raw, which is what the
// upstream model is given as the video file URI.
func WatchURL(raw string) (string, error) {
	id, err := VideoID(raw)
	if err != nil {
		return "", err
	}
	return "https://www.youtube.com/watch?v=" + id, nil
}
