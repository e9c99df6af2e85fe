package download

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// Default values
const (
	DefaultContainer = "mp4"
	DefaultQuality   = "best"
)

// File name limits
const (
	MaxTitleLength = 120
)

// Hosts accepted for YouTube URLs
var youtubeHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// Path prefixes that carry the video id as the next segment
var idPathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Target is one thing to download
type Target struct {
	SourceID   string // bare id or URL
	Title      string
	Quality    string
	Container  string
	OutputPath string // overrides the derived path when set
}

// ParseSourceID extracts the 11-character video id from a bare id or a
// watch, youtu.be, shorts, embed or live URL.
func ParseSourceID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidTarget)
	}
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q is neither a video id nor a URL", ErrInvalidTarget, raw)
	}

	host := strings.ToLower(u.Host)
	var candidate string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		candidate = strings.Trim(u.Path, "/")
	case youtubeHosts[host]:
		if u.Path == "/watch" {
			candidate = u.Query().Get("v")
			break
		}
		for _, prefix := range idPathPrefixes {
			if strings.HasPrefix(u.Path, prefix) {
				candidate = strings.SplitN(strings.TrimPrefix(u.Path, prefix), "/", 2)[0]
				break
			}
		}
	default:
		return "", fmt.Errorf("%w: unsupported host %q", ErrInvalidTarget, u.Host)
	}

	if !videoIDPattern.MatchString(candidate) {
		return "", fmt.Errorf("%w: no video id in %q", ErrInvalidTarget, raw)
	}
	return candidate, nil
}

// WatchURL returns the canonical watch URL for a video id
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// OutputFileName derives a stable file name so a later run finds the same
// partial file and sidecar.
func OutputFileName(id, title, container string) string {
	if container == "" {
		container = DefaultContainer
	}
	if clean := SanitizeFileName(title); clean != "" {
		return fmt.Sprintf("%s [%s].%s", clean, id, container)
	}
	return id + "." + container
}

// OutputPath joins dir with OutputFileName
func OutputPath(dir, id, title, container string) string {
	return filepath.Join(dir, OutputFileName(id, title, container))
}

// SanitizeFileName strips characters that are unsafe in file names on common
// filesystems and trims the result to MaxTitleLength runes.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.Join(strings.Fields(b.String()), " ")
	clean = strings.Trim(clean, ". ")
	if runes := []rune(clean); len(runes) > MaxTitleLength {
		clean = strings.TrimSpace(string(runes[:MaxTitleLength]))
	}
	return clean
}
