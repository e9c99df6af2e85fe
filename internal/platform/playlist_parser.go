package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ytget/ytq/internal/download"
)

// Target list syntax
const (
	CommentPrefix = "#"
)

// ParseTargetList reads a newline-delimited list of identifiers. Blank lines
// and lines starting with # are ignored.
func ParseTargetList(r io.Reader) ([]string, error) {
	var targets []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, CommentPrefix) {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target list: %w", err)
	}
	return targets, nil
}

// ReadTargetFile parses the target list at path; "-" reads stdin
func ReadTargetFile(path string) ([]string, error) {
	if path == "-" {
		return ParseTargetList(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open target list: %w", err)
	}
	defer f.Close()

	return ParseTargetList(f)
}

// ExpandTargets turns raw identifiers into download targets, expanding
// playlist URLs through expander when it is non-nil. Duplicate ids keep their
// first position.
func ExpandTargets(ctx context.Context, expander *PlaylistExpander, lines []string, quality string) ([]download.Target, error) {
	seen := make(map[string]bool)
	var targets []download.Target

	add := func(t download.Target) {
		key := t.SourceID
		if id, err := download.ParseSourceID(t.SourceID); err == nil {
			key = id
		}
		if seen[key] {
			return
		}
		seen[key] = true
		targets = append(targets, t)
	}

	for _, line := range lines {
		if expander != nil && IsPlaylistURL(line) {
			playlist, err := expander.Expand(ctx, line)
			if err != nil {
				return nil, err
			}
			for _, req := range playlist.Requests(quality) {
				add(download.Target{SourceID: req.SourceID, Title: req.Title, Quality: req.Quality})
			}
			continue
		}
		add(download.Target{SourceID: line, Quality: quality})
	}
	return targets, nil
}
