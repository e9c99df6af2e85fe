package platform

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ytget/ytq/internal/model"
)

func TestNewPlaylistExpander(t *testing.T) {
	expander := NewPlaylistExpander()
	if expander.timeout != DefaultParseTimeout {
		t.Errorf("Expected timeout %v, got %v", DefaultParseTimeout, expander.timeout)
	}

	expander.SetTimeout(5 * time.Second)
	if expander.timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", expander.timeout)
	}
}

func TestExtractPlaylistID(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"playlist page", "https://www.youtube.com/playlist?list=PLabc123", "PLabc123"},
		{"watch with list", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLxyz&start_radio=1", "PLxyz"},
		{"single video", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ""},
		{"bare id", "dQw4w9WgXcQ", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPlaylistID(tt.url); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
			if got := IsPlaylistURL(tt.url); got != (tt.expected != "") {
				t.Errorf("Expected IsPlaylistURL %v, got %v", tt.expected != "", got)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	var gotID string
	expander := NewPlaylistExpander()
	expander.SetLister(func(_ context.Context, playlistID string) ([]PlaylistItem, error) {
		gotID = playlistID
		return []PlaylistItem{
			{VideoID: "aaaaaaaaaaa", Title: "Concert Live Part 1"},
			{VideoID: "bbbbbbbbbbb", Title: "Concert Live Part 2"},
			{VideoID: "aaaaaaaaaaa", Title: "Concert Live Part 1"},
			{VideoID: "", Title: "deleted video"},
		}, nil
	})

	playlist, err := expander.Expand(context.Background(), "https://www.youtube.com/playlist?list=PL42")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if gotID != "PL42" {
		t.Errorf("Expected lister called with 'PL42', got '%s'", gotID)
	}
	if playlist.ID != "PL42" {
		t.Errorf("Expected playlist ID 'PL42', got '%s'", playlist.ID)
	}
	if len(playlist.Entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(playlist.Entries))
	}
	if playlist.Entries[1].URL != "https://www.youtube.com/watch?v=bbbbbbbbbbb" {
		t.Errorf("Unexpected entry URL '%s'", playlist.Entries[1].URL)
	}
	if playlist.Title != "Concert Live Part Playlist" {
		t.Errorf("Expected common prefix title, got '%s'", playlist.Title)
	}
}

func TestExpand_Errors(t *testing.T) {
	expander := NewPlaylistExpander()
	expander.SetLister(func(context.Context, string) ([]PlaylistItem, error) {
		return nil, errors.New("network down")
	})

	if _, err := expander.Expand(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ"); err == nil {
		t.Error("Expected error for URL without playlist, got nil")
	}

	_, err := expander.Expand(context.Background(), "https://www.youtube.com/playlist?list=PL1")
	if err == nil || !strings.Contains(err.Error(), "network down") {
		t.Errorf("Expected lister error to be wrapped, got %v", err)
	}
}

func TestExtractPlaylistTitle(t *testing.T) {
	tests := []struct {
		name     string
		entries  []model.PlaylistEntry
		expected string
	}{
		{"empty", nil, DefaultPlaylistName},
		{"single", []model.PlaylistEntry{{Title: "Song"}}, "Song Playlist"},
		{"short prefix", []model.PlaylistEntry{{Title: "Song A"}, {Title: "Song B"}}, "Song A Playlist"},
		{"long prefix", []model.PlaylistEntry{{Title: "Greatest Hits 01"}, {Title: "Greatest Hits 02"}}, "Greatest Hits 0 Playlist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPlaylistTitle(tt.entries); got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestFindCommonPrefix(t *testing.T) {
	tests := []struct {
		s1, s2   string
		expected string
	}{
		{"abcdef", "abcxyz", "abc"},
		{"abc", "abc", "abc"},
		{"abc", "abcdef", "abc"},
		{"xyz", "abc", ""},
		{"", "abc", ""},
	}

	for _, tt := range tests {
		if got := findCommonPrefix(tt.s1, tt.s2); got != tt.expected {
			t.Errorf("findCommonPrefix(%q, %q): expected '%s', got '%s'", tt.s1, tt.s2, tt.expected, got)
		}
	}
}
