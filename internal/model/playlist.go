package model

import (
	"time"
)

// PlaylistEntry is a single video discovered while expanding a playlist
type PlaylistEntry struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// Playlist represents a YouTube playlist expanded into individual download targets
type Playlist struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	Entries   []PlaylistEntry `json:"entries"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewPlaylist creates a new empty playlist for url
func NewPlaylist(id, url string) *Playlist {
	return &Playlist{
		ID:        id,
		URL:       url,
		Entries:   make([]PlaylistEntry, 0),
		CreatedAt: time.Now(),
	}
}

// AddEntry appends an entry, ignoring duplicates of an already present source id
func (p *Playlist) AddEntry(entry PlaylistEntry) {
	for _, existing := range p.Entries {
		if existing.SourceID == entry.SourceID {
			return
		}
	}
	p.Entries = append(p.Entries, entry)
}

// Requests converts the playlist entries into queue submissions
func (p *Playlist) Requests(quality string) []JobRequest {
	reqs := make([]JobRequest, 0, len(p.Entries))
	for _, entry := range p.Entries {
		reqs = append(reqs, JobRequest{
			SourceID: entry.SourceID,
			Title:    entry.Title,
			Quality:  quality,
		})
	}
	return reqs
}
