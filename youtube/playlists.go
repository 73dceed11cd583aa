package youtube

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	ytapi "google.golang.org/api/youtube/v3"
)

// maxPlaylistPageSize is the largest page the playlists.list endpoint serves.
const maxPlaylistPageSize = 50

// PlaylistResolver maps playlist names to playlist IDs, creating missing
// playlists on demand. Resolution is cached for the resolver's lifetime so
// repeated scans of the same folder cost one API round trip at most.
type PlaylistResolver struct {
	service *ytapi.Service

	mu    sync.Mutex
	cache map[string]string // lower(name) -> playlist ID
}

// NewPlaylistResolver builds a resolver over an authenticated service.
func NewPlaylistResolver(service *ytapi.Service) *PlaylistResolver {
	return &PlaylistResolver{
		service: service,
		cache:   make(map[string]string),
	}
}

// Resolve returns the ID of the channel's playlist with the given name,
// matched case-insensitively, creating an unlisted playlist when none
// exists. Concurrent calls for the same name resolve to the same playlist.
func (r *PlaylistResolver) Resolve(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("resolve playlist: name is empty")
	}
	key := strings.ToLower(name)

	// Holding the lock across the API calls single-flights concurrent
	// resolution of the same name, so only one playlist gets created.
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.cache[key]; ok {
		return id, nil
	}

	id, err := r.find(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve playlist %q: %w", name, err)
	}
	if id == "" {
		id, err = r.create(ctx, name)
		if err != nil {
			return "", fmt.Errorf("create playlist %q: %w", name, err)
		}
		log.Printf("youtube: created playlist %q (%s)", name, id)
	}

	r.cache[key] = id
	return id, nil
}

// find pages through the channel's playlists looking for a case-insensitive
// title match.
func (r *PlaylistResolver) find(ctx context.Context, lowerName string) (string, error) {
	pageToken := ""
	for {
		call := r.service.Playlists.List([]string{"snippet"}).
			Mine(true).
			MaxResults(maxPlaylistPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return "", err
		}
		for _, pl := range resp.Items {
			if pl.Snippet != nil && strings.ToLower(pl.Snippet.Title) == lowerName {
				return pl.Id, nil
			}
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			return "", nil
		}
	}
}

// create makes a new unlisted playlist with the given title.
func (r *PlaylistResolver) create(ctx context.Context, name string) (string, error) {
	pl := &ytapi.Playlist{
		Snippet: &ytapi.PlaylistSnippet{
			Title:       name,
			Description: "Uploads from " + name,
		},
		Status: &ytapi.PlaylistStatus{
			PrivacyStatus: "unlisted",
		},
	}
	resp, err := r.service.Playlists.Insert([]string{"snippet", "status"}, pl).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return resp.Id, nil
}
