package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/keshon/jukebox/internal/music/sources"
)

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

func isYouTubeHost(host string) bool {
	switch strings.ToLower(host) {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// classify inspects the shape of a YouTube link.
func classify(raw string) sources.Kind {
	if !sources.IsURL(strings.TrimSpace(raw)) {
		return sources.KindInvalid
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !isYouTubeHost(u.Hostname()) {
		return sources.KindInvalid
	}
	if videoID(u) != "" {
		return sources.KindTrack
	}
	if u.Path == "/playlist" && u.Query().Get("list") != "" {
		return sources.KindCollection
	}
	return sources.KindInvalid
}

// videoID extracts the 11-character video id from a parsed YouTube link.
func videoID(u *url.URL) string {
	var id string
	switch {
	case strings.EqualFold(u.Hostname(), "youtu.be"):
		id = strings.Trim(u.Path, "/")
	case u.Path == "/watch":
		id = u.Query().Get("v")
	case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/live/"), strings.HasPrefix(u.Path, "/embed/"):
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) >= 2 {
			id = parts[1]
		}
	}
	if !videoIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// VideoID returns the video id of raw or "" when raw is not a video link.
func VideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !isYouTubeHost(u.Hostname()) {
		return ""
	}
	return videoID(u)
}

// WatchURL is the canonical link for a video id.
func WatchURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}

// CleanVideoURL drops everything but the video id from a video link.
func CleanVideoURL(raw string) string {
	if id := VideoID(raw); id != "" {
		return WatchURL(id)
	}
	return raw
}
