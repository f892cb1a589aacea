package mediaproxy

import (
	"os"
	"time"

	"github.com/grafov/m3u8"
)

// PlaylistAlive reports whether an HLS playlist looks like it is being
// actively written: the file exists, was modified within staleAfter and
// parses as a media playlist with at least one segment.
func PlaylistAlive(path string, staleAfter time.Duration) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) > staleAfter {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	playlist, listType, err := m3u8.DecodeFrom(f, true)
	if err != nil || listType != m3u8.MEDIA {
		return false
	}

	media, ok := playlist.(*m3u8.MediaPlaylist)
	if !ok {
		return false
	}

	return media.Count() > 0
}
