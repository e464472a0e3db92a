// Package playlist provides the exported Playlist entity.
package playlist

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/cuedeck/internal/domain/track"
)

// Playlist is a snapshot of the canonical queue, in canonical order.
type Playlist struct {
	Name   string        // Playlist name
	Tracks []track.Track // Tracks in canonical order
}

// TotalDuration returns the total known duration in whole seconds.
func (p *Playlist) TotalDuration() int64 {
	var total int64
	for _, t := range p.Tracks {
		total += int64(t.Duration.Seconds())
	}
	return total
}

// WriteM3U writes the playlist as an extended M3U listing.
// Tracks with an unknown duration are written with -1.
func (p *Playlist) WriteM3U(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("#EXTM3U\n"); err != nil {
		return errors.Wrap(err, "failed to write m3u header")
	}
	for _, t := range p.Tracks {
		seconds := int64(-1)
		if t.HasDuration() {
			seconds = int64(math.Round(t.Duration.Seconds()))
		}
		if _, err := fmt.Fprintf(bw, "#EXTINF:%d,%s\n%s\n", seconds, sanitize(t.Name), t.FileName()); err != nil {
			return errors.Wrapf(err, "failed to write m3u entry: track=%s", t.ID)
		}
	}
	return errors.Wrap(bw.Flush(), "failed to flush m3u")
}

// M3U returns the playlist as an extended M3U string.
func (p *Playlist) M3U() string {
	var sb strings.Builder
	_ = p.WriteM3U(&sb)
	return sb.String()
}

// sanitize keeps a display name on a single #EXTINF line.
func sanitize(name string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(name)
}
