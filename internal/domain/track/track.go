// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// idNamespace scopes derived track ids.
var idNamespace = uuid.MustParse("6f1c2a4e-8d3b-5e7f-9a1c-2b4d6e8f0a13")

// File is an import candidate handed over by the host (file picker, drag and drop, CLI args).
type File struct {
	Name     string    // Display name (usually the base file name)
	Path     string    // Location of the media
	Size     int64     // Size in bytes
	LoadedAt time.Time // When the host handed the file over
}

// Track represents an audio cue in the queue.
type Track struct {
	ID       string        // Stable id derived from name, size and load time
	Name     string        // Display name
	Path     string        // Playable location of the media
	Size     int64         // Size in bytes
	LoadedAt time.Time     // Load time used for id derivation
	Duration time.Duration // Known duration (0 until metadata is loaded)
}

// NewID derives the stable id of a track from its name, size and load time.
func NewID(name string, size int64, loadedAt time.Time) string {
	key := fmt.Sprintf("%s|%d|%d", name, size, loadedAt.UnixNano())
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// FromFile builds a track for an import candidate.
func FromFile(f File) Track {
	name := f.Name
	if name == "" {
		name = filepath.Base(f.Path)
	}
	return Track{
		ID:       NewID(name, f.Size, f.LoadedAt),
		Name:     name,
		Path:     f.Path,
		Size:     f.Size,
		LoadedAt: f.LoadedAt,
	}
}

// HasDuration reports whether the duration has been back-filled.
func (t *Track) HasDuration() bool {
	return t.Duration > 0
}

// FileName returns the base name of the media location.
func (t *Track) FileName() string {
	return filepath.Base(t.Path)
}
