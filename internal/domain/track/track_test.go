package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	loaded := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		a        File
		b        File
		expected bool
	}{
		{
			name:     "same name size and load time",
			a:        File{Name: "intro.mp3", Size: 1024, LoadedAt: loaded},
			b:        File{Name: "intro.mp3", Size: 1024, LoadedAt: loaded},
			expected: true,
		},
		{
			name:     "different size",
			a:        File{Name: "intro.mp3", Size: 1024, LoadedAt: loaded},
			b:        File{Name: "intro.mp3", Size: 2048, LoadedAt: loaded},
			expected: false,
		},
		{
			name:     "different load time",
			a:        File{Name: "intro.mp3", Size: 1024, LoadedAt: loaded},
			b:        File{Name: "intro.mp3", Size: 1024, LoadedAt: loaded.Add(time.Millisecond)},
			expected: false,
		},
		{
			name:     "different name",
			a:        File{Name: "intro.mp3", Size: 1024, LoadedAt: loaded},
			b:        File{Name: "outro.mp3", Size: 1024, LoadedAt: loaded},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idA := NewID(tt.a.Name, tt.a.Size, tt.a.LoadedAt)
			idB := NewID(tt.b.Name, tt.b.Size, tt.b.LoadedAt)
			assert.Equal(t, tt.expected, idA == idB)
		})
	}
}

func TestFromFile(t *testing.T) {
	f := File{Path: "/cues/act1/intro.mp3", Size: 10, LoadedAt: time.Unix(100, 0)}

	tr := FromFile(f)

	assert.Equal(t, "intro.mp3", tr.Name)
	assert.Equal(t, "intro.mp3", tr.FileName())
	assert.Equal(t, NewID("intro.mp3", 10, time.Unix(100, 0)), tr.ID)
	assert.False(t, tr.HasDuration())

	tr.Duration = 3 * time.Second
	assert.True(t, tr.HasDuration())
}
