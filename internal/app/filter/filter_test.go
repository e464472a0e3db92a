package filter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cuedeck/internal/domain/track"
)

type mockQueueManager struct {
	ids map[string]bool
}

func (m *mockQueueManager) Contains(id string) bool {
	return m.ids[id]
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func wavBytes() []byte {
	b := []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00")
	return append(b, make([]byte, 32)...)
}

func mp3Bytes() []byte {
	b := []byte("ID3\x03\x00\x00\x00\x00\x00\x0a")
	return append(b, make([]byte, 32)...)
}

func TestAudioFormatFilter_Check(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
		wantCode string
	}{
		{
			name:     "wav accepted",
			fileName: "cue.wav",
			data:     wavBytes(),
		},
		{
			name:     "mp3 accepted",
			fileName: "cue.mp3",
			data:     mp3Bytes(),
		},
		{
			name:     "extension not allowed",
			fileName: "notes.txt",
			data:     []byte("hello"),
			wantCode: "unsupported_format",
		},
		{
			name:     "audio extension with text content",
			fileName: "fake.mp3",
			data:     []byte("this is not audio at all"),
			wantCode: "unsupported_format",
		},
		{
			name:     "extension is case insensitive",
			fileName: "LOUD.WAV",
			data:     wavBytes(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.fileName, tt.data)
			f := NewAudioFormatFilter()

			result := f.Check(context.Background(), Candidate{File: track.File{Name: tt.fileName, Path: path}})

			if tt.wantCode == "" {
				assert.True(t, result.Accepted)
				return
			}
			assert.False(t, result.Accepted)
			assert.Equal(t, tt.wantCode, result.Code)
		})
	}
}

func TestAudioFormatFilter_MissingFile(t *testing.T) {
	f := NewAudioFormatFilter()
	path := filepath.Join(t.TempDir(), "gone.wav")

	result := f.Check(context.Background(), Candidate{File: track.File{Path: path}})

	assert.False(t, result.Accepted)
	assert.Equal(t, "unreadable_file", result.Code)
}

func TestAudioFormatFilter_SniffDisabled(t *testing.T) {
	f := &AudioFormatFilter{}
	require.NoError(t, f.ValidateConfig(map[string]any{
		"extensions": []any{".MP3"},
		"sniff":      false,
	}))

	result := f.Check(context.Background(), Candidate{File: track.File{Path: "/nowhere/cue.mp3"}})
	assert.True(t, result.Accepted)

	result = f.Check(context.Background(), Candidate{File: track.File{Path: "/nowhere/cue.wav"}})
	assert.False(t, result.Accepted)
}

func TestAudioFormatFilter_ValidateConfig(t *testing.T) {
	f := &AudioFormatFilter{}
	err := f.ValidateConfig(map[string]any{"extensions": []any{"mp3"}})
	assert.Error(t, err, "extensions must start with a dot")
}

func TestFileSizeLimitFilter_Check(t *testing.T) {
	tests := []struct {
		name         string
		settings     map[string]any
		size         int64
		wantAccepted bool
	}{
		{
			name:         "within limit",
			settings:     map[string]any{"max_megabytes": 1},
			size:         512 * 1024,
			wantAccepted: true,
		},
		{
			name:         "exactly at limit",
			settings:     map[string]any{"max_megabytes": 1},
			size:         1024 * 1024,
			wantAccepted: true,
		},
		{
			name:         "over limit",
			settings:     map[string]any{"max_megabytes": 1},
			size:         1024*1024 + 1,
			wantAccepted: false,
		},
		{
			name:         "default limit",
			settings:     nil,
			size:         100 * 1024 * 1024,
			wantAccepted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFileSizeLimitFilter()
			require.NoError(t, f.ValidateConfig(tt.settings))

			result := f.Check(context.Background(), Candidate{File: track.File{Size: tt.size}})

			assert.Equal(t, tt.wantAccepted, result.Accepted)
			if !tt.wantAccepted {
				assert.Equal(t, "file_too_large", result.Code)
			}
		})
	}
}

func TestFileSizeLimitFilter_ValidateConfig(t *testing.T) {
	f := NewFileSizeLimitFilter()
	assert.Error(t, f.ValidateConfig(map[string]any{"max_megabytes": -1}))
	assert.Error(t, f.ValidateConfig(map[string]any{"max_megabytes": "lots"}))
}

func TestFileSizeLimitFilter_NoConfigAcceptsAll(t *testing.T) {
	f := NewFileSizeLimitFilter()
	result := f.Check(context.Background(), Candidate{File: track.File{Size: 1 << 40}})
	assert.True(t, result.Accepted)
}

func TestDuplicateTrackFilter_Check(t *testing.T) {
	qm := &mockQueueManager{ids: map[string]bool{"track123": true}}
	f := NewDuplicateTrackFilter(qm)

	result := f.Check(context.Background(), Candidate{Track: track.Track{ID: "track123"}})
	assert.False(t, result.Accepted)
	assert.Equal(t, "duplicate_track", result.Code)

	result = f.Check(context.Background(), Candidate{Track: track.Track{ID: "track456"}})
	assert.True(t, result.Accepted)
}

func TestChain_StopsAtFirstRejection(t *testing.T) {
	qm := &mockQueueManager{ids: map[string]bool{"dup": true}}
	size := NewFileSizeLimitFilter()
	require.NoError(t, size.ValidateConfig(map[string]any{"max_megabytes": 1}))

	chain := NewChain(NewDuplicateTrackFilter(qm), size)

	result := chain.Execute(context.Background(), Candidate{
		File:  track.File{Size: 10 * 1024 * 1024},
		Track: track.Track{ID: "dup"},
	})
	assert.Equal(t, "duplicate_track", result.Code)

	result = chain.Execute(context.Background(), Candidate{
		File:  track.File{Size: 10 * 1024 * 1024},
		Track: track.Track{ID: "fresh"},
	})
	assert.Equal(t, "file_too_large", result.Code)

	result = chain.Execute(context.Background(), Candidate{
		File:  track.File{Size: 10},
		Track: track.Track{ID: "fresh"},
	})
	assert.True(t, result.Accepted)
	assert.Len(t, chain.Filters(), 2)
}

func TestRegistry(t *testing.T) {
	registered := GetRegistered()

	for _, name := range []string{"audio_format_filter", "file_size_limit_filter"} {
		factory, ok := registered[name]
		require.True(t, ok, name)
		f := factory()
		assert.Equal(t, name, f.Name())
		assert.NotEmpty(t, f.Description())
		assert.NotEmpty(t, f.ReturnCodes())
	}
}
