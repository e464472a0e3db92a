package settings

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingBlob struct {
	MemoryBlob
	saveErr error
}

func (f *failingBlob) Save(data []byte) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryBlob.Save(data)
}

func intPtr(n int) *int { return &n }

func TestStore_LoadMergesOverDefaults(t *testing.T) {
	tests := []struct {
		name   string
		blob   string
		check  func(t *testing.T, s Settings)
		errors bool
	}{
		{
			name: "empty blob yields defaults",
			blob: "",
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, Defaults(), s)
			},
		},
		{
			name: "partial older shape keeps missing keys",
			blob: `{"audio":{"fadeIn":{"enabled":true}},"midi":{"mappings":{"playNext":62}}}`,
			check: func(t *testing.T, s Settings) {
				assert.True(t, s.Audio.FadeIn.Enabled)
				assert.Equal(t, 2.0, s.Audio.FadeIn.Duration)
				assert.Equal(t, "default", s.Audio.OutputID)
				assert.Equal(t, 100, s.Audio.MaxVolume.Level)
				assert.Equal(t, 1.0, s.Volume)

				note, ok := s.MIDI.Mapping(CmdPlayNext)
				assert.True(t, ok)
				assert.Equal(t, 62, note)
				assert.Len(t, s.MIDI.Mappings, len(Commands))
				_, ok = s.MIDI.Mapping(CmdPlayPrev)
				assert.False(t, ok)
			},
		},
		{
			name: "null mappings restores the command table",
			blob: `{"midi":{"mappings":null}}`,
			check: func(t *testing.T, s Settings) {
				assert.Len(t, s.MIDI.Mappings, len(Commands))
			},
		},
		{
			name:   "corrupt blob falls back to defaults",
			blob:   `{"volume":`,
			errors: true,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, Defaults(), s)
			},
		},
		{
			name:   "out of range value falls back to defaults",
			blob:   `{"volume":3}`,
			errors: true,
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 1.0, s.Volume)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := &MemoryBlob{}
			require.NoError(t, blob.Save([]byte(tt.blob)))
			store := NewStore(blob)

			err := store.Load()

			if tt.errors {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			tt.check(t, store.Current())
		})
	}
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	store := NewStore(&MemoryBlob{})
	require.NoError(t, store.Update(func(s *Settings) {
		s.Volume = 0.42
		s.IsMuted = true
		s.Audio.FadeOut = Fade{Enabled: true, Duration: 3.5}
		s.Audio.MaxVolume = MaxVolume{Enabled: true, Level: 80}
		s.MIDI.InputID = "Launchpad"
		s.MIDI.Mappings[CmdStopPlayback] = intPtr(36)
	}))
	original := store.Current()

	exported, err := store.Export()
	require.NoError(t, err)
	assert.Contains(t, string(exported), "\n  \"midi\"", "export is indented")

	other := NewStore(&MemoryBlob{})
	require.NoError(t, other.Import(exported))

	assert.Equal(t, original, other.Current())
}

func TestStore_UpdatePersists(t *testing.T) {
	blob := &MemoryBlob{}
	store := NewStore(blob)

	require.NoError(t, store.SetOutputID("usb-1"))
	assert.Equal(t, "usb-1", store.OutputID())

	reloaded := NewStore(blob)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "usb-1", reloaded.Current().Audio.OutputID)
}

func TestStore_UpdateRejectsInvalid(t *testing.T) {
	store := NewStore(&MemoryBlob{})

	err := store.Update(func(s *Settings) {
		s.MIDI.Mappings[CmdPlayNext] = intPtr(200)
	})

	assert.Error(t, err)
	_, ok := store.Current().MIDI.Mapping(CmdPlayNext)
	assert.False(t, ok, "invalid update leaves settings unchanged")
}

func TestStore_UpdateSaveFailure(t *testing.T) {
	blob := &failingBlob{saveErr: errors.New("disk full")}
	store := NewStore(blob)

	err := store.Update(func(s *Settings) { s.Volume = 0.1 })

	assert.Error(t, err)
	assert.Equal(t, 1.0, store.Current().Volume)
}

func TestStore_CurrentIsACopy(t *testing.T) {
	store := NewStore(&MemoryBlob{})

	snapshot := store.Current()
	snapshot.MIDI.Mappings[CmdPlayNext] = intPtr(1)

	_, ok := store.Current().MIDI.Mapping(CmdPlayNext)
	assert.False(t, ok)
}

func TestStore_ReloadNotifiesOnExternalChange(t *testing.T) {
	blob := &MemoryBlob{}
	store := NewStore(blob)
	require.NoError(t, store.Update(func(s *Settings) { s.Volume = 0.5 }))

	calls := 0
	store.OnChange(func(s Settings) { calls++ })

	// Own write: no notification.
	require.NoError(t, store.Reload())
	assert.Equal(t, 0, calls)

	require.NoError(t, blob.Save([]byte(`{"volume":0.25}`)))
	require.NoError(t, store.Reload())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0.25, store.Current().Volume)
}

func TestFade_Effective(t *testing.T) {
	assert.Equal(t, time.Duration(0), Fade{Enabled: false, Duration: 2}.Effective())
	assert.Equal(t, time.Duration(0), Fade{Enabled: true, Duration: 0}.Effective())
	assert.Equal(t, 1500*time.Millisecond, Fade{Enabled: true, Duration: 1.5}.Effective())
}

func TestMaxVolume_Ceiling(t *testing.T) {
	assert.Equal(t, 1.0, MaxVolume{Enabled: false, Level: 20}.Ceiling())
	assert.Equal(t, 0.2, MaxVolume{Enabled: true, Level: 20}.Ceiling())
}
