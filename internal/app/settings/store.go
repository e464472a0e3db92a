package settings

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
)

// Blob is the durable key-value storage of the serialized settings.
type Blob interface {
	// Load returns the stored blob, or nil when nothing has been saved yet.
	Load() ([]byte, error)
	// Save replaces the stored blob.
	Save(data []byte) error
}

// Store owns the current settings and persists every change.
type Store struct {
	mu        sync.RWMutex
	blob      Blob
	validate  *validator.Validate
	current   Settings
	last      []byte
	listeners []func(Settings)
}

// NewStore creates a settings store holding the defaults until Load is called.
func NewStore(blob Blob) *Store {
	return &Store{
		blob:     blob,
		validate: validator.New(),
		current:  Defaults(),
	}
}

// Load reads the blob and merges it over the defaults. A missing blob keeps
// the defaults. A corrupt or invalid blob also keeps the defaults and is
// reported as an error.
func (s *Store) Load() error {
	data, err := s.blob.Load()
	if err != nil {
		return errors.Wrap(err, "failed to read settings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = data
	if len(bytes.TrimSpace(data)) == 0 {
		s.current = Defaults()
		zlog.Info().Msg("settings: no saved settings, using defaults")
		return nil
	}

	merged, err := s.decode(data)
	if err != nil {
		s.current = Defaults()
		zlog.Warn().Msgf("settings: invalid saved settings, using defaults: %v", err)
		return err
	}
	s.current = merged
	zlog.Info().Msg("settings: loaded")
	return nil
}

// Reload re-reads the blob after an external change. Listeners are notified
// only when the content differs from what the store last read or wrote.
func (s *Store) Reload() error {
	data, err := s.blob.Load()
	if err != nil {
		return errors.Wrap(err, "failed to read settings")
	}

	s.mu.Lock()
	if bytes.Equal(data, s.last) {
		s.mu.Unlock()
		return nil
	}
	merged, err := s.decode(data)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.last = data
	s.current = merged
	snapshot := s.current.Clone()
	listeners := s.listeners
	s.mu.Unlock()

	zlog.Info().Msg("settings: reloaded after external change")
	for _, fn := range listeners {
		fn(snapshot)
	}
	return nil
}

// Current returns a deep copy of the current settings.
func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update applies fn to a copy of the current settings, validates the result
// and persists it. The stored settings are unchanged when validation or
// persistence fails.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Clone()
	fn(&next)
	return s.commitLocked(next)
}

// Export returns the current settings as human-readable JSON.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode settings")
	}
	return data, nil
}

// Import replaces the current settings with data merged over the defaults.
func (s *Store) Import(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := s.decode(data)
	if err != nil {
		return err
	}
	return s.commitLocked(merged)
}

// OnChange registers fn to be called after an external reload.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// OutputID returns the persisted output device id.
func (s *Store) OutputID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Audio.OutputID
}

// SetOutputID persists the output device id.
func (s *Store) SetOutputID(id string) error {
	return s.Update(func(st *Settings) {
		st.Audio.OutputID = id
	})
}

func (s *Store) decode(data []byte) (Settings, error) {
	merged := Defaults()
	if err := json.Unmarshal(data, &merged); err != nil {
		return Settings{}, errors.Wrap(err, "failed to decode settings")
	}
	if merged.MIDI.Mappings == nil {
		merged.MIDI.Mappings = Defaults().MIDI.Mappings
	}
	for _, c := range Commands {
		if _, ok := merged.MIDI.Mappings[c]; !ok {
			merged.MIDI.Mappings[c] = nil
		}
	}
	if err := s.validate.Struct(merged); err != nil {
		return Settings{}, errors.Wrap(err, "invalid settings")
	}
	return merged, nil
}

func (s *Store) commitLocked(next Settings) error {
	if err := s.validate.Struct(next); err != nil {
		return errors.Wrap(err, "invalid settings")
	}

	data, err := json.Marshal(next)
	if err != nil {
		return errors.Wrap(err, "failed to encode settings")
	}
	if err := s.blob.Save(data); err != nil {
		return errors.Wrap(err, "failed to save settings")
	}
	s.last = data
	s.current = next
	return nil
}

// MemoryBlob is an in-process Blob.
type MemoryBlob struct {
	mu   sync.Mutex
	data []byte
}

// Load returns the stored bytes.
func (m *MemoryBlob) Load() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.data), nil
}

// Save stores a copy of data.
func (m *MemoryBlob) Save(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = bytes.Clone(data)
	return nil
}
