// Package audio plays local audio files through the system output using beep.
package audio

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/osa030/cuedeck/internal/domain/apperr"
)

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decodeFunc{
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
	".oga":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

// fileStream closes the backing file along with the decoder.
type fileStream struct {
	beep.StreamSeekCloser
	file io.Closer
}

func (s fileStream) Close() error {
	err := s.StreamSeekCloser.Close()
	_ = s.file.Close()
	return err
}

// openStream decodes the file at path. Failures are classified with the
// media code the playback controller reports.
func openStream(path string) (beep.StreamSeekCloser, beep.Format, apperr.MediaCode, error) {
	decode, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, beep.Format{}, apperr.MediaSrcNotSupported, errors.Newf("no decoder for %s", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, apperr.MediaNetwork, errors.Wrap(err, "failed to open media")
	}

	s, format, err := decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, apperr.MediaDecode, errors.Wrap(err, "failed to decode media")
	}
	return fileStream{StreamSeekCloser: s, file: f}, format, 0, nil
}
